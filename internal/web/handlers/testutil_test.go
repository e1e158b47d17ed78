package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/checkpoint/internal/config"
	"github.com/kozaktomas/checkpoint/internal/database"
	"github.com/kozaktomas/checkpoint/internal/database/mock"
	"github.com/kozaktomas/checkpoint/internal/ledger"
	"github.com/kozaktomas/checkpoint/internal/matching"
	"github.com/kozaktomas/checkpoint/internal/oracle"
	"github.com/kozaktomas/checkpoint/internal/section"
	"github.com/kozaktomas/checkpoint/internal/web/middleware"
)

// fixture bundles a sections handler over in-memory stores.
type fixture struct {
	gallery *mock.MockGalleryReader
	visits  *mock.MockVisitWriter
	handler *SectionsHandler
	calls   int
}

// newFixture builds a handler whose oracle returns scores[target] for each reference image.
func newFixture(t *testing.T, scores map[string]float64, oracleErr error) *fixture {
	t.Helper()
	f := &fixture{
		gallery: mock.NewMockGalleryReader(),
		visits:  mock.NewMockVisitWriter(),
	}
	comparator := oracle.ComparatorFunc(func(ctx context.Context, probe, target []byte) (float64, error) {
		f.calls++
		if oracleErr != nil {
			return 0, oracleErr
		}
		return scores[string(target)], nil
	})
	l := ledger.New(f.visits, nil, nil)
	engine := matching.NewEngine(f.gallery, comparator, l, config.MatchingConfig{Threshold: 70}, nil, nil)
	f.handler = NewSectionsHandler(section.Default(), engine, l, nil)
	return f
}

func (f *fixture) addSubject(id int64, name, image string, hostelite bool) {
	f.gallery.AddSubject(database.Subject{
		ID:             id,
		StudentID:      "S" + name,
		Name:           name,
		ReferenceImage: []byte(image),
	}, map[string]bool{"hostelite": hostelite, "gym_active": !hostelite})
}

// probeRequest builds a multipart request carrying image and the extra fields.
func probeRequest(t *testing.T, path string, image []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if image != nil {
		part, err := w.CreateFormFile("image", "probe.jpg")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		part.Write(image)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

// withSession puts a staff session for sectionID in the request context.
func withSession(r *http.Request, sectionID string) *http.Request {
	session := &middleware.Session{ID: "test-session", StaffID: 5, Username: "op", Section: sectionID}
	return r.WithContext(middleware.SetSessionInContext(r.Context(), session))
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks the {"ok":false,"message":...} failure body
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result failureResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result.OK {
		t.Error("expected ok to be false")
	}
	if result.Message != expectedMessage {
		t.Errorf("expected message '%s', got '%s'", expectedMessage, result.Message)
	}
}
