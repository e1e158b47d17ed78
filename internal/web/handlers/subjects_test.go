package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/checkpoint/internal/database"
	"github.com/kozaktomas/checkpoint/internal/database/mock"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestSubjectsHandler_Photo(t *testing.T) {
	gallery := mock.NewMockGalleryReader()
	gallery.AddSubject(database.Subject{ID: 1, Name: "Alice", ReferenceImage: pngHeader}, nil)
	gallery.AddSubject(database.Subject{ID: 2, Name: "Bob"}, nil)
	handler := NewSubjectsHandler(gallery, nil)

	tests := []struct {
		name   string
		id     string
		status int
	}{
		{"stored photo", "1", http.StatusOK},
		{"no photo", "2", http.StatusNotFound},
		{"unknown subject", "99", http.StatusNotFound},
		{"bad id", "abc", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/subjects/"+tt.id+"/photo", nil)
			req = requestWithChiParams(req, map[string]string{"id": tt.id})
			recorder := httptest.NewRecorder()
			handler.Photo(recorder, req)

			assertStatusCode(t, recorder, tt.status)
			if tt.status == http.StatusOK {
				assertContentType(t, recorder, "image/png")
			}
		})
	}
}

func TestSubjectsHandler_Photo_StoreError(t *testing.T) {
	gallery := mock.NewMockGalleryReader()
	gallery.ReferenceImageError = errors.New("timeout")
	handler := NewSubjectsHandler(gallery, nil)

	req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/subjects/1/photo", nil), map[string]string{"id": "1"})
	recorder := httptest.NewRecorder()
	handler.Photo(recorder, req)

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "Failed to load photo")
}
