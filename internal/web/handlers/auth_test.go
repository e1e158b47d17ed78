package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/kozaktomas/checkpoint/internal/database"
	"github.com/kozaktomas/checkpoint/internal/database/mock"
	"github.com/kozaktomas/checkpoint/internal/section"
	"github.com/kozaktomas/checkpoint/internal/web/middleware"
)

func newAuthHandler(t *testing.T) (*AuthHandler, *mock.MockStaffReader, *middleware.SessionManager) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}
	staff := mock.NewMockStaffReader()
	staff.AddStaff(database.StaffMember{ID: 11, Username: "gymop", Section: "gym", PasswordHash: string(hash)})

	sm := middleware.NewSessionManager("test-secret", nil)
	t.Cleanup(sm.Stop)
	return NewAuthHandler(staff, section.Default(), sm, nil), staff, sm
}

func newLoginRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAuthHandler_Login_Success(t *testing.T) {
	handler, _, sm := newAuthHandler(t)
	recorder := httptest.NewRecorder()

	handler.Login(recorder, newLoginRequest(`{"username":"gymop","password":"s3cret","section":"gym"}`))

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "application/json")

	var response LoginResponse
	parseJSONResponse(t, recorder, &response)
	if !response.Success || response.SessionID == "" || response.ExpiresAt == "" {
		t.Errorf("response = %+v", response)
	}
	if response.Section != "gym" {
		t.Errorf("section = %q, want gym", response.Section)
	}

	session := sm.GetSession(response.SessionID)
	if session == nil || session.StaffID != 11 || session.Section != "gym" {
		t.Errorf("stored session = %+v", session)
	}
	if len(recorder.Result().Cookies()) == 0 {
		t.Error("expected session cookie")
	}
}

func TestAuthHandler_Login_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"missing section", `{"username":"gymop","password":"s3cret"}`, http.StatusBadRequest, "username, password and section are required"},
		{"missing password", `{"username":"gymop","section":"gym"}`, http.StatusBadRequest, "username, password and section are required"},
		{"unknown section", `{"username":"gymop","password":"s3cret","section":"pool"}`, http.StatusBadRequest, "unknown section"},
		{"invalid json", `{not json`, http.StatusBadRequest, errInvalidRequestBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _, _ := newAuthHandler(t)
			recorder := httptest.NewRecorder()
			handler.Login(recorder, newLoginRequest(tt.body))

			assertStatusCode(t, recorder, tt.status)
			assertJSONError(t, recorder, tt.message)
		})
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"wrong password", `{"username":"gymop","password":"nope","section":"gym"}`},
		{"unknown user", `{"username":"ghost","password":"s3cret","section":"gym"}`},
		{"other section", `{"username":"gymop","password":"s3cret","section":"mess"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _, _ := newAuthHandler(t)
			recorder := httptest.NewRecorder()
			handler.Login(recorder, newLoginRequest(tt.body))

			assertStatusCode(t, recorder, http.StatusUnauthorized)
			var response LoginResponse
			parseJSONResponse(t, recorder, &response)
			if response.Success || response.Error != "invalid credentials" {
				t.Errorf("response = %+v", response)
			}
		})
	}
}

func TestAuthHandler_Login_StaffLookupError(t *testing.T) {
	handler, staff, _ := newAuthHandler(t)
	staff.GetError = errors.New("connection refused")

	recorder := httptest.NewRecorder()
	handler.Login(recorder, newLoginRequest(`{"username":"gymop","password":"s3cret","section":"gym"}`))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "failed to verify credentials")
}

func TestAuthHandler_StatusAndLogout(t *testing.T) {
	handler, _, sm := newAuthHandler(t)
	session, err := sm.CreateSession(t.Context(), 11, "gymop", "gym")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	status := func() StatusResponse {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/status", nil)
		req.Header.Set("Authorization", "Bearer "+session.ID)
		recorder := httptest.NewRecorder()
		handler.Status(recorder, req)
		assertStatusCode(t, recorder, http.StatusOK)
		var resp StatusResponse
		parseJSONResponse(t, recorder, &resp)
		return resp
	}

	if got := status(); !got.Authenticated || got.Section != "gym" || got.Username != "gymop" {
		t.Errorf("status before logout = %+v", got)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+session.ID)
	recorder := httptest.NewRecorder()
	handler.Logout(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)

	if got := status(); got.Authenticated {
		t.Errorf("status after logout = %+v", got)
	}
}
