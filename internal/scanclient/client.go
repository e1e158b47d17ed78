// Package scanclient submits probes to a checkpoint server on behalf of a staff operator.
package scanclient

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/checkpoint/internal/capture"
)

// maxResponseSize bounds a response body; a full visits page is well below it.
const maxResponseSize = 8 << 20

// ErrResponseTooLarge is returned when the server sends more than maxResponseSize bytes.
var ErrResponseTooLarge = errors.New("response body too large")

// APIError is a non-ok response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// ErrNotLoggedIn is returned when a request needs a session and Login was not called.
var ErrNotLoggedIn = errors.New("not logged in")

// Student is the identified subject in a decision.
type Student struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	StudentID string `json:"student_id"`
	Attribute string `json:"attribute"`
	Active    bool   `json:"active"`
	Category  string `json:"category"`
	PhotoURL  string `json:"photo_url"`
}

// Visit is a ledger entry as returned by the server.
type Visit struct {
	ID          int64     `json:"id"`
	SubjectID   int64     `json:"subject_id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	Active      bool      `json:"active"`
	Category    string    `json:"category"`
	Section     string    `json:"section"`
	PhotoPath   string    `json:"photo_path"`
	CreatedAt   time.Time `json:"created_at"`
}

// Decision is the server's answer to a scan or targeted compare.
type Decision struct {
	OK              bool     `json:"ok"`
	ScanID          string   `json:"scan_id"`
	Matched         bool     `json:"matched"`
	Confidence      float64  `json:"confidence"`
	Threshold       float64  `json:"threshold"`
	Message         string   `json:"message,omitempty"`
	Student         *Student `json:"student,omitempty"`
	InsertedVisitID *int64   `json:"inserted_visit_id"`
	RecentVisit     *Visit   `json:"recentVisit,omitempty"`
	Recorded        bool     `json:"recorded"`
}

// Client talks to the checkpoint HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	sessionID  string
}

// New creates a client for the server at baseURL.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL scheme %q: must be http or https", parsed.Scheme)
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{baseURL: parsed.String(), httpClient: &http.Client{Timeout: timeout}}, nil
}

// SetSession uses an existing session ID instead of logging in.
func (c *Client) SetSession(id string) {
	c.sessionID = id
}

// Login authenticates a staff member for a section and keeps the session.
func (c *Client) Login(ctx context.Context, username, password, section string) error {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
		"section":  section,
	})
	if err != nil {
		return fmt.Errorf("marshal login: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Success   bool   `json:"success"`
		SessionID string `json:"session_id"`
		Error     string `json:"error"`
	}
	if err := c.do(req, &out); err != nil {
		return err
	}
	if !out.Success || out.SessionID == "" {
		return &APIError{Status: http.StatusUnauthorized, Message: out.Error}
	}
	c.sessionID = out.SessionID
	return nil
}

// Scan submits a probe for identification at section.
func (c *Client) Scan(ctx context.Context, section string, probe []byte) (*Decision, error) {
	return c.postProbe(ctx, "/api/v1/sections/"+url.PathEscape(section)+"/scan", probe, nil)
}

// Compare submits a probe against one subject.
func (c *Client) Compare(ctx context.Context, section string, probe []byte, subjectID int64) (*Decision, error) {
	fields := map[string]string{"user_id": strconv.FormatInt(subjectID, 10)}
	return c.postProbe(ctx, "/api/v1/sections/"+url.PathEscape(section)+"/compare", probe, fields)
}

// RecentVisits lists the newest visits at section.
func (c *Client) RecentVisits(ctx context.Context, section string, limit int, q string) ([]Visit, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if q != "" {
		params.Set("q", q)
	}
	endpoint := c.baseURL + "/api/v1/sections/" + url.PathEscape(section) + "/visits"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create visits request: %w", err)
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	var out struct {
		Visits []Visit `json:"visits"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Visits, nil
}

func (c *Client) postProbe(ctx context.Context, path string, probe []byte, fields map[string]string) (*Decision, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="probe.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(probe); err != nil {
		return nil, fmt.Errorf("write image part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("create probe request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	var d Decision
	if err := c.do(req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) authorize(req *http.Request) error {
	if c.sessionID == "" {
		return ErrNotLoggedIn
	}
	req.Header.Set("Authorization", "Bearer "+c.sessionID)
	return nil
}

// do sends req and decodes a JSON body into out. Failure bodies are {"ok":false,"message":...}
// or {"error":...}.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req) //nolint:gosec // operator-provided server URL
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(data) > maxResponseSize {
		return fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, maxResponseSize)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &failure) == nil {
			msg = cmp.Or(failure.Message, failure.Error, msg)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Submitter adapts the client to capture.Transport for one section.
type Submitter struct {
	Client  *Client
	Section string
}

// Submit sends one frame and converts the decision for the capture loop.
func (s *Submitter) Submit(ctx context.Context, frame []byte) (*capture.Result, error) {
	d, err := s.Client.Scan(ctx, s.Section, frame)
	if err != nil {
		return nil, err
	}
	res := &capture.Result{
		Matched:    d.Matched,
		Confidence: d.Confidence,
		Threshold:  d.Threshold,
		VisitID:    d.InsertedVisitID,
		Message:    d.Message,
	}
	if d.Student != nil {
		res.SubjectID = d.Student.ID
		res.SubjectName = d.Student.Name
		res.StudentID = d.Student.StudentID
		res.Category = d.Student.Category
	}
	return res, nil
}

var _ capture.Transport = (*Submitter)(nil)
