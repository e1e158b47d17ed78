package handlers

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/checkpoint/internal/constants"
	"github.com/kozaktomas/checkpoint/internal/ledger"
	"github.com/kozaktomas/checkpoint/internal/logger"
	"github.com/kozaktomas/checkpoint/internal/matching"
	"github.com/kozaktomas/checkpoint/internal/oracle"
	"github.com/kozaktomas/checkpoint/internal/section"
	"github.com/kozaktomas/checkpoint/internal/web/middleware"
)

const (
	errProbeRequired  = "Probe image (image) is required"
	errTargetRequired = "user_id (target) is required"
)

// SectionsHandler serves the per-section scan, compare and ledger endpoints.
type SectionsHandler struct {
	catalog *section.Catalog
	engine  *matching.Engine
	ledger  *ledger.Ledger
	log     *logger.Logger
	now     func() time.Time
}

// NewSectionsHandler creates a new sections handler
func NewSectionsHandler(
	catalog *section.Catalog, engine *matching.Engine, visits *ledger.Ledger, log *logger.Logger,
) *SectionsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SectionsHandler{
		catalog: catalog,
		engine:  engine,
		ledger:  visits,
		log:     log,
		now:     time.Now,
	}
}

// List returns the configured sections and the caller's own section.
func (h *SectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	current := ""
	if session := middleware.GetSessionFromContext(r.Context()); session != nil {
		current = session.Section
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"sections": h.catalog.All(),
		"current":  current,
	})
}

// authorizeSection resolves the {section} URL parameter and checks it against the
// session. It writes the failure response itself and reports whether to continue.
func (h *SectionsHandler) authorizeSection(w http.ResponseWriter, r *http.Request) (section.Section, matching.Operator, bool) {
	sec, err := h.catalog.Lookup(chi.URLParam(r, "section"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Unknown section")
		return section.Section{}, matching.Operator{}, false
	}
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return section.Section{}, matching.Operator{}, false
	}
	if session.Section != sec.ID {
		respondError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: not %s staff", sec.ID))
		return section.Section{}, matching.Operator{}, false
	}
	return sec, matching.Operator{StaffID: session.StaffID, Section: session.Section}, true
}

// liftWriteDeadline removes the server WriteTimeout for a response produced by a gallery scan.
// Writers that cannot change deadlines (test recorders) are left as they are.
func liftWriteDeadline(w http.ResponseWriter) {
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
}

// readProbe reads the multipart "image" field. It writes the failure response itself.
// The body limit leaves room for the multipart envelope around a maximum-size image.
func readProbe(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxProbeSize+constants.MultipartOverhead)
	if err := r.ParseMultipartForm(constants.MaxProbeSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "Probe image is too large")
			return nil, false
		}
		respondError(w, http.StatusBadRequest, errProbeRequired)
		return nil, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, errProbeRequired)
		return nil, false
	}
	defer file.Close()
	if header.Size > constants.MaxProbeSize {
		respondError(w, http.StatusRequestEntityTooLarge, "Probe image is too large")
		return nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		respondError(w, http.StatusBadRequest, errProbeRequired)
		return nil, false
	}
	return data, true
}

// respondMatchError maps engine and oracle errors onto HTTP statuses.
func (h *SectionsHandler) respondMatchError(w http.ResponseWriter, sec section.Section, err error) {
	var serviceErr *oracle.ServiceError
	switch {
	case errors.Is(err, matching.ErrForbiddenSection):
		respondError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: not %s staff", sec.ID))
	case errors.Is(err, matching.ErrEmptyProbe):
		respondError(w, http.StatusBadRequest, errProbeRequired)
	case errors.Is(err, matching.ErrSubjectNotFound):
		respondError(w, http.StatusNotFound, "Target user not found")
	case errors.Is(err, matching.ErrNoReferenceImage):
		respondError(w, http.StatusNotFound, "Target user has no stored photo")
	case errors.Is(err, oracle.ErrNotConfigured):
		h.log.Error("comparison service not configured", "section", sec.ID)
		respondError(w, http.StatusServiceUnavailable, "Comparison service is not configured")
	case errors.As(err, &serviceErr):
		h.log.Warn("comparison service error", "section", sec.ID, "error", err)
		respondError(w, http.StatusBadGateway, "Comparison service error: "+serviceErr.Message)
	case errors.Is(err, oracle.ErrTransport):
		h.log.Warn("comparison service unreachable", "section", sec.ID, "error", err)
		respondError(w, http.StatusBadGateway, "Comparison service unavailable")
	default:
		h.log.Error("identification failed", "section", sec.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "Identification failed")
	}
}

// Scan identifies the uploaded probe against the section gallery.
func (h *SectionsHandler) Scan(w http.ResponseWriter, r *http.Request) {
	sec, op, ok := h.authorizeSection(w, r)
	if !ok {
		return
	}
	probe, ok := readProbe(w, r)
	if !ok {
		return
	}

	liftWriteDeadline(w)
	d, err := h.engine.Identify(r.Context(), probe, sec, op)
	if err != nil {
		h.respondMatchError(w, sec, err)
		return
	}
	respondJSON(w, http.StatusOK, newDecisionResponse(d, sec))
}

// Compare checks the uploaded probe against one subject given by user_id (or student_id).
func (h *SectionsHandler) Compare(w http.ResponseWriter, r *http.Request) {
	sec, op, ok := h.authorizeSection(w, r)
	if !ok {
		return
	}
	probe, ok := readProbe(w, r)
	if !ok {
		return
	}

	raw := cmp.Or(strings.TrimSpace(r.FormValue("user_id")), strings.TrimSpace(r.FormValue("student_id")))
	if raw == "" {
		respondError(w, http.StatusBadRequest, errTargetRequired)
		return
	}
	subjectID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || subjectID <= 0 {
		respondError(w, http.StatusBadRequest, "user_id must be a positive integer")
		return
	}

	liftWriteDeadline(w)
	d, err := h.engine.CompareOne(r.Context(), probe, subjectID, sec, op)
	if err != nil {
		h.respondMatchError(w, sec, err)
		return
	}
	resp := newDecisionResponse(d, sec)
	resp.Compared, resp.Skipped = 0, 0
	respondJSON(w, http.StatusOK, resp)
}

// Visits lists the section's newest visits, optionally filtered by q.
func (h *SectionsHandler) Visits(w http.ResponseWriter, r *http.Request) {
	sec, _, ok := h.authorizeSection(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))

	visits, err := h.ledger.SearchRecent(r.Context(), sec.ID, limit, q)
	if err != nil {
		h.log.Error("recent visits failed", "section", sec.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to load visits")
		return
	}

	payload := make([]*visitPayload, 0, len(visits))
	for i := range visits {
		payload = append(payload, newVisitPayload(&visits[i], sec))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"section": sec.ID,
		"visits":  payload,
	})
}

type statsResponse struct {
	OK               bool      `json:"ok"`
	Section          string    `json:"section"`
	Since            time.Time `json:"since"`
	Total            int       `json:"total"`
	WithAttribute    int       `json:"with_attribute"`
	WithoutAttribute int       `json:"without_attribute"`
	PositiveLabel    string    `json:"positive_label"`
	NegativeLabel    string    `json:"negative_label"`
}

// Stats returns today's visit totals split by the section attribute.
func (h *SectionsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	sec, _, ok := h.authorizeSection(w, r)
	if !ok {
		return
	}

	since := ledger.StartOfDay(h.now())
	totals, err := h.ledger.Totals(r.Context(), sec.ID, since)
	if err != nil {
		h.log.Error("visit totals failed", "section", sec.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}
	respondJSON(w, http.StatusOK, statsResponse{
		OK:               true,
		Section:          sec.ID,
		Since:            since,
		Total:            totals.Total,
		WithAttribute:    totals.WithAttribute,
		WithoutAttribute: totals.WithoutAttribute,
		PositiveLabel:    sec.PositiveLabel,
		NegativeLabel:    sec.NegativeLabel,
	})
}
