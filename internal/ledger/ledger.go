// Package ledger appends and queries the visit history of each section.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/checkpoint/internal/constants"
	"github.com/kozaktomas/checkpoint/internal/database"
	"github.com/kozaktomas/checkpoint/internal/logger"
	"github.com/kozaktomas/checkpoint/internal/metrics"
)

// Ledger is the append-only visit log. Visits are never updated or deleted.
type Ledger struct {
	store   database.VisitWriter
	log     *logger.Logger
	metrics *metrics.Metrics
}

// New creates a ledger over store. log and m may be nil.
func New(store database.VisitWriter, log *logger.Logger, m *metrics.Metrics) *Ledger {
	if log == nil {
		log = logger.Nop()
	}
	return &Ledger{store: store, log: log, metrics: m}
}

// RecordVisit writes exactly one visit for a confirmed match and returns the stored row.
// The write is never retried; a failure is reported to the caller as is.
func (l *Ledger) RecordVisit(ctx context.Context, subject database.Subject, section string, operatorID *int64) (*database.Visit, error) {
	visit, err := l.store.InsertVisit(ctx, database.NewVisit{
		SubjectID:   subject.ID,
		StudentID:   subject.StudentID,
		SubjectName: subject.Name,
		Category:    subject.Category,
		Section:     section,
		OperatorID:  operatorID,
	})
	l.metrics.IncrementVisit(section, err == nil)
	if err != nil {
		l.log.Error("visit write failed", "section", section, "subject_id", subject.ID, "error", err)
		return nil, fmt.Errorf("record visit: %w", err)
	}
	l.log.Info("visit recorded", "section", section, "subject_id", subject.ID, "visit_id", visit.ID)
	return visit, nil
}

// ClampLimit maps a requested page size onto [1, MaxRecentVisits]; zero or less means the default.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return constants.DefaultRecentVisits
	case limit > constants.MaxRecentVisits:
		return constants.MaxRecentVisits
	default:
		return limit
	}
}

// RecentVisits returns the newest visits for a section, newest first.
func (l *Ledger) RecentVisits(ctx context.Context, section string, limit int) ([]database.Visit, error) {
	visits, err := l.store.RecentVisits(ctx, section, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("recent visits: %w", err)
	}
	return visits, nil
}

// SearchRecent filters the most recent MaxRecentVisits by subject name or student id,
// returning at most limit matches.
func (l *Ledger) SearchRecent(ctx context.Context, section string, limit int, q string) ([]database.Visit, error) {
	if q == "" {
		return l.RecentVisits(ctx, section, limit)
	}
	visits, err := l.store.RecentVisits(ctx, section, constants.MaxRecentVisits)
	if err != nil {
		return nil, fmt.Errorf("recent visits: %w", err)
	}
	matches := Search(visits, q)
	if n := ClampLimit(limit); len(matches) > n {
		matches = matches[:n]
	}
	return matches, nil
}

// Totals counts a section's visits since the given time.
func (l *Ledger) Totals(ctx context.Context, section string, since time.Time) (database.VisitTotals, error) {
	t, err := l.store.CountVisitsSince(ctx, section, since)
	if err != nil {
		return database.VisitTotals{}, fmt.Errorf("visit totals: %w", err)
	}
	return t, nil
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
