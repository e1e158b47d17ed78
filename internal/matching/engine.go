// Package matching identifies a probe image against the enrollment gallery.
package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/checkpoint/internal/config"
	"github.com/kozaktomas/checkpoint/internal/constants"
	"github.com/kozaktomas/checkpoint/internal/database"
	"github.com/kozaktomas/checkpoint/internal/ledger"
	"github.com/kozaktomas/checkpoint/internal/logger"
	"github.com/kozaktomas/checkpoint/internal/metrics"
	"github.com/kozaktomas/checkpoint/internal/oracle"
	"github.com/kozaktomas/checkpoint/internal/section"
)

var (
	ErrForbiddenSection = errors.New("operator is not bound to this section")
	ErrEmptyProbe       = errors.New("probe image is empty")
	ErrSubjectNotFound  = errors.New("target subject not found")
	ErrNoReferenceImage = errors.New("target subject has no stored photo")
)

// MessageNoReferenceImages is reported when the gallery has no usable subjects.
const MessageNoReferenceImages = "no reference images"

// MessageNotRecorded annotates a match whose visit could not be stored.
const MessageNotRecorded = "match found but the visit could not be recorded"

// visitWriteTimeout bounds the ledger write once a match has been decided.
const visitWriteTimeout = 10 * time.Second

// Operator is the authenticated staff member submitting a probe.
type Operator struct {
	StaffID int64
	Section string
}

func (o Operator) id() *int64 {
	if o.StaffID == 0 {
		return nil
	}
	id := o.StaffID
	return &id
}

// Decision is the outcome of one identification request.
type Decision struct {
	ScanID  string
	Matched bool
	// Confidence is the accepted score on a match, otherwise the last score observed,
	// or constants.NoConfidence when no comparison produced one.
	Confidence     float64
	BestConfidence float64
	Threshold      float64
	Subject        *database.Subject
	Visit          *database.Visit // nil when unmatched or when the write failed
	Recorded       bool
	Compared       int // oracle calls that returned a confidence
	Skipped        int // candidates skipped after an oracle error
	Message        string
}

// Engine runs the scan-and-decide algorithm.
type Engine struct {
	gallery    database.GalleryReader
	comparator oracle.Comparator
	ledger     *ledger.Ledger
	threshold  float64
	delay      time.Duration
	log        *logger.Logger
	metrics    *metrics.Metrics
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an engine. log and m may be nil.
func NewEngine(
	gallery database.GalleryReader,
	comparator oracle.Comparator,
	visits *ledger.Ledger,
	cfg config.MatchingConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		gallery:    gallery,
		comparator: comparator,
		ledger:     visits,
		threshold:  cfg.Threshold,
		delay:      cfg.CallDelay,
		log:        log,
		metrics:    m,
		sleep:      sleepContext,
	}
}

// Threshold returns the configured match threshold.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Engine) authorize(op Operator, sec section.Section, probe []byte) error {
	if op.Section != sec.ID {
		return fmt.Errorf("%w: %s", ErrForbiddenSection, sec.ID)
	}
	if len(probe) == 0 {
		return ErrEmptyProbe
	}
	// Checked before the gallery so an empty gallery cannot hide missing credentials.
	if !oracle.Ready(e.comparator) {
		return oracle.ErrNotConfigured
	}
	return nil
}

// Identify scans the gallery of sec in ascending subject order and accepts the
// first candidate whose confidence reaches the threshold. Oracle failures skip the
// candidate; only a missing oracle configuration aborts the scan.
func (e *Engine) Identify(ctx context.Context, probe []byte, sec section.Section, op Operator) (*Decision, error) {
	if err := e.authorize(op, sec, probe); err != nil {
		return nil, err
	}

	start := time.Now()
	d := &Decision{
		ScanID:         uuid.NewString(),
		Confidence:     constants.NoConfidence,
		BestConfidence: constants.NoConfidence,
		Threshold:      e.threshold,
	}
	log := e.log.With("scan_id", d.ScanID, "section", sec.ID)

	match, candidates, err := e.scan(ctx, log, probe, sec, d)
	if err != nil {
		e.metrics.ObserveScan(sec.ID, metrics.OutcomeError, time.Since(start))
		return nil, err
	}

	switch {
	case candidates == 0:
		d.Message = MessageNoReferenceImages
		e.metrics.ObserveScan(sec.ID, metrics.OutcomeEmptyGallery, time.Since(start))
		return d, nil
	case match == nil:
		log.Info("no match", "candidates", candidates, "compared", d.Compared, "skipped", d.Skipped, "confidence", d.Confidence)
		e.metrics.ObserveScan(sec.ID, metrics.OutcomeNoMatch, time.Since(start))
		return d, nil
	}

	d.Matched = true
	d.Subject = match
	e.record(ctx, log, d, sec, op)
	log.Info("match", "subject_id", match.ID, "confidence", d.Confidence, "compared", d.Compared, "recorded", d.Recorded)
	e.metrics.ObserveScan(sec.ID, metrics.OutcomeMatched, time.Since(start))
	return d, nil
}

// scan pulls candidates until the first accepted one. It returns the match (nil if none)
// and the number of candidates that had a reference image.
func (e *Engine) scan(
	ctx context.Context, log *logger.Logger, probe []byte, sec section.Section, d *Decision,
) (*database.Subject, int, error) {
	candidates := 0
	for subject, err := range e.gallery.Gallery(ctx, sec.Attribute) {
		if err != nil {
			return nil, candidates, fmt.Errorf("load gallery: %w", err)
		}
		if !subject.HasReferenceImage() {
			continue
		}
		if candidates > 0 {
			if err := e.sleep(ctx, e.delay); err != nil {
				return nil, candidates, err
			}
		}
		candidates++

		confidence, err := e.comparator.Compare(ctx, probe, subject.ReferenceImage)
		if err != nil {
			if errors.Is(err, oracle.ErrNotConfigured) {
				return nil, candidates, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, candidates, ctxErr
			}
			d.Skipped++
			log.Warn("comparison failed, skipping candidate", "subject_id", subject.ID, "error", err)
			continue
		}

		d.Compared++
		d.Confidence = confidence
		if confidence > d.BestConfidence {
			d.BestConfidence = confidence
		}
		if confidence >= e.threshold {
			return &subject, candidates, nil
		}
	}
	return nil, candidates, nil
}

// record writes the visit for a decided match. A failed write leaves the decision matched
// but unrecorded.
func (e *Engine) record(ctx context.Context, log *logger.Logger, d *Decision, sec section.Section, op Operator) {
	// The decision is final, so the write is not tied to the caller staying connected.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), visitWriteTimeout)
	defer cancel()

	visit, err := e.ledger.RecordVisit(wctx, *d.Subject, sec.ID, op.id())
	if err != nil {
		log.Error("match not recorded", "subject_id", d.Subject.ID, "error", err)
		d.Message = MessageNotRecorded
		return
	}
	d.Visit = visit
	d.Recorded = true
}

// CompareOne compares the probe against one subject's reference image, skipping the scan.
// Oracle errors are returned to the caller. A response without confidence is an unmatched decision.
func (e *Engine) CompareOne(ctx context.Context, probe []byte, subjectID int64, sec section.Section, op Operator) (*Decision, error) {
	if err := e.authorize(op, sec, probe); err != nil {
		return nil, err
	}

	subject, err := e.gallery.GetSubject(ctx, subjectID, sec.Attribute)
	if err != nil {
		return nil, fmt.Errorf("load target subject: %w", err)
	}
	if subject == nil {
		return nil, ErrSubjectNotFound
	}
	if !subject.HasReferenceImage() {
		return nil, ErrNoReferenceImage
	}

	d := &Decision{
		ScanID:         uuid.NewString(),
		Confidence:     constants.NoConfidence,
		BestConfidence: constants.NoConfidence,
		Threshold:      e.threshold,
		Subject:        subject,
	}
	log := e.log.With("scan_id", d.ScanID, "section", sec.ID, "subject_id", subject.ID)

	confidence, err := e.comparator.Compare(ctx, probe, subject.ReferenceImage)
	switch {
	case errors.Is(err, oracle.ErrNoConfidence):
		log.Info("targeted comparison without confidence")
		return d, nil
	case err != nil:
		return nil, fmt.Errorf("compare with target: %w", err)
	}

	d.Compared = 1
	d.Confidence = confidence
	d.BestConfidence = confidence
	if confidence >= e.threshold {
		d.Matched = true
		e.record(ctx, log, d, sec, op)
	}
	log.Info("targeted comparison", "confidence", confidence, "matched", d.Matched, "recorded", d.Recorded)
	return d, nil
}
