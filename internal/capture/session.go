// Package capture runs the client-side continuous capture loop at a checkpoint.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/checkpoint/internal/config"
	"github.com/kozaktomas/checkpoint/internal/logger"
)

var (
	// ErrCameraUnavailable is returned when the camera cannot be opened.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrInvalidState is returned for a transition the current state does not allow.
	ErrInvalidState = errors.New("invalid capture session state")
)

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateCameraStarting
	StateActive
	// StateResuming keeps the camera open with scanning paused.
	StateResuming
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCameraStarting:
		return "camera_starting"
	case StateActive:
		return "active"
	case StateResuming:
		return "resuming"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Camera produces encoded frames.
type Camera interface {
	Open(ctx context.Context) error
	Capture(ctx context.Context) ([]byte, error)
	Close() error
}

// Result is the server's decision for one probe as seen by the client.
type Result struct {
	Matched     bool
	SubjectID   int64
	SubjectName string
	StudentID   string
	Category    string
	Confidence  float64
	Threshold   float64
	VisitID     *int64
	Message     string
}

// Transport submits one probe and returns the decision.
type Transport interface {
	Submit(ctx context.Context, frame []byte) (*Result, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, frame []byte) (*Result, error)

// Submit calls f.
func (f TransportFunc) Submit(ctx context.Context, frame []byte) (*Result, error) {
	return f(ctx, frame)
}

// EventKind classifies session events.
type EventKind int

const (
	EventStateChanged EventKind = iota
	// EventMatched is an accepted match, shown to the operator.
	EventMatched
	// EventSuppressed is a match of a subject already confirmed within the debounce window.
	EventSuppressed
	EventNoMatch
	EventError
)

// Event is delivered to Options.OnEvent from the capture loop or from Start/Stop.
type Event struct {
	Kind   EventKind
	State  State
	Result *Result
	Err    error
}

// Options tunes a Session.
type Options struct {
	Interval     time.Duration
	WarmUp       time.Duration
	Cooldown     time.Duration
	Debounce     time.Duration
	MaxDimension int
	OnEvent      func(Event)
	Logger       *logger.Logger
}

// OptionsFromConfig maps capture configuration onto Options.
func OptionsFromConfig(cfg config.CaptureConfig) Options {
	return Options{
		Interval:     cfg.Interval,
		WarmUp:       cfg.WarmUp,
		Cooldown:     cfg.Cooldown,
		Debounce:     cfg.Debounce,
		MaxDimension: cfg.MaxDimension,
	}
}

// Session owns the camera and the capture timer. Probes are strictly serialized.
// Stop releases the camera and cancels every wait; a response that arrives after
// Stop or Pause is discarded.
type Session struct {
	camera    Camera
	transport Transport
	tracker   *Tracker
	opts      Options
	log       *logger.Logger

	// wait blocks for d or until ctx is done; false means the session is ending.
	wait func(ctx context.Context, d time.Duration) bool
	now  func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64
	cameraOpen bool
	cancel     context.CancelFunc
	resumed    chan struct{} // closed on Resume or Stop while paused
	done       chan struct{}
}

// NewSession creates an idle session.
func NewSession(camera Camera, transport Transport, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Session{
		camera:    camera,
		transport: transport,
		tracker:   NewTracker(opts.Debounce, 0),
		opts:      opts,
		log:       log,
		wait:      waitFor,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

func waitFor(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the capture loop has exited, or when Start fails.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) emit(ev Event) {
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(ev)
	}
}

// Start opens the camera and begins the capture loop after the warm-up delay.
// If the camera cannot be opened the session ends in StateStopped.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidState, st)
	}
	s.state = StateCameraStarting
	s.mu.Unlock()
	s.emit(Event{Kind: EventStateChanged, State: StateCameraStarting})

	if err := s.camera.Open(ctx); err != nil {
		err = fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
		s.mu.Lock()
		stoppedMeanwhile := s.state == StateStopped
		s.state = StateStopped
		s.mu.Unlock()
		close(s.done)
		if !stoppedMeanwhile {
			s.emit(Event{Kind: EventError, State: StateStopped, Err: err})
			s.emit(Event{Kind: EventStateChanged, State: StateStopped})
		}
		return err
	}

	s.mu.Lock()
	if s.state != StateCameraStarting {
		// Stopped while the camera was opening; the camera was never handed to the session.
		s.mu.Unlock()
		if err := s.camera.Close(); err != nil {
			s.log.Warn("closing camera", "error", err)
		}
		close(s.done)
		return fmt.Errorf("%w: stopped during start", ErrInvalidState)
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.cameraOpen = true
	s.state = StateActive
	gen := s.generation
	s.mu.Unlock()
	s.emit(Event{Kind: EventStateChanged, State: StateActive})

	go s.run(loopCtx, gen)
	return nil
}

// Pause keeps the camera open but stops submitting probes.
func (s *Session) Pause() error {
	s.mu.Lock()
	if s.state != StateActive {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: pause from %s", ErrInvalidState, st)
	}
	s.state = StateResuming
	s.resumed = make(chan struct{})
	s.mu.Unlock()
	s.emit(Event{Kind: EventStateChanged, State: StateResuming})
	return nil
}

// Resume continues scanning after Pause.
func (s *Session) Resume() error {
	s.mu.Lock()
	if s.state != StateResuming {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: resume from %s", ErrInvalidState, st)
	}
	s.state = StateActive
	close(s.resumed)
	s.resumed = nil
	s.mu.Unlock()
	s.emit(Event{Kind: EventStateChanged, State: StateActive})
	return nil
}

// Stop cancels pending waits, releases the camera and clears debounce state.
// It does not wait for an in-flight request. Calling Stop again is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = StateStopped
	s.generation++
	if s.cancel != nil {
		s.cancel()
	}
	if s.resumed != nil {
		close(s.resumed)
		s.resumed = nil
	}
	release := s.cameraOpen
	s.cameraOpen = false
	s.mu.Unlock()

	s.tracker.Reset()
	if release {
		if err := s.camera.Close(); err != nil {
			s.log.Warn("closing camera", "error", err)
		}
	}
	if prev == StateIdle {
		close(s.done)
	}
	s.emit(Event{Kind: EventStateChanged, State: StateStopped})
}

// current reports whether gen is still the live generation and the session is scanning.
func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen && s.state == StateActive
}

// waitActive blocks while paused. It returns false once the session has stopped.
func (s *Session) waitActive(ctx context.Context, gen uint64) bool {
	for {
		s.mu.Lock()
		if s.generation != gen || s.state == StateStopped {
			s.mu.Unlock()
			return false
		}
		if s.state == StateActive {
			s.mu.Unlock()
			return true
		}
		resumed := s.resumed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return false
		case <-resumed:
		}
	}
}

func (s *Session) run(ctx context.Context, gen uint64) {
	defer close(s.done)

	if !s.wait(ctx, s.opts.WarmUp) {
		return
	}
	for {
		if !s.waitActive(ctx, gen) {
			return
		}
		next := s.step(ctx, gen)
		if !s.wait(ctx, next) {
			return
		}
	}
}

// step captures and submits one probe and returns how long to wait before the next.
func (s *Session) step(ctx context.Context, gen uint64) time.Duration {
	frame, err := s.camera.Capture(ctx)
	if err == nil {
		frame, err = NormalizeFrame(frame, s.opts.MaxDimension)
	}
	if err != nil {
		if s.current(gen) {
			s.log.Warn("frame capture failed", "error", err)
			s.emit(Event{Kind: EventError, State: StateActive, Err: fmt.Errorf("capture frame: %w", err)})
		}
		return s.opts.Interval
	}

	// The request is allowed to finish after Stop; its result is dropped below.
	res, err := s.transport.Submit(context.WithoutCancel(ctx), frame)
	if !s.current(gen) {
		return s.opts.Interval
	}
	if err != nil {
		s.log.Warn("probe submission failed", "error", err)
		s.emit(Event{Kind: EventError, State: StateActive, Err: err})
		return s.opts.Interval
	}
	if !res.Matched {
		s.emit(Event{Kind: EventNoMatch, State: StateActive, Result: res})
		return s.opts.Interval
	}
	if !s.tracker.Allow(res.SubjectID, s.now()) {
		s.emit(Event{Kind: EventSuppressed, State: StateActive, Result: res})
		return s.opts.Interval
	}
	s.emit(Event{Kind: EventMatched, State: StateActive, Result: res})
	return s.opts.Cooldown
}
