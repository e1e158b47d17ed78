package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode test frame: %v", err)
	}
	return buf.Bytes()
}

type fakeCamera struct {
	frame      []byte
	openErr    error
	captureErr atomic.Pointer[error] // returned once
	closes     atomic.Int32
}

func (c *fakeCamera) Open(ctx context.Context) error { return c.openErr }

func (c *fakeCamera) Capture(ctx context.Context) ([]byte, error) {
	if errp := c.captureErr.Swap(nil); errp != nil {
		return nil, *errp
	}
	return c.frame, nil
}

func (c *fakeCamera) Close() error {
	c.closes.Add(1)
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	waits  []time.Duration
}

func (r *recorder) onEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) wait(ctx context.Context, d time.Duration) bool {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	select {
	case <-ctx.Done():
		return false
	case <-time.After(time.Millisecond):
		return true
	}
}

func (r *recorder) kinds(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) stateChanges(state State) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == EventStateChanged && ev.State == state {
			n++
		}
	}
	return n
}

func (r *recorder) waitsSnapshot() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

var testOptions = Options{
	Interval: 1200 * time.Millisecond,
	WarmUp:   600 * time.Millisecond,
	Cooldown: 3 * time.Second,
	Debounce: 10 * time.Second,
}

func newTestSession(t *testing.T, cam Camera, tr Transport) (*Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts := testOptions
	opts.OnEvent = rec.onEvent
	s := NewSession(cam, tr, opts)
	s.wait = rec.wait
	return s, rec
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("capture loop did not exit")
	}
}

func TestSession_MatchExtendsWaitToCooldown(t *testing.T) {
	cam := &fakeCamera{frame: testFrame(t, 32, 24)}
	var s *Session
	var calls atomic.Int32
	s, rec := newTestSession(t, cam, TransportFunc(func(ctx context.Context, frame []byte) (*Result, error) {
		switch calls.Add(1) {
		case 1:
			return &Result{Matched: true, SubjectID: 1}, nil
		case 2:
			return &Result{Matched: false}, nil
		default:
			s.Stop()
			return &Result{Matched: false}, nil
		}
	}))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, s)

	waits := rec.waitsSnapshot()
	want := []time.Duration{testOptions.WarmUp, testOptions.Cooldown, testOptions.Interval}
	if len(waits) < len(want) {
		t.Fatalf("waits = %v, want prefix %v", waits, want)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("wait %d = %v, want %v", i, waits[i], want[i])
		}
	}
	if rec.kinds(EventMatched) != 1 || rec.kinds(EventNoMatch) != 1 {
		t.Errorf("matched=%d nomatch=%d, want 1 and 1", rec.kinds(EventMatched), rec.kinds(EventNoMatch))
	}
}

func TestSession_DebounceSuppressesRepeatedSubject(t *testing.T) {
	cam := &fakeCamera{frame: testFrame(t, 16, 16)}
	var s *Session
	var calls atomic.Int32
	s, rec := newTestSession(t, cam, TransportFunc(func(ctx context.Context, frame []byte) (*Result, error) {
		if calls.Add(1) == 3 {
			s.Stop()
		}
		return &Result{Matched: true, SubjectID: 9, SubjectName: "Ana"}, nil
	}))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, s)

	if got := rec.kinds(EventMatched); got != 1 {
		t.Errorf("matched events = %d, want 1", got)
	}
	if got := rec.kinds(EventSuppressed); got != 1 {
		t.Errorf("suppressed events = %d, want 1", got)
	}
	waits := rec.waitsSnapshot()
	if len(waits) < 3 || waits[2] != testOptions.Interval {
		t.Errorf("suppressed match must wait one interval, waits = %v", waits)
	}
}

func TestSession_StopIsIdempotent(t *testing.T) {
	cam := &fakeCamera{frame: testFrame(t, 16, 16)}
	s, rec := newTestSession(t, cam, TransportFunc(func(ctx context.Context, frame []byte) (*Result, error) {
		return &Result{}, nil
	}))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Stop()
	s.Stop()
	waitDone(t, s)

	if got := cam.closes.Load(); got != 1 {
		t.Errorf("camera closed %d times, want 1", got)
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %s, want stopped", s.State())
	}
	if got := rec.stateChanges(StateStopped); got != 1 {
		t.Errorf("stopped events = %d, want 1", got)
	}
}

func TestSession_StopDuringRequestDiscardsResult(t *testing.T) {
	cam := &fakeCamera{frame: testFrame(t, 16, 16)}
	inflight := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s, rec := newTestSession(t, cam, TransportFunc(func(ctx context.Context, frame []byte) (*Result, error) {
		once.Do(func() { close(inflight) })
		<-release
		if ctx.Err() != nil {
			t.Error("in-flight request context was canceled by Stop")
		}
		return &Result{Matched: true, SubjectID: 3}, nil
	}))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-inflight
	s.Stop()

	if got := cam.closes.Load(); got != 1 {
		t.Errorf("camera must be released while the request is in flight, closes = %d", got)
	}
	close(release)
	waitDone(t, s)

	if got := rec.kinds(EventMatched); got != 0 {
		t.Errorf("late result was shown: %d matched events", got)
	}
}

func TestSession_CameraDenied(t *testing.T) {
	cam := &fakeCamera{openErr: errors.New("permission denied")}
	s, rec := newTestSession(t, cam, TransportFunc(func(ctx context.Context, frame []byte) (*Result, error) {
		t.Error("no probe may be submitted without a camera")
		return nil, nil
	}))

	err := s.Start(context.Background())
	if !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("Start() error = %v, want ErrCameraUnavailable", err)
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %s, want stopped", s.State())
	}
	waitDone(t, s)
	if rec.kinds(EventError) != 1 {
		t.Error("camera denial must surface an error event")
	}

	s.Stop()
	if got := cam.closes.Load(); got != 0 {
		t.Errorf("unopened camera closed %d times", got)
	}
}

func TestSession_TransientErrorsContinue(t *testing.T) {
	cam := &fakeCamera{frame: testFrame(t, 16, 16)}
	captureErr := errors.New("frame not ready")
	cam.captureErr.Store(&captureErr)

	var s *Session
	var calls atomic.Int32
	s, rec := newTestSession(t, cam, TransportFunc(func(ctx context.Context, frame []byte) (*Result, error) {
		if calls.Add(1) == 2 {
			s.Stop()
			return nil, nil
		}
		return nil, errors.New("connection refused")
	}))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, s)

	if got := rec.kinds(EventError); got != 2 {
		t.Errorf("error events = %d, want 2 (capture and transport)", got)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("submissions = %d, want 2", got)
	}
	for i, w := range rec.waitsSnapshot()[1:] {
		if w != testOptions.Interval {
			t.Errorf("wait %d after error = %v, want interval", i+1, w)
		}
	}
}

func TestSession_PauseAndResume(t *testing.T) {
	cam := &fakeCamera{frame: testFrame(t, 16, 16)}
	var s *Session
	var calls atomic.Int32
	s, rec := newTestSession(t, cam, TransportFunc(func(ctx context.Context, frame []byte) (*Result, error) {
		switch calls.Add(1) {
		case 1:
			if err := s.Pause(); err != nil {
				t.Errorf("Pause() error = %v", err)
			}
		case 2:
			s.Stop()
		}
		return &Result{Matched: true, SubjectID: 1}, nil
	}))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for s.State() != StateResuming && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("submissions while paused = %d, want 1", got)
	}
	if rec.kinds(EventMatched) != 0 {
		t.Error("result received after Pause must be discarded")
	}
	if got := cam.closes.Load(); got != 0 {
		t.Error("Pause must keep the camera open")
	}

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	waitDone(t, s)
	if got := calls.Load(); got != 2 {
		t.Errorf("submissions = %d, want 2", got)
	}
}

func TestSession_InvalidTransitions(t *testing.T) {
	cam := &fakeCamera{frame: testFrame(t, 16, 16)}
	s, _ := newTestSession(t, cam, TransportFunc(func(ctx context.Context, frame []byte) (*Result, error) {
		return &Result{}, nil
	}))

	if err := s.Pause(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Pause() from idle error = %v", err)
	}
	if err := s.Resume(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Resume() from idle error = %v", err)
	}

	s.Stop()
	waitDone(t, s)
	if err := s.Start(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Start() after stop error = %v", err)
	}
}

func TestNormalizeFrame(t *testing.T) {
	big := testFrame(t, 400, 200)

	out, err := NormalizeFrame(big, 100)
	if err != nil {
		t.Fatalf("NormalizeFrame() error = %v", err)
	}
	img, format, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("format = %s, want jpeg", format)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Errorf("size = %dx%d, want 100x50", b.Dx(), b.Dy())
	}

	small, err := NormalizeFrame(testFrame(t, 40, 30), 100)
	if err != nil {
		t.Fatalf("NormalizeFrame() error = %v", err)
	}
	img, _, _ = image.Decode(bytes.NewReader(small))
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 30 {
		t.Errorf("small frame resized to %dx%d", b.Dx(), b.Dy())
	}

	if _, err := NormalizeFrame(nil, 100); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("empty frame error = %v", err)
	}
	if _, err := NormalizeFrame([]byte("not an image"), 100); err == nil {
		t.Error("expected decode error")
	}
}
