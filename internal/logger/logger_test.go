package logger

import "testing"

func TestRedact(t *testing.T) {
	in := []any{"api_key", "k", "section", "gym", "api_secret", "s", "dangling"}
	out := redact(in)

	if len(out) != len(in) {
		t.Fatalf("expected %d values, got %d", len(in), len(out))
	}
	if out[1] != "[REDACTED]" {
		t.Errorf("expected api_key to be redacted, got %v", out[1])
	}
	if out[3] != "gym" {
		t.Errorf("expected section to pass through, got %v", out[3])
	}
	if out[5] != "[REDACTED]" {
		t.Errorf("expected api_secret to be redacted, got %v", out[5])
	}
	if out[6] != "dangling" {
		t.Errorf("expected dangling key to be kept, got %v", out[6])
	}
}

func TestNop(t *testing.T) {
	l := Nop().With("scan_id", "abc")
	l.Info("ignored", "k", 1)
	l.Sync()
}
