package mariadb

import (
	"testing"
	"time"
)

func TestDSNConfig(t *testing.T) {
	mc, err := dsnConfig("enroll:secret@tcp(mariadb:3306)/enrollment?timeout=3s")
	if err != nil {
		t.Fatalf("dsnConfig() error = %v", err)
	}
	if !mc.ParseTime {
		t.Error("expected ParseTime to be forced on")
	}
	if mc.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want DSN value 3s", mc.Timeout)
	}
	if mc.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout = %v, want 30s", mc.ReadTimeout)
	}
	if mc.MaxAllowedPacket < 16<<20 {
		t.Errorf("MaxAllowedPacket = %d, want at least 16MiB", mc.MaxAllowedPacket)
	}
	if mc.Addr != "mariadb:3306" || mc.DBName != "enrollment" {
		t.Errorf("Addr/DBName = %q/%q", mc.Addr, mc.DBName)
	}
}

func TestDSNConfig_Invalid(t *testing.T) {
	for _, dsn := range []string{"", "not a dsn"} {
		if _, err := dsnConfig(dsn); err == nil {
			t.Errorf("dsnConfig(%q) expected error", dsn)
		}
	}
}

func TestColumn(t *testing.T) {
	if got, err := column("gym_active"); err != nil || got != "`gym_active`" {
		t.Errorf("column(gym_active) = %q, %v", got, err)
	}
	if _, err := column("password_hash"); err == nil {
		t.Error("expected non-subject column to be rejected")
	}
}
