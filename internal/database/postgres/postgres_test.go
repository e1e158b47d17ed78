//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kozaktomas/checkpoint/internal/config"
	"github.com/kozaktomas/checkpoint/internal/database"
	"github.com/kozaktomas/checkpoint/internal/web/middleware"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg, nil)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}
	if err := pool.Migrate(ctx); err != nil {
		_ = pool.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		_ = pool.Close()
		_ = container.Terminate(ctx)
	}
	return pool, cleanup
}

// insertSubject seeds one enrolled subject, photo may be nil.
func insertSubject(t *testing.T, pool *Pool, studentID, name string, gymActive bool, photo []byte) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO users (student_id, name, gym_active, photo_data) VALUES ($1, $2, $3, $4) RETURNING id`,
		studentID, name, gymActive, photo,
	).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to insert subject: %v", err)
	}
	return id
}

func TestGalleryRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewGalleryRepository(pool)
	repo.pageSize = 2 // force several pages

	var withPhoto []int64
	for i := range 5 {
		withPhoto = append(withPhoto, insertSubject(t, pool, fmt.Sprintf("S%03d", i), fmt.Sprintf("Student %d", i), i%2 == 0, []byte{0xFF, 0xD8, byte(i)}))
	}
	noPhoto := insertSubject(t, pool, "S999", "No Photo", true, nil)

	t.Run("AscendingAndExcludesMissingPhoto", func(t *testing.T) {
		var got []int64
		for s, err := range repo.Gallery(ctx, "gym_active") {
			if err != nil {
				t.Fatalf("Gallery error: %v", err)
			}
			if s.ID == noPhoto {
				t.Error("subject without photo was yielded")
			}
			got = append(got, s.ID)
		}
		if len(got) != len(withPhoto) {
			t.Fatalf("Expected %d subjects, got %d", len(withPhoto), len(got))
		}
		for i := range got {
			if got[i] != withPhoto[i] {
				t.Errorf("position %d: expected id %d, got %d", i, withPhoto[i], got[i])
			}
		}
	})

	t.Run("EarlyExit", func(t *testing.T) {
		n := 0
		for range repo.Gallery(ctx, "gym_active") {
			n++
			break
		}
		if n != 1 {
			t.Errorf("Expected 1 subject before break, got %d", n)
		}
	})

	t.Run("RejectsUnknownAttribute", func(t *testing.T) {
		var gotErr error
		for _, err := range repo.Gallery(ctx, "photo_data; DROP TABLE users") {
			gotErr = err
		}
		if gotErr == nil {
			t.Fatal("expected error for unknown attribute")
		}
	})

	t.Run("GetSubject", func(t *testing.T) {
		s, err := repo.GetSubject(ctx, withPhoto[0], "gym_active")
		if err != nil {
			t.Fatalf("GetSubject error: %v", err)
		}
		if s == nil || !s.Category || s.Name != "Student 0" {
			t.Errorf("unexpected subject: %+v", s)
		}

		missing, err := repo.GetSubject(ctx, 424242, "gym_active")
		if err != nil {
			t.Fatalf("GetSubject error: %v", err)
		}
		if missing != nil {
			t.Error("Expected nil for missing subject")
		}
	})

	t.Run("ReferenceImage", func(t *testing.T) {
		img, err := repo.ReferenceImage(ctx, noPhoto)
		if err != nil {
			t.Fatalf("ReferenceImage error: %v", err)
		}
		if img != nil {
			t.Error("Expected nil image")
		}
	})
}

func TestVisitRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewVisitRepository(pool)
	subjectID := insertSubject(t, pool, "V001", "Visitor", true, []byte{1})

	start := time.Now().Add(-time.Minute)
	var last *database.Visit
	for i := range 3 {
		v, err := repo.InsertVisit(ctx, database.NewVisit{
			SubjectID:   subjectID,
			StudentID:   "V001",
			SubjectName: "Visitor",
			Category:    i != 1,
			Section:     "gym",
		})
		if err != nil {
			t.Fatalf("InsertVisit error: %v", err)
		}
		if v.ID == 0 || v.CreatedAt.IsZero() {
			t.Errorf("Expected server assigned id and created_at, got %+v", v)
		}
		last = v
	}
	if _, err := repo.InsertVisit(ctx, database.NewVisit{SubjectID: subjectID, StudentID: "V001", SubjectName: "Visitor", Section: "mess"}); err != nil {
		t.Fatalf("InsertVisit error: %v", err)
	}

	visits, err := repo.RecentVisits(ctx, "gym", 2)
	if err != nil {
		t.Fatalf("RecentVisits error: %v", err)
	}
	if len(visits) != 2 {
		t.Fatalf("Expected 2 visits, got %d", len(visits))
	}
	if visits[0].ID != last.ID {
		t.Errorf("Expected newest visit %d first, got %d", last.ID, visits[0].ID)
	}

	totals, err := repo.CountVisitsSince(ctx, "gym", start)
	if err != nil {
		t.Fatalf("CountVisitsSince error: %v", err)
	}
	if totals.Total != 3 || totals.WithAttribute != 2 || totals.WithoutAttribute != 1 {
		t.Errorf("unexpected totals: %+v", totals)
	}
}

func TestSessionRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewSessionRepository(pool)
	now := time.Now()

	live := &middleware.Session{ID: "live", StaffID: 1, Username: "op", Section: "gym", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	expired := &middleware.Session{ID: "old", StaffID: 1, Username: "op", Section: "gym", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	for _, s := range []*middleware.Session{live, expired} {
		if err := repo.Save(ctx, s); err != nil {
			t.Fatalf("Save error: %v", err)
		}
	}

	got, err := repo.Get(ctx, "live")
	if err != nil || got == nil || got.Section != "gym" {
		t.Fatalf("Get live = %+v, %v", got, err)
	}
	if got, _ := repo.Get(ctx, "old"); got != nil {
		t.Error("expired session returned")
	}

	n, err := repo.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired error: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 expired session deleted, got %d", n)
	}
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("Failed to get applied migrations: %v", err)
	}

	expected := []string{"001_initial_schema.sql", "002_sessions.sql"}
	if len(applied) != len(expected) {
		t.Fatalf("Expected %d migrations, got %d", len(expected), len(applied))
	}
	for i := range expected {
		if applied[i] != expected[i] {
			t.Errorf("Migration %d: expected '%s', got '%s'", i, expected[i], applied[i])
		}
	}

	// Second run is a no-op.
	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("re-running migrations: %v", err)
	}
}
