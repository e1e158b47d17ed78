// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/checkpoint/internal/database"
)

// MockGalleryReader is an in-memory database.GalleryReader.
// Subjects are stored with every attribute so sections can be switched per call.
type MockGalleryReader struct {
	mu       sync.RWMutex
	subjects map[int64]*mockSubject

	// Yield subjects without a reference image too, as a misbehaving backend would
	Unfiltered bool

	// Error injection
	GalleryError        error
	GalleryErrorAfter   int // number of subjects yielded before GalleryError is returned
	GetSubjectError     error
	ReferenceImageError error

	// Pulled counts subjects handed to Gallery consumers
	Pulled int
}

type mockSubject struct {
	subject    database.Subject
	attributes map[string]bool
}

// NewMockGalleryReader creates a new mock gallery reader
func NewMockGalleryReader() *MockGalleryReader {
	return &MockGalleryReader{subjects: make(map[int64]*mockSubject)}
}

// AddSubject adds a subject with the given attribute values
func (m *MockGalleryReader) AddSubject(s database.Subject, attributes map[string]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if attributes == nil {
		attributes = map[string]bool{}
	}
	m.subjects[s.ID] = &mockSubject{subject: s, attributes: attributes}
}

func (m *MockGalleryReader) resolve(ms *mockSubject, attribute string) database.Subject {
	s := ms.subject
	s.Category = ms.attributes[attribute]
	return s
}

// Gallery yields subjects in ascending id order
func (m *MockGalleryReader) Gallery(ctx context.Context, attribute string) iter.Seq2[database.Subject, error] {
	return func(yield func(database.Subject, error) bool) {
		m.mu.RLock()
		ids := make([]int64, 0, len(m.subjects))
		for id := range m.subjects {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		snapshot := make([]database.Subject, 0, len(ids))
		for _, id := range ids {
			ms := m.subjects[id]
			if !m.Unfiltered && !ms.subject.HasReferenceImage() {
				continue
			}
			snapshot = append(snapshot, m.resolve(ms, attribute))
		}
		m.mu.RUnlock()

		for i, s := range snapshot {
			if m.GalleryError != nil && i == m.GalleryErrorAfter {
				yield(database.Subject{}, m.GalleryError)
				return
			}
			if err := ctx.Err(); err != nil {
				yield(database.Subject{}, err)
				return
			}
			m.mu.Lock()
			m.Pulled++
			m.mu.Unlock()
			if !yield(s, nil) {
				return
			}
		}
		if m.GalleryError != nil && m.GalleryErrorAfter >= len(snapshot) {
			yield(database.Subject{}, m.GalleryError)
		}
	}
}

// GetSubject returns a subject by id
func (m *MockGalleryReader) GetSubject(ctx context.Context, id int64, attribute string) (*database.Subject, error) {
	if m.GetSubjectError != nil {
		return nil, m.GetSubjectError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.subjects[id]
	if !ok {
		return nil, nil
	}
	s := m.resolve(ms, attribute)
	return &s, nil
}

// ReferenceImage returns a subject's image or nil
func (m *MockGalleryReader) ReferenceImage(ctx context.Context, id int64) ([]byte, error) {
	if m.ReferenceImageError != nil {
		return nil, m.ReferenceImageError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.subjects[id]
	if !ok {
		return nil, nil
	}
	return ms.subject.ReferenceImage, nil
}

// MockVisitWriter is an in-memory append-only ledger
type MockVisitWriter struct {
	mu     sync.RWMutex
	visits []database.Visit
	nextID int64
	now    func() time.Time

	// Error injection
	InsertError error
	RecentError error
	CountError  error
}

// NewMockVisitWriter creates a new mock visit ledger
func NewMockVisitWriter() *MockVisitWriter {
	return &MockVisitWriter{nextID: 1, now: time.Now}
}

// SetClock replaces the time source used for created_at
func (m *MockVisitWriter) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// InsertVisit appends a visit
func (m *MockVisitWriter) InsertVisit(ctx context.Context, v database.NewVisit) (*database.Visit, error) {
	if m.InsertError != nil {
		return nil, m.InsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	visit := database.Visit{
		ID:          m.nextID,
		SubjectID:   v.SubjectID,
		StudentID:   v.StudentID,
		SubjectName: v.SubjectName,
		Category:    v.Category,
		Section:     v.Section,
		OperatorID:  v.OperatorID,
		CreatedAt:   m.now(),
	}
	m.nextID++
	m.visits = append(m.visits, visit)
	return &visit, nil
}

// RecentVisits returns visits for a section newest first
func (m *MockVisitWriter) RecentVisits(ctx context.Context, section string, limit int) ([]database.Visit, error) {
	if m.RecentError != nil {
		return nil, m.RecentError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.Visit
	for i := len(m.visits) - 1; i >= 0 && len(out) < limit; i-- {
		if m.visits[i].Section == section {
			out = append(out, m.visits[i])
		}
	}
	return out, nil
}

// CountVisitsSince counts visits for a section created at or after since
func (m *MockVisitWriter) CountVisitsSince(ctx context.Context, section string, since time.Time) (database.VisitTotals, error) {
	if m.CountError != nil {
		return database.VisitTotals{}, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var t database.VisitTotals
	for _, v := range m.visits {
		if v.Section != section || v.CreatedAt.Before(since) {
			continue
		}
		t.Total++
		if v.Category {
			t.WithAttribute++
		} else {
			t.WithoutAttribute++
		}
	}
	return t, nil
}

// All returns a copy of every stored visit in insertion order
func (m *MockVisitWriter) All() []database.Visit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.visits)
}

// MockStaffReader is an in-memory staff directory
type MockStaffReader struct {
	mu    sync.RWMutex
	staff map[string]database.StaffMember

	GetError error
}

// NewMockStaffReader creates a new mock staff reader
func NewMockStaffReader() *MockStaffReader {
	return &MockStaffReader{staff: make(map[string]database.StaffMember)}
}

// AddStaff adds a staff member
func (m *MockStaffReader) AddStaff(s database.StaffMember) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staff[s.Section+"/"+s.Username] = s
}

// GetStaff looks up a staff member
func (m *MockStaffReader) GetStaff(ctx context.Context, section, username string) (*database.StaffMember, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.staff[section+"/"+username]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// Compile-time interface checks
var (
	_ database.GalleryReader = (*MockGalleryReader)(nil)
	_ database.VisitWriter   = (*MockVisitWriter)(nil)
	_ database.StaffReader   = (*MockStaffReader)(nil)
)
