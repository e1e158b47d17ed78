package database

import (
	"time"
)

// Subject is an enrolled person as seen by the matching engine.
// Enrollment is owned by an external subsystem; this core only reads subjects.
type Subject struct {
	ID        int64
	StudentID string // institution-issued identifier (barcode value)
	Name      string
	// Category is the value of the section attribute (hostelite, gym_active, ...)
	// selected when the subject was read.
	Category       bool
	ReferenceImage []byte
}

// HasReferenceImage reports whether the subject can take part in a gallery scan.
func (s *Subject) HasReferenceImage() bool {
	return len(s.ReferenceImage) > 0
}

// Visit is an immutable ledger entry recording that a subject was identified at a section.
type Visit struct {
	ID          int64
	SubjectID   int64
	StudentID   string
	SubjectName string
	Category    bool
	Section     string
	OperatorID  *int64 // staff member who ran the scan, if known
	CreatedAt   time.Time
}

// NewVisit carries the fields of a visit before it is stored.
type NewVisit struct {
	SubjectID   int64
	StudentID   string
	SubjectName string
	Category    bool
	Section     string
	OperatorID  *int64
}

// VisitTotals summarises visits for a section over a period.
type VisitTotals struct {
	Total            int
	WithAttribute    int
	WithoutAttribute int
}

// StaffMember is an operator account bound to one section.
type StaffMember struct {
	ID           int64
	Username     string
	Section      string
	PasswordHash string
}
