package handlers

import (
	"strconv"
	"time"

	"github.com/kozaktomas/checkpoint/internal/constants"
	"github.com/kozaktomas/checkpoint/internal/database"
	"github.com/kozaktomas/checkpoint/internal/matching"
	"github.com/kozaktomas/checkpoint/internal/section"
)

type studentPayload struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	StudentID string `json:"student_id"`
	Attribute string `json:"attribute"`
	Active    bool   `json:"active"`
	Category  string `json:"category"`
	PhotoURL  string `json:"photo_url"`
}

type visitPayload struct {
	ID          int64     `json:"id"`
	SubjectID   int64     `json:"subject_id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	Active      bool      `json:"active"`
	Category    string    `json:"category"`
	Section     string    `json:"section"`
	PhotoPath   string    `json:"photo_path"`
	CreatedAt   time.Time `json:"created_at"`
}

type decisionResponse struct {
	OK              bool            `json:"ok"`
	ScanID          string          `json:"scan_id"`
	Matched         bool            `json:"matched"`
	Confidence      float64         `json:"confidence"`
	BestConfidence  float64         `json:"best_confidence"`
	Threshold       float64         `json:"threshold"`
	Message         string          `json:"message,omitempty"`
	Student         *studentPayload `json:"student,omitempty"`
	InsertedVisitID *int64          `json:"inserted_visit_id"`
	RecentVisit     *visitPayload   `json:"recentVisit,omitempty"`
	Recorded        bool            `json:"recorded"`
	Compared        int             `json:"compared,omitempty"`
	Skipped         int             `json:"skipped,omitempty"`
}

func photoURL(subjectID int64) string {
	return constants.SubjectPhotoPath + strconv.FormatInt(subjectID, 10) + "/photo"
}

func newStudentPayload(s *database.Subject, sec section.Section) *studentPayload {
	return &studentPayload{
		ID:        s.ID,
		Name:      s.Name,
		StudentID: s.StudentID,
		Attribute: sec.Attribute,
		Active:    s.Category,
		Category:  sec.CategoryLabel(s.Category),
		PhotoURL:  photoURL(s.ID),
	}
}

func newVisitPayload(v *database.Visit, sec section.Section) *visitPayload {
	return &visitPayload{
		ID:          v.ID,
		SubjectID:   v.SubjectID,
		StudentID:   v.StudentID,
		StudentName: v.SubjectName,
		Active:      v.Category,
		Category:    sec.CategoryLabel(v.Category),
		Section:     v.Section,
		PhotoPath:   photoURL(v.SubjectID),
		CreatedAt:   v.CreatedAt,
	}
}

// newDecisionResponse shapes a decision. The student is present on a match and,
// for targeted compares, always; scan counters are omitted when zero.
func newDecisionResponse(d *matching.Decision, sec section.Section) decisionResponse {
	resp := decisionResponse{
		OK:             true,
		ScanID:         d.ScanID,
		Matched:        d.Matched,
		Confidence:     d.Confidence,
		BestConfidence: d.BestConfidence,
		Threshold:      d.Threshold,
		Message:        d.Message,
		Recorded:       d.Recorded,
		Compared:       d.Compared,
		Skipped:        d.Skipped,
	}
	if d.Subject != nil {
		resp.Student = newStudentPayload(d.Subject, sec)
	}
	if d.Visit != nil {
		id := d.Visit.ID
		resp.InsertedVisitID = &id
		resp.RecentVisit = newVisitPayload(d.Visit, sec)
	}
	return resp
}
