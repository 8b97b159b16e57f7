package study

import (
	"database/sql/driver"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mawazo/studytrack/core"
)

// Subjects on offer.
const (
	SubjectMaths    = "maths"
	SubjectEnglish  = "english"
	SubjectScience  = "science"
	SubjectMandarin = "mandarin"
)

// Terms a goal can target.
const (
	TermAutumn2025 = "autumn_2025"
	TermSpring2026 = "spring_2026"
	TermSummer2026 = "summer_2026"
)

var (
	subjectNames = map[string]string{
		SubjectMaths:    "Mathematics",
		SubjectEnglish:  "English",
		SubjectScience:  "Science",
		SubjectMandarin: "Mandarin",
	}

	termNames = map[string]string{
		TermAutumn2025: "Autumn 2025",
		TermSpring2026: "Spring 2026",
		TermSummer2026: "Summer 2026",
	}
)

// SubjectDisplayName returns the human readable name of a subject enum value.
func SubjectDisplayName(name string) string {
	if display, ok := subjectNames[name]; ok {
		return display
	}
	return strings.Title(name)
}

// TermDisplayName returns the human readable name of a term enum value.
func TermDisplayName(term string) string {
	if display, ok := termNames[term]; ok {
		return display
	}
	return term
}

// Date is a calendar date (no time component) serialized as "2006-01-02".
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func NewDate(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func Today() Date { return NewDate(time.Now().UTC()) }

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// Value implements driver.Valuer so Date maps to a SQL DATE column.
func (d Date) Value() (driver.Value, error) { return d.Time, nil }

// Scan implements sql.Scanner.
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = NewDate(v)
		return nil
	case nil:
		*d = Date{}
		return nil
	}
	return errors.Errorf("cannot scan %T into Date", src)
}

func (d Date) AddDays(days int) Date { return NewDate(d.Time.AddDate(0, 0, days)) }

// DaysUntil returns the number of whole days from today until d (negative when past).
func (d Date) DaysUntil() int {
	return int(d.Time.Sub(Today().Time).Hours() / 24)
}

type Subject struct {
	ID          string    `json:"id" db:"id"`
	StudentID   string    `json:"student_id" db:"student_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"` // UTC
}

func (s Subject) DisplayName() string { return SubjectDisplayName(s.Name) }

type TermGoal struct {
	ID           string    `json:"id" db:"id"`
	SubjectID    string    `json:"subject_id" db:"subject_id"`
	CurrentLevel string    `json:"current_level" db:"current_level"`
	TargetLevel  string    `json:"target_level" db:"target_level"`
	Term         string    `json:"term" db:"term"`
	Deadline     Date      `json:"deadline" db:"deadline"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"` // UTC
}

func (g TermGoal) DaysRemaining() int { return g.Deadline.DaysUntil() }
func (g TermGoal) IsOverdue() bool    { return g.DaysRemaining() < 0 }

type Feedback struct {
	ID             string    `json:"id" db:"id"`
	SubjectID      string    `json:"subject_id" db:"subject_id"`
	Strengths      string    `json:"strengths" db:"strengths"`
	Weaknesses     string    `json:"weaknesses" db:"weaknesses"`
	AreasToImprove string    `json:"areas_to_improve" db:"areas_to_improve"`
	FeedbackDate   Date      `json:"feedback_date" db:"feedback_date"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"` // UTC
}

type StudySession struct {
	ID          string    `json:"id" db:"id"`
	StudentID   string    `json:"student_id" db:"student_id"`
	SubjectID   string    `json:"subject_id" db:"subject_id"`
	HoursSpent  float64   `json:"hours_spent" db:"hours_spent"`
	SessionDate Date      `json:"session_date" db:"session_date"`
	Notes       string    `json:"notes" db:"notes"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"` // UTC
}

// NewSubject contains information needed to track a new subject.
type NewSubject struct {
	Name        string `json:"name" validate:"required,oneof=maths english science mandarin"`
	Description string `json:"description"`
}

func (ns *NewSubject) Validate(svc *Service, studentID string, excludedIDs ...string) error {
	ns.Name = core.CleanString(ns.Name, true /* lower */)
	ns.Description = core.CleanString(ns.Description)

	if err := core.Validate.Struct(ns); err != nil {
		return err
	}
	return svc.checkSubjectUniqueness(studentID, ns.Name, excludedIDs...)
}

type NewTermGoal struct {
	CurrentLevel string `json:"current_level" validate:"required,max=50"`
	TargetLevel  string `json:"target_level" validate:"required,max=50"`
	Term         string `json:"term" validate:"required,oneof=autumn_2025 spring_2026 summer_2026"`
	Deadline     Date   `json:"deadline" validate:"required"`
}

func (ng *NewTermGoal) Validate() error {
	ng.CurrentLevel = core.CleanString(ng.CurrentLevel)
	ng.TargetLevel = core.CleanString(ng.TargetLevel)
	return core.Validate.Struct(ng)
}

type NewFeedback struct {
	Strengths      string `json:"strengths" validate:"required"`
	Weaknesses     string `json:"weaknesses" validate:"required"`
	AreasToImprove string `json:"areas_to_improve" validate:"required"`
	FeedbackDate   Date   `json:"feedback_date" validate:"required"`
}

func (nf *NewFeedback) Validate() error {
	nf.Strengths = core.CleanString(nf.Strengths)
	nf.Weaknesses = core.CleanString(nf.Weaknesses)
	nf.AreasToImprove = core.CleanString(nf.AreasToImprove)
	return core.Validate.Struct(nf)
}

type NewStudySession struct {
	HoursSpent  float64 `json:"hours_spent" validate:"required,min=0.1,max=24"`
	SessionDate Date    `json:"session_date" validate:"required"`
	Notes       string  `json:"notes"`
}

func (ns *NewStudySession) Validate() error {
	ns.Notes = core.CleanString(ns.Notes)
	return core.Validate.Struct(ns)
}
