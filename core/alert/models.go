package alert

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/mawazo/studytrack/core"
)

// Alert kinds.
const (
	KindLowActivity      = "low_activity"
	KindGoalAtRisk       = "goal_at_risk"
	KindMilestone        = "milestone_achieved"
	KindRoadmapCompleted = "roadmap_completed"
	KindStreakBroken     = "streak_broken"
	KindNewFeedback      = "new_feedback"
)

// Alert severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeveritySuccess = "success"
)

var Kinds = []string{
	KindLowActivity, KindGoalAtRisk, KindMilestone,
	KindRoadmapCompleted, KindStreakBroken, KindNewFeedback,
}

// ProgressAlert notifies a parent about a linked student's study progress.
type ProgressAlert struct {
	ID        string      `json:"id" db:"id"`
	ParentID  string      `json:"parent_id" db:"parent_id"`
	StudentID string      `json:"student_id" db:"student_id"`
	Kind      string      `json:"kind" db:"kind"`
	Severity  string      `json:"severity" db:"severity"`
	Title     string      `json:"title" db:"title"`
	Message   string      `json:"message" db:"message"`
	SubjectID null.String `json:"subject_id" db:"subject_id"`
	RoadmapID null.String `json:"roadmap_id" db:"roadmap_id"`
	IsRead    bool        `json:"is_read" db:"is_read"`
	ReadAt    null.Time   `json:"read_at" db:"read_at"`
	IsSent    bool        `json:"is_sent" db:"is_sent"`
	SentAt    null.Time   `json:"sent_at" db:"sent_at"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"` // UTC
}

// QueryFilter narrows a parent's alert listing.
type QueryFilter struct {
	Kind       string `query:"kind" validate:"omitempty,oneof=low_activity goal_at_risk milestone_achieved roadmap_completed streak_broken new_feedback"`
	StudentID  string `query:"student_id"`
	UnreadOnly bool   `query:"unread_only"`
	Limit      int    `query:"limit" validate:"omitempty,min=1,max=50"`
}

func (qf *QueryFilter) Validate() error {
	return core.Validate.Struct(qf)
}

// Match describes an existing-alert lookup used for deduplication.
// Zero-valued fields are ignored; a zero Since means no time bound.
type Match struct {
	ParentID  string
	StudentID string
	Kind      string
	SubjectID string
	RoadmapID string
	Title     string
	Since     time.Time
}
