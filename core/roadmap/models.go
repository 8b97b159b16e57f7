package roadmap

import (
	"time"

	"github.com/pkg/errors"

	"github.com/mawazo/studytrack/core/study"
)

// Step categories.
const (
	CategoryWeakness = "weakness"
	CategoryStrength = "strength"
	CategoryLevelUp  = "level_up"
)

// Step difficulties.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Resource types.
const (
	ResourceVideo       = "video"
	ResourceArticle     = "article"
	ResourceExercise    = "exercise"
	ResourceAIGenerated = "ai_generated"
)

var (
	categoryNames = map[string]string{
		CategoryWeakness: "Address Weakness",
		CategoryStrength: "Build on Strength",
		CategoryLevelUp:  "Level Up Skill",
	}

	validCategories   = []string{CategoryWeakness, CategoryStrength, CategoryLevelUp}
	validDifficulties = []string{DifficultyEasy, DifficultyMedium, DifficultyHard}
)

// CategoryDisplayName returns the human readable name of a step category.
func CategoryDisplayName(category string) string {
	if display, ok := categoryNames[category]; ok {
		return display
	}
	return category
}

type Roadmap struct {
	ID          string    `json:"id" db:"id"`
	SubjectID   string    `json:"subject_id" db:"subject_id"`
	StudentID   string    `json:"student_id" db:"student_id"`
	TermGoalID  string    `json:"term_goal_id" db:"term_goal_id"`
	Title       string    `json:"title" db:"title"`
	Overview    string    `json:"overview" db:"overview"`
	TotalSteps  int       `json:"total_steps" db:"total_steps"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	GeneratedAt time.Time `json:"generated_at" db:"generated_at"` // UTC

	Steps []Step `json:"steps,omitempty" db:"-"`
}

// Progress returns the completion percentage over all loaded checklist items.
func (r Roadmap) Progress() float64 {
	var total, completed int
	for _, step := range r.Steps {
		total += len(step.ChecklistItems)
		for _, item := range step.ChecklistItems {
			if item.IsCompleted {
				completed++
			}
		}
	}
	return Percentage(completed, total)
}

type Step struct {
	ID             string    `json:"id" db:"id"`
	RoadmapID      string    `json:"roadmap_id" db:"roadmap_id"`
	OrderNumber    int       `json:"order_number" db:"order_number"`
	Title          string    `json:"title" db:"title"`
	Description    string    `json:"description" db:"description"`
	Category       string    `json:"category" db:"category"`
	Difficulty     string    `json:"difficulty" db:"difficulty"`
	EstimatedHours int       `json:"estimated_hours" db:"estimated_hours"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"` // UTC

	ChecklistItems []ChecklistItem `json:"checklist_items,omitempty" db:"-"`
	Resources      []Resource      `json:"resources,omitempty" db:"-"`
}

// IsCompleted reports whether every loaded checklist item is done.
func (s Step) IsCompleted() bool {
	if len(s.ChecklistItems) == 0 {
		return false
	}
	for _, item := range s.ChecklistItems {
		if !item.IsCompleted {
			return false
		}
	}
	return true
}

// Progress returns the completion percentage over the step's loaded items.
func (s Step) Progress() float64 {
	var completed int
	for _, item := range s.ChecklistItems {
		if item.IsCompleted {
			completed++
		}
	}
	return Percentage(completed, len(s.ChecklistItems))
}

type ChecklistItem struct {
	ID              string    `json:"id" db:"id"`
	StepID          string    `json:"step_id" db:"step_id"`
	TaskDescription string    `json:"task_description" db:"task_description"`
	IsCompleted     bool      `json:"is_completed" db:"is_completed"`
	CompletedAt     time.Time `json:"completed_at" db:"completed_at"` // UTC; zero when incomplete
}

type Resource struct {
	ID           string    `json:"id" db:"id"`
	StepID       string    `json:"step_id" db:"step_id"`
	ResourceType string    `json:"resource_type" db:"resource_type"`
	Title        string    `json:"title" db:"title"`
	Description  string    `json:"description" db:"description"`
	URL          string    `json:"url" db:"url"`
	AIContent    string    `json:"ai_content" db:"ai_content"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"` // UTC
}

// Percentage returns completed/total as a percentage rounded to 1 decimal.
func Percentage(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	pct := float64(completed) / float64(total) * 100
	return float64(int(pct*10+0.5)) / 10
}

// GeneratedRoadmap is the structured payload expected back from the AI.
type GeneratedRoadmap struct {
	Title    string          `json:"title"`
	Overview string          `json:"overview"`
	Steps    []GeneratedStep `json:"steps"`
}

type GeneratedStep struct {
	Order          int                 `json:"order"`
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	Category       string              `json:"category"`
	Difficulty     string              `json:"difficulty"`
	EstimatedHours int                 `json:"estimated_hours"`
	Checklist      []string            `json:"checklist"`
	Resources      []GeneratedResource `json:"resources"`
}

type GeneratedResource struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// Validate checks the payload structure the AI must honour:
// 3-8 steps, valid enums, 2-7 checklist items per step.
func (gr *GeneratedRoadmap) Validate() error {
	if gr.Title == "" {
		return errors.New("missing required field: title")
	}
	if gr.Overview == "" {
		return errors.New("missing required field: overview")
	}
	if len(gr.Steps) < 3 || len(gr.Steps) > 8 {
		return errors.Errorf("expected 3-8 steps, got %d", len(gr.Steps))
	}

	for i, step := range gr.Steps {
		n := i + 1
		if step.Title == "" {
			return errors.Errorf("step %d missing required field: title", n)
		}
		if step.Description == "" {
			return errors.Errorf("step %d missing required field: description", n)
		}
		if !contains(validCategories, step.Category) {
			return errors.Errorf("step %d has invalid category: %s", n, step.Category)
		}
		if !contains(validDifficulties, step.Difficulty) {
			return errors.Errorf("step %d has invalid difficulty: %s", n, step.Difficulty)
		}
		if step.EstimatedHours < 1 || step.EstimatedHours > 100 {
			return errors.Errorf("step %d has invalid estimated_hours: %d", n, step.EstimatedHours)
		}
		if len(step.Checklist) < 2 || len(step.Checklist) > 7 {
			return errors.Errorf("step %d should have 2-7 checklist items", n)
		}
		for _, res := range step.Resources {
			switch res.Type {
			case ResourceVideo, ResourceArticle, ResourceExercise, ResourceAIGenerated:
			default:
				return errors.Errorf("step %d has invalid resource type: %s", n, res.Type)
			}
		}
	}
	return nil
}

func contains(vals []string, v string) bool {
	for _, val := range vals {
		if val == v {
			return true
		}
	}
	return false
}

// GenerationRequest carries the student context sent to the AI.
type GenerationRequest struct {
	SubjectName    string
	CurrentLevel   string
	TargetLevel    string
	Strengths      []string
	Weaknesses     []string
	AreasToImprove []string
	Deadline       study.Date
	HoursLogged    float64
}
