package roadmap

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/mawazo/studytrack/core"
	"github.com/mawazo/studytrack/core/study"
)

var (
	ErrNotFound     = errors.New("roadmap not found")
	ErrStepNotFound = errors.New("roadmap step not found")
	ErrItemNotFound = errors.New("checklist item not found")
	ErrNoTermGoal   = errors.New("a term goal is required before generating a roadmap")
)

type (
	// Generator produces a study roadmap payload for the given student context.
	// services/ai implements it against the Anthropic API.
	Generator interface {
		GenerateRoadmap(ctx context.Context, req GenerationRequest) (*GeneratedRoadmap, error)
	}

	Repository interface {
		// SaveRoadmap persists a roadmap and its steps/items/resources in a
		// single transaction, deactivating any other active roadmap of the
		// same subject.
		SaveRoadmap(ctx context.Context, rm Roadmap) (Roadmap, error)
		// GetRoadmapByID loads a roadmap with its full step tree.
		GetRoadmapByID(ctx context.Context, id string) (Roadmap, error)
		// GetStepByID loads a step with its checklist items and resources.
		GetStepByID(ctx context.Context, id string) (Step, error)
		QueryRoadmapsBySubject(ctx context.Context, subjectID string) ([]Roadmap, error)
		// QueryActiveRoadmapsByStudent returns active roadmaps without step trees.
		QueryActiveRoadmapsByStudent(ctx context.Context, studentID string) ([]Roadmap, error)
		GetActiveRoadmapBySubject(ctx context.Context, subjectID string) (Roadmap, error)
		DeleteRoadmap(ctx context.Context, id string) error

		GetChecklistItemByID(ctx context.Context, id string) (ChecklistItem, error)
		// GetChecklistItemOwner resolves the step, roadmap and student owning an item.
		GetChecklistItemOwner(ctx context.Context, itemID string) (stepID, roadmapID, studentID string, err error)
		UpdateChecklistItem(ctx context.Context, item ChecklistItem) (ChecklistItem, error)

		// CountChecklistItems returns (completed, total) for a whole roadmap,
		// a single step, or a student's entire collection depending on scope.
		CountRoadmapItems(ctx context.Context, roadmapID string) (completed, total int, err error)
		CountStepItems(ctx context.Context, stepID string) (completed, total int, err error)
		CountStudentItems(ctx context.Context, studentID string) (completed, total int, err error)
		// QueryRecentCompletions returns recently completed items, newest first.
		QueryRecentCompletions(ctx context.Context, studentID string, limit int) ([]ChecklistItem, error)
	}

	Service struct {
		repo     Repository
		studySvc *study.Service
		gen      Generator
		logger   core.Logger
	}
)

func NewService(repo Repository, studySvc *study.Service, gen Generator, logger core.Logger) *Service {
	return &Service{repo: repo, studySvc: studySvc, gen: gen, logger: logger}
}

// Generate builds a personalised roadmap for a subject. The AI generator is
// asked first; a template roadmap is used when the generator fails or returns
// an invalid payload. The previous active roadmap is deactivated.
func (svc *Service) Generate(ctx context.Context, sub study.Subject) (Roadmap, error) {
	goal, err := svc.studySvc.LatestTermGoal(ctx, sub.ID)
	if err != nil {
		if errors.Cause(err) == study.ErrGoalNotFound {
			return Roadmap{}, core.NewValidationError(ErrNoTermGoal)
		}
		return Roadmap{}, errors.Wrap(err, "getting latest term goal")
	}

	feedbacks, err := svc.studySvc.QueryFeedback(ctx, sub.ID)
	if err != nil {
		return Roadmap{}, errors.Wrap(err, "querying feedback")
	}

	hours, err := svc.studySvc.SubjectHours(ctx, sub.ID)
	if err != nil {
		return Roadmap{}, errors.Wrap(err, "totalling study hours")
	}

	req := GenerationRequest{
		SubjectName:  sub.DisplayName(),
		CurrentLevel: goal.CurrentLevel,
		TargetLevel:  goal.TargetLevel,
		Deadline:     goal.Deadline,
		HoursLogged:  hours,
	}
	for _, fb := range feedbacks {
		if fb.Strengths != "" {
			req.Strengths = append(req.Strengths, fb.Strengths)
		}
		if fb.Weaknesses != "" {
			req.Weaknesses = append(req.Weaknesses, fb.Weaknesses)
		}
		if fb.AreasToImprove != "" {
			req.AreasToImprove = append(req.AreasToImprove, fb.AreasToImprove)
		}
	}

	payload, err := svc.gen.GenerateRoadmap(ctx, req)
	if err == nil {
		err = payload.Validate()
	}
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("roadmap generation failed, using template: %v", err), err)
		payload = FallbackRoadmap(req)
	}

	rm := svc.build(sub, goal, payload)
	saved, err := svc.repo.SaveRoadmap(ctx, rm)
	if err != nil {
		return Roadmap{}, errors.Wrap(err, "saving roadmap")
	}
	return saved, nil
}

// build maps a generated payload onto persistable rows.
func (svc *Service) build(sub study.Subject, goal study.TermGoal, payload *GeneratedRoadmap) Roadmap {
	now := time.Now().UTC()
	rm := Roadmap{
		SubjectID:   sub.ID,
		StudentID:   sub.StudentID,
		TermGoalID:  goal.ID,
		Title:       payload.Title,
		Overview:    payload.Overview,
		TotalSteps:  len(payload.Steps),
		IsActive:    true,
		GeneratedAt: now,
	}
	for _, gs := range payload.Steps {
		step := Step{
			OrderNumber:    gs.Order,
			Title:          gs.Title,
			Description:    gs.Description,
			Category:       gs.Category,
			Difficulty:     gs.Difficulty,
			EstimatedHours: gs.EstimatedHours,
			CreatedAt:      now,
		}
		for _, task := range gs.Checklist {
			step.ChecklistItems = append(step.ChecklistItems, ChecklistItem{TaskDescription: task})
		}
		for _, gres := range gs.Resources {
			step.Resources = append(step.Resources, Resource{
				ResourceType: gres.Type,
				Title:        gres.Title,
				Description:  gres.Description,
				URL:          gres.URL,
				CreatedAt:    now,
			})
		}
		rm.Steps = append(rm.Steps, step)
	}
	return rm
}

func (svc *Service) Get(ctx context.Context, id string) (Roadmap, error) {
	return svc.repo.GetRoadmapByID(ctx, id)
}

func (svc *Service) GetStep(ctx context.Context, id string) (Step, error) {
	return svc.repo.GetStepByID(ctx, id)
}

func (svc *Service) QueryBySubject(ctx context.Context, subjectID string) ([]Roadmap, error) {
	return svc.repo.QueryRoadmapsBySubject(ctx, subjectID)
}

func (svc *Service) QueryActive(ctx context.Context, studentID string) ([]Roadmap, error) {
	return svc.repo.QueryActiveRoadmapsByStudent(ctx, studentID)
}

// ActiveProgress returns the completion percentage of a subject's active
// roadmap; 0 when there is none.
func (svc *Service) ActiveProgress(ctx context.Context, subjectID string) (float64, error) {
	rm, err := svc.repo.GetActiveRoadmapBySubject(ctx, subjectID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return 0, nil
		}
		return 0, err
	}
	completed, total, err := svc.repo.CountRoadmapItems(ctx, rm.ID)
	if err != nil {
		return 0, err
	}
	return Percentage(completed, total), nil
}

// RoadmapProgress returns the completion percentage of a roadmap by ID.
func (svc *Service) RoadmapProgress(ctx context.Context, roadmapID string) (float64, error) {
	completed, total, err := svc.repo.CountRoadmapItems(ctx, roadmapID)
	if err != nil {
		return 0, err
	}
	return Percentage(completed, total), nil
}

// Completion returns (completed, total) checklist items for a roadmap.
func (svc *Service) Completion(ctx context.Context, roadmapID string) (completed, total int, err error) {
	return svc.repo.CountRoadmapItems(ctx, roadmapID)
}

// StudentCompletion returns (completed, total) checklist items across all of
// a student's roadmaps.
func (svc *Service) StudentCompletion(ctx context.Context, studentID string) (completed, total int, err error) {
	return svc.repo.CountStudentItems(ctx, studentID)
}

func (svc *Service) RecentCompletions(ctx context.Context, studentID string, limit int) ([]ChecklistItem, error) {
	return svc.repo.QueryRecentCompletions(ctx, studentID, limit)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteRoadmap(ctx, id)
}

// ToggleResult reports the new item state and refreshed progress figures.
type ToggleResult struct {
	Item             ChecklistItem `json:"item"`
	StepProgress     float64       `json:"step_progress"`
	StepCompleted    int           `json:"step_completed"`
	StepTotal        int           `json:"step_total"`
	RoadmapProgress  float64       `json:"roadmap_progress"`
	RoadmapCompleted int           `json:"roadmap_completed"`
	RoadmapTotal     int           `json:"roadmap_total"`
}

// ItemOwner returns the ID of the student owning a checklist item.
func (svc *Service) ItemOwner(ctx context.Context, itemID string) (string, error) {
	_, _, studentID, err := svc.repo.GetChecklistItemOwner(ctx, itemID)
	return studentID, err
}

// ToggleChecklistItem flips an item's completion state and stamps completed_at.
func (svc *Service) ToggleChecklistItem(ctx context.Context, itemID string) (ToggleResult, error) {
	item, err := svc.repo.GetChecklistItemByID(ctx, itemID)
	if err != nil {
		return ToggleResult{}, err
	}

	item.IsCompleted = !item.IsCompleted
	if item.IsCompleted {
		item.CompletedAt = time.Now().UTC()
	} else {
		item.CompletedAt = time.Time{}
	}
	item, err = svc.repo.UpdateChecklistItem(ctx, item)
	if err != nil {
		return ToggleResult{}, errors.Wrap(err, "updating checklist item")
	}

	stepID, roadmapID, _, err := svc.repo.GetChecklistItemOwner(ctx, itemID)
	if err != nil {
		return ToggleResult{}, errors.Wrap(err, "resolving item owner")
	}
	stepDone, stepTotal, err := svc.repo.CountStepItems(ctx, stepID)
	if err != nil {
		return ToggleResult{}, err
	}
	rmDone, rmTotal, err := svc.repo.CountRoadmapItems(ctx, roadmapID)
	if err != nil {
		return ToggleResult{}, err
	}

	return ToggleResult{
		Item:             item,
		StepProgress:     Percentage(stepDone, stepTotal),
		StepCompleted:    stepDone,
		StepTotal:        stepTotal,
		RoadmapProgress:  Percentage(rmDone, rmTotal),
		RoadmapCompleted: rmDone,
		RoadmapTotal:     rmTotal,
	}, nil
}
