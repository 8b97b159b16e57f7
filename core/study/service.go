package study

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/mawazo/studytrack/core"
)

var (
	ErrSubjectNotFound  = errors.New("subject not found")
	ErrGoalNotFound     = errors.New("term goal not found")
	ErrFeedbackNotFound = errors.New("feedback not found")
	ErrSessionNotFound  = errors.New("study session not found")
	ErrSubjectExists    = errors.New("subject is already being tracked")
)

type (
	Repository interface {
		// subjects
		CreateSubject(ctx context.Context, sub Subject) (Subject, error)
		GetSubjectByID(ctx context.Context, id string) (Subject, error)
		QuerySubjectsByStudent(ctx context.Context, studentID string) ([]Subject, error)
		SubjectExists(ctx context.Context, studentID, name string, excludedIDs ...string) (bool, error)
		UpdateSubject(ctx context.Context, sub Subject) (Subject, error)
		DeleteSubject(ctx context.Context, id string) error

		// term goals
		CreateTermGoal(ctx context.Context, goal TermGoal) (TermGoal, error)
		GetTermGoalByID(ctx context.Context, id string) (TermGoal, error)
		// QueryTermGoalsBySubject returns goals most recent first.
		QueryTermGoalsBySubject(ctx context.Context, subjectID string) ([]TermGoal, error)
		// QueryOpenTermGoalsByStudent returns goals whose deadline has not passed.
		QueryOpenTermGoalsByStudent(ctx context.Context, studentID string) ([]TermGoal, error)
		UpdateTermGoal(ctx context.Context, goal TermGoal) (TermGoal, error)
		DeleteTermGoal(ctx context.Context, id string) error

		// feedback
		CreateFeedback(ctx context.Context, fb Feedback) (Feedback, error)
		GetFeedbackByID(ctx context.Context, id string) (Feedback, error)
		// QueryFeedbackBySubject returns feedback most recent first.
		QueryFeedbackBySubject(ctx context.Context, subjectID string) ([]Feedback, error)
		// QueryFeedbackByStudent returns feedback created at or after `since`
		// (zero `since` means all), most recent first, up to `limit` (0 = no limit).
		QueryFeedbackByStudent(ctx context.Context, studentID string, since time.Time, limit int) ([]Feedback, error)
		UpdateFeedback(ctx context.Context, fb Feedback) (Feedback, error)
		DeleteFeedback(ctx context.Context, id string) error

		// study sessions
		CreateSession(ctx context.Context, sess StudySession) (StudySession, error)
		GetSessionByID(ctx context.Context, id string) (StudySession, error)
		// QuerySessionsBySubject returns sessions most recent first, up to `limit` (0 = no limit).
		QuerySessionsBySubject(ctx context.Context, subjectID string, limit int) ([]StudySession, error)
		QuerySessionsByStudent(ctx context.Context, studentID string, limit int) ([]StudySession, error)
		// LastSessionDate returns the student's most recent session date;
		// ok is false when the student has never logged a session.
		LastSessionDate(ctx context.Context, studentID string) (Date, bool, error)
		HasSessionOn(ctx context.Context, studentID string, day Date) (bool, error)
		TotalHours(ctx context.Context, studentID string) (float64, error)
		TotalHoursBySubject(ctx context.Context, subjectID string) (float64, error)
		HoursOn(ctx context.Context, studentID string, day Date) (float64, error)
		HoursSince(ctx context.Context, studentID string, since Date) (float64, error)
		UpdateSession(ctx context.Context, sess StudySession) (StudySession, error)
		DeleteSession(ctx context.Context, id string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) checkSubjectUniqueness(studentID, name string, excludedIDs ...string) error {
	exists, err := svc.repo.SubjectExists(context.Background(), studentID, name, excludedIDs...)
	if err != nil {
		return err
	}
	if exists {
		return core.NewValidationError(ErrSubjectExists, core.FieldError{Field: "name", Error: ErrSubjectExists.Error()})
	}
	return nil
}

// Subjects

func (svc *Service) CreateSubject(ctx context.Context, studentID string, ns NewSubject) (Subject, error) {
	now := time.Now().UTC()
	sub := Subject{
		StudentID:   studentID,
		Name:        ns.Name,
		Description: ns.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateSubject(ctx, sub)
}

func (svc *Service) GetSubject(ctx context.Context, id string) (Subject, error) {
	return svc.repo.GetSubjectByID(ctx, id)
}

func (svc *Service) QuerySubjects(ctx context.Context, studentID string) ([]Subject, error) {
	return svc.repo.QuerySubjectsByStudent(ctx, studentID)
}

func (svc *Service) UpdateSubject(ctx context.Context, sub Subject, ns NewSubject) (Subject, error) {
	sub.Name = ns.Name
	sub.Description = ns.Description
	sub.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSubject(ctx, sub)
}

func (svc *Service) DeleteSubject(ctx context.Context, id string) error {
	return svc.repo.DeleteSubject(ctx, id)
}

// Term goals

func (svc *Service) CreateTermGoal(ctx context.Context, subjectID string, ng NewTermGoal) (TermGoal, error) {
	goal := TermGoal{
		SubjectID:    subjectID,
		CurrentLevel: ng.CurrentLevel,
		TargetLevel:  ng.TargetLevel,
		Term:         ng.Term,
		Deadline:     ng.Deadline,
		CreatedAt:    time.Now().UTC(),
	}
	return svc.repo.CreateTermGoal(ctx, goal)
}

func (svc *Service) GetTermGoal(ctx context.Context, id string) (TermGoal, error) {
	return svc.repo.GetTermGoalByID(ctx, id)
}

func (svc *Service) QueryTermGoals(ctx context.Context, subjectID string) ([]TermGoal, error) {
	return svc.repo.QueryTermGoalsBySubject(ctx, subjectID)
}

// LatestTermGoal returns the most recently created goal for a subject.
func (svc *Service) LatestTermGoal(ctx context.Context, subjectID string) (TermGoal, error) {
	goals, err := svc.repo.QueryTermGoalsBySubject(ctx, subjectID)
	if err != nil {
		return TermGoal{}, err
	}
	if len(goals) == 0 {
		return TermGoal{}, ErrGoalNotFound
	}
	return goals[0], nil
}

func (svc *Service) QueryOpenTermGoals(ctx context.Context, studentID string) ([]TermGoal, error) {
	return svc.repo.QueryOpenTermGoalsByStudent(ctx, studentID)
}

func (svc *Service) UpdateTermGoal(ctx context.Context, goal TermGoal, ng NewTermGoal) (TermGoal, error) {
	goal.CurrentLevel = ng.CurrentLevel
	goal.TargetLevel = ng.TargetLevel
	goal.Term = ng.Term
	goal.Deadline = ng.Deadline
	return svc.repo.UpdateTermGoal(ctx, goal)
}

func (svc *Service) DeleteTermGoal(ctx context.Context, id string) error {
	return svc.repo.DeleteTermGoal(ctx, id)
}

// Feedback

func (svc *Service) CreateFeedback(ctx context.Context, subjectID string, nf NewFeedback) (Feedback, error) {
	fb := Feedback{
		SubjectID:      subjectID,
		Strengths:      nf.Strengths,
		Weaknesses:     nf.Weaknesses,
		AreasToImprove: nf.AreasToImprove,
		FeedbackDate:   nf.FeedbackDate,
		CreatedAt:      time.Now().UTC(),
	}
	return svc.repo.CreateFeedback(ctx, fb)
}

func (svc *Service) GetFeedback(ctx context.Context, id string) (Feedback, error) {
	return svc.repo.GetFeedbackByID(ctx, id)
}

func (svc *Service) QueryFeedback(ctx context.Context, subjectID string) ([]Feedback, error) {
	return svc.repo.QueryFeedbackBySubject(ctx, subjectID)
}

func (svc *Service) RecentFeedback(ctx context.Context, studentID string, since time.Time, limit int) ([]Feedback, error) {
	return svc.repo.QueryFeedbackByStudent(ctx, studentID, since, limit)
}

func (svc *Service) UpdateFeedback(ctx context.Context, fb Feedback, nf NewFeedback) (Feedback, error) {
	fb.Strengths = nf.Strengths
	fb.Weaknesses = nf.Weaknesses
	fb.AreasToImprove = nf.AreasToImprove
	fb.FeedbackDate = nf.FeedbackDate
	return svc.repo.UpdateFeedback(ctx, fb)
}

func (svc *Service) DeleteFeedback(ctx context.Context, id string) error {
	return svc.repo.DeleteFeedback(ctx, id)
}

// Study sessions

func (svc *Service) CreateSession(ctx context.Context, studentID, subjectID string, ns NewStudySession) (StudySession, error) {
	sess := StudySession{
		StudentID:   studentID,
		SubjectID:   subjectID,
		HoursSpent:  ns.HoursSpent,
		SessionDate: ns.SessionDate,
		Notes:       ns.Notes,
		CreatedAt:   time.Now().UTC(),
	}
	return svc.repo.CreateSession(ctx, sess)
}

func (svc *Service) GetSession(ctx context.Context, id string) (StudySession, error) {
	return svc.repo.GetSessionByID(ctx, id)
}

func (svc *Service) QuerySessions(ctx context.Context, subjectID string, limit int) ([]StudySession, error) {
	return svc.repo.QuerySessionsBySubject(ctx, subjectID, limit)
}

func (svc *Service) RecentSessions(ctx context.Context, studentID string, limit int) ([]StudySession, error) {
	return svc.repo.QuerySessionsByStudent(ctx, studentID, limit)
}

func (svc *Service) UpdateSession(ctx context.Context, sess StudySession, ns NewStudySession) (StudySession, error) {
	sess.HoursSpent = ns.HoursSpent
	sess.SessionDate = ns.SessionDate
	sess.Notes = ns.Notes
	return svc.repo.UpdateSession(ctx, sess)
}

func (svc *Service) DeleteSession(ctx context.Context, id string) error {
	return svc.repo.DeleteSession(ctx, id)
}

func (svc *Service) TotalHours(ctx context.Context, studentID string) (float64, error) {
	return svc.repo.TotalHours(ctx, studentID)
}

func (svc *Service) SubjectHours(ctx context.Context, subjectID string) (float64, error) {
	return svc.repo.TotalHoursBySubject(ctx, subjectID)
}

func (svc *Service) LastSessionDate(ctx context.Context, studentID string) (Date, bool, error) {
	return svc.repo.LastSessionDate(ctx, studentID)
}

func (svc *Service) StudiedOn(ctx context.Context, studentID string, day Date) (bool, error) {
	return svc.repo.HasSessionOn(ctx, studentID, day)
}
