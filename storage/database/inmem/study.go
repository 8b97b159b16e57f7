package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mawazo/studytrack/core/study"
)

type studyRepository struct {
	db *DB
}

var _ study.Repository = (*studyRepository)(nil)

func NewStudyRepository(db *DB) study.Repository {
	return &studyRepository{db: db}
}

// --- subjects ---

func (repo *studyRepository) CreateSubject(_ context.Context, sub study.Subject) (study.Subject, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	repo.db.subjects[sub.ID] = &sub
	return sub, nil
}

func (repo *studyRepository) GetSubjectByID(_ context.Context, id string) (study.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sub, ok := repo.db.subjects[id]; ok {
		return *sub, nil
	}
	return study.Subject{}, study.ErrSubjectNotFound
}

func (repo *studyRepository) QuerySubjectsByStudent(_ context.Context, studentID string) ([]study.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	subs := []study.Subject{}
	for _, sub := range repo.db.subjects {
		if sub.StudentID == studentID {
			subs = append(subs, *sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Name < subs[j].Name })
	return subs, nil
}

func (repo *studyRepository) SubjectExists(_ context.Context, studentID, name string, excludedIDs ...string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	excluded := func(id string) bool {
		for _, ex := range excludedIDs {
			if ex == id {
				return true
			}
		}
		return false
	}
	for _, sub := range repo.db.subjects {
		if sub.StudentID == studentID && sub.Name == name && !excluded(sub.ID) {
			return true, nil
		}
	}
	return false, nil
}

func (repo *studyRepository) UpdateSubject(_ context.Context, sub study.Subject) (study.Subject, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.subjects[sub.ID]
	if !ok {
		return study.Subject{}, study.ErrSubjectNotFound
	}
	orig.Name = sub.Name
	orig.Description = sub.Description
	orig.UpdatedAt = time.Now().UTC()
	return *orig, nil
}

func (repo *studyRepository) DeleteSubject(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.subjects, id)
	for gid, goal := range repo.db.termGoals {
		if goal.SubjectID == id {
			delete(repo.db.termGoals, gid)
		}
	}
	for fid, fb := range repo.db.feedback {
		if fb.SubjectID == id {
			delete(repo.db.feedback, fid)
		}
	}
	for sid, sess := range repo.db.sessions {
		if sess.SubjectID == id {
			delete(repo.db.sessions, sid)
		}
	}
	return nil
}

// --- term goals ---

func (repo *studyRepository) CreateTermGoal(_ context.Context, goal study.TermGoal) (study.TermGoal, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	repo.db.termGoals[goal.ID] = &goal
	return goal, nil
}

func (repo *studyRepository) GetTermGoalByID(_ context.Context, id string) (study.TermGoal, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if goal, ok := repo.db.termGoals[id]; ok {
		return *goal, nil
	}
	return study.TermGoal{}, study.ErrGoalNotFound
}

func (repo *studyRepository) QueryTermGoalsBySubject(_ context.Context, subjectID string) ([]study.TermGoal, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	goals := []study.TermGoal{}
	for _, goal := range repo.db.termGoals {
		if goal.SubjectID == subjectID {
			goals = append(goals, *goal)
		}
	}
	sort.Slice(goals, func(i, j int) bool { return goals[i].CreatedAt.After(goals[j].CreatedAt) })
	return goals, nil
}

func (repo *studyRepository) QueryOpenTermGoalsByStudent(_ context.Context, studentID string) ([]study.TermGoal, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	goals := []study.TermGoal{}
	for _, goal := range repo.db.termGoals {
		sub, ok := repo.db.subjects[goal.SubjectID]
		if !ok || sub.StudentID != studentID {
			continue
		}
		if goal.DaysRemaining() >= 0 {
			goals = append(goals, *goal)
		}
	}
	sort.Slice(goals, func(i, j int) bool { return goals[i].Deadline.Before(goals[j].Deadline.Time) })
	return goals, nil
}

func (repo *studyRepository) UpdateTermGoal(_ context.Context, goal study.TermGoal) (study.TermGoal, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.termGoals[goal.ID]
	if !ok {
		return study.TermGoal{}, study.ErrGoalNotFound
	}
	orig.CurrentLevel = goal.CurrentLevel
	orig.TargetLevel = goal.TargetLevel
	orig.Term = goal.Term
	orig.Deadline = goal.Deadline
	return *orig, nil
}

func (repo *studyRepository) DeleteTermGoal(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.termGoals, id)
	return nil
}

// --- feedback ---

func (repo *studyRepository) CreateFeedback(_ context.Context, fb study.Feedback) (study.Feedback, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	repo.db.feedback[fb.ID] = &fb
	return fb, nil
}

func (repo *studyRepository) GetFeedbackByID(_ context.Context, id string) (study.Feedback, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if fb, ok := repo.db.feedback[id]; ok {
		return *fb, nil
	}
	return study.Feedback{}, study.ErrFeedbackNotFound
}

func (repo *studyRepository) QueryFeedbackBySubject(_ context.Context, subjectID string) ([]study.Feedback, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	fbs := []study.Feedback{}
	for _, fb := range repo.db.feedback {
		if fb.SubjectID == subjectID {
			fbs = append(fbs, *fb)
		}
	}
	sort.Slice(fbs, func(i, j int) bool { return fbs[i].CreatedAt.After(fbs[j].CreatedAt) })
	return fbs, nil
}

func (repo *studyRepository) QueryFeedbackByStudent(_ context.Context, studentID string, since time.Time, limit int) ([]study.Feedback, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	fbs := []study.Feedback{}
	for _, fb := range repo.db.feedback {
		sub, ok := repo.db.subjects[fb.SubjectID]
		if !ok || sub.StudentID != studentID {
			continue
		}
		if !since.IsZero() && fb.CreatedAt.Before(since) {
			continue
		}
		fbs = append(fbs, *fb)
	}
	sort.Slice(fbs, func(i, j int) bool { return fbs[i].CreatedAt.After(fbs[j].CreatedAt) })
	if limit > 0 && len(fbs) > limit {
		fbs = fbs[:limit]
	}
	return fbs, nil
}

func (repo *studyRepository) UpdateFeedback(_ context.Context, fb study.Feedback) (study.Feedback, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.feedback[fb.ID]
	if !ok {
		return study.Feedback{}, study.ErrFeedbackNotFound
	}
	orig.Strengths = fb.Strengths
	orig.Weaknesses = fb.Weaknesses
	orig.AreasToImprove = fb.AreasToImprove
	orig.FeedbackDate = fb.FeedbackDate
	return *orig, nil
}

func (repo *studyRepository) DeleteFeedback(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.feedback, id)
	return nil
}

// --- study sessions ---

func (repo *studyRepository) CreateSession(_ context.Context, sess study.StudySession) (study.StudySession, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	repo.db.sessions[sess.ID] = &sess
	return sess, nil
}

func (repo *studyRepository) GetSessionByID(_ context.Context, id string) (study.StudySession, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sess, ok := repo.db.sessions[id]; ok {
		return *sess, nil
	}
	return study.StudySession{}, study.ErrSessionNotFound
}

func (repo *studyRepository) querySessions(match func(study.StudySession) bool, limit int) []study.StudySession {
	sessions := []study.StudySession{}
	for _, sess := range repo.db.sessions {
		if match(*sess) {
			sessions = append(sessions, *sess)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].SessionDate.Equal(sessions[j].SessionDate.Time) {
			return sessions[i].SessionDate.After(sessions[j].SessionDate.Time)
		}
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions
}

func (repo *studyRepository) QuerySessionsBySubject(_ context.Context, subjectID string, limit int) ([]study.StudySession, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.querySessions(func(s study.StudySession) bool { return s.SubjectID == subjectID }, limit), nil
}

func (repo *studyRepository) QuerySessionsByStudent(_ context.Context, studentID string, limit int) ([]study.StudySession, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.querySessions(func(s study.StudySession) bool { return s.StudentID == studentID }, limit), nil
}

func (repo *studyRepository) LastSessionDate(_ context.Context, studentID string) (study.Date, bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var last study.Date
	var found bool
	for _, sess := range repo.db.sessions {
		if sess.StudentID != studentID {
			continue
		}
		if !found || sess.SessionDate.After(last.Time) {
			last = sess.SessionDate
			found = true
		}
	}
	return last, found, nil
}

func (repo *studyRepository) HasSessionOn(_ context.Context, studentID string, day study.Date) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, sess := range repo.db.sessions {
		if sess.StudentID == studentID && sess.SessionDate.Equal(day.Time) {
			return true, nil
		}
	}
	return false, nil
}

func (repo *studyRepository) sumHours(match func(study.StudySession) bool) float64 {
	var hours float64
	for _, sess := range repo.db.sessions {
		if match(*sess) {
			hours += sess.HoursSpent
		}
	}
	return hours
}

func (repo *studyRepository) TotalHours(_ context.Context, studentID string) (float64, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.sumHours(func(s study.StudySession) bool { return s.StudentID == studentID }), nil
}

func (repo *studyRepository) TotalHoursBySubject(_ context.Context, subjectID string) (float64, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.sumHours(func(s study.StudySession) bool { return s.SubjectID == subjectID }), nil
}

func (repo *studyRepository) HoursOn(_ context.Context, studentID string, day study.Date) (float64, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.sumHours(func(s study.StudySession) bool {
		return s.StudentID == studentID && s.SessionDate.Equal(day.Time)
	}), nil
}

func (repo *studyRepository) HoursSince(_ context.Context, studentID string, since study.Date) (float64, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.sumHours(func(s study.StudySession) bool {
		return s.StudentID == studentID && !s.SessionDate.Before(since.Time)
	}), nil
}

func (repo *studyRepository) UpdateSession(_ context.Context, sess study.StudySession) (study.StudySession, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.sessions[sess.ID]
	if !ok {
		return study.StudySession{}, study.ErrSessionNotFound
	}
	orig.HoursSpent = sess.HoursSpent
	orig.SessionDate = sess.SessionDate
	orig.Notes = sess.Notes
	return *orig, nil
}

func (repo *studyRepository) DeleteSession(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.sessions, id)
	return nil
}
