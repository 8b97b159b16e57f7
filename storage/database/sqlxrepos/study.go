package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/mawazo/studytrack/core/study"
)

type studyRepository struct {
	db *sqlx.DB
}

var _ study.Repository = (*studyRepository)(nil)

func NewStudyRepository(db *sqlx.DB) study.Repository {
	return &studyRepository{db: db}
}

// --- subjects ---

func (repo *studyRepository) CreateSubject(ctx context.Context, sub study.Subject) (study.Subject, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO subjects (id, student_id, name, description, created_at, updated_at)
		 VALUES (:id, :student_id, :name, :description, :created_at, :updated_at)`,
		sub,
	)
	if err != nil {
		return study.Subject{}, errors.Wrap(err, "creating subject")
	}
	return sub, nil
}

func (repo *studyRepository) GetSubjectByID(ctx context.Context, id string) (study.Subject, error) {
	var sub study.Subject
	err := repo.db.GetContext(ctx, &sub, `SELECT * FROM subjects WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return study.Subject{}, study.ErrSubjectNotFound
	}
	if err != nil {
		return study.Subject{}, errors.Wrap(err, "getting subject")
	}
	return sub, nil
}

func (repo *studyRepository) QuerySubjectsByStudent(ctx context.Context, studentID string) ([]study.Subject, error) {
	subs := []study.Subject{}
	err := repo.db.SelectContext(ctx, &subs,
		`SELECT * FROM subjects WHERE student_id = $1 ORDER BY name`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	return subs, nil
}

func (repo *studyRepository) SubjectExists(ctx context.Context, studentID, name string, excludedIDs ...string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM subjects WHERE student_id = $1 AND name = $2 AND id <> ALL($3))`,
		studentID, name, pq.Array(excludedIDs),
	)
	return exists, errors.Wrap(err, "checking subject existence")
}

func (repo *studyRepository) UpdateSubject(ctx context.Context, sub study.Subject) (study.Subject, error) {
	_, err := repo.db.NamedExecContext(ctx,
		`UPDATE subjects SET name = :name, description = :description, updated_at = :updated_at WHERE id = :id`,
		sub,
	)
	if err != nil {
		return study.Subject{}, errors.Wrap(err, "updating subject")
	}
	return sub, nil
}

func (repo *studyRepository) DeleteSubject(ctx context.Context, id string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = $1`, id)
	return errors.Wrap(err, "deleting subject")
}

// --- term goals ---

func (repo *studyRepository) CreateTermGoal(ctx context.Context, goal study.TermGoal) (study.TermGoal, error) {
	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO term_goals (id, subject_id, current_level, target_level, term, deadline, created_at)
		 VALUES (:id, :subject_id, :current_level, :target_level, :term, :deadline, :created_at)`,
		goal,
	)
	if err != nil {
		return study.TermGoal{}, errors.Wrap(err, "creating term goal")
	}
	return goal, nil
}

func (repo *studyRepository) GetTermGoalByID(ctx context.Context, id string) (study.TermGoal, error) {
	var goal study.TermGoal
	err := repo.db.GetContext(ctx, &goal, `SELECT * FROM term_goals WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return study.TermGoal{}, study.ErrGoalNotFound
	}
	if err != nil {
		return study.TermGoal{}, errors.Wrap(err, "getting term goal")
	}
	return goal, nil
}

func (repo *studyRepository) QueryTermGoalsBySubject(ctx context.Context, subjectID string) ([]study.TermGoal, error) {
	goals := []study.TermGoal{}
	err := repo.db.SelectContext(ctx, &goals,
		`SELECT * FROM term_goals WHERE subject_id = $1 ORDER BY created_at DESC`, subjectID)
	if err != nil {
		return nil, errors.Wrap(err, "querying term goals")
	}
	return goals, nil
}

func (repo *studyRepository) QueryOpenTermGoalsByStudent(ctx context.Context, studentID string) ([]study.TermGoal, error) {
	goals := []study.TermGoal{}
	err := repo.db.SelectContext(ctx, &goals,
		`SELECT tg.* FROM term_goals tg
		 JOIN subjects s ON s.id = tg.subject_id
		 WHERE s.student_id = $1 AND tg.deadline >= CURRENT_DATE
		 ORDER BY tg.deadline`,
		studentID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying open term goals")
	}
	return goals, nil
}

func (repo *studyRepository) UpdateTermGoal(ctx context.Context, goal study.TermGoal) (study.TermGoal, error) {
	_, err := repo.db.NamedExecContext(ctx,
		`UPDATE term_goals SET current_level = :current_level, target_level = :target_level,
			term = :term, deadline = :deadline
		 WHERE id = :id`,
		goal,
	)
	if err != nil {
		return study.TermGoal{}, errors.Wrap(err, "updating term goal")
	}
	return goal, nil
}

func (repo *studyRepository) DeleteTermGoal(ctx context.Context, id string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM term_goals WHERE id = $1`, id)
	return errors.Wrap(err, "deleting term goal")
}

// --- feedback ---

func (repo *studyRepository) CreateFeedback(ctx context.Context, fb study.Feedback) (study.Feedback, error) {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO feedback (id, subject_id, strengths, weaknesses, areas_to_improve, feedback_date, created_at)
		 VALUES (:id, :subject_id, :strengths, :weaknesses, :areas_to_improve, :feedback_date, :created_at)`,
		fb,
	)
	if err != nil {
		return study.Feedback{}, errors.Wrap(err, "creating feedback")
	}
	return fb, nil
}

func (repo *studyRepository) GetFeedbackByID(ctx context.Context, id string) (study.Feedback, error) {
	var fb study.Feedback
	err := repo.db.GetContext(ctx, &fb, `SELECT * FROM feedback WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return study.Feedback{}, study.ErrFeedbackNotFound
	}
	if err != nil {
		return study.Feedback{}, errors.Wrap(err, "getting feedback")
	}
	return fb, nil
}

func (repo *studyRepository) QueryFeedbackBySubject(ctx context.Context, subjectID string) ([]study.Feedback, error) {
	fbs := []study.Feedback{}
	err := repo.db.SelectContext(ctx, &fbs,
		`SELECT * FROM feedback WHERE subject_id = $1 ORDER BY feedback_date DESC, created_at DESC`, subjectID)
	if err != nil {
		return nil, errors.Wrap(err, "querying feedback")
	}
	return fbs, nil
}

func (repo *studyRepository) QueryFeedbackByStudent(ctx context.Context, studentID string, since time.Time, limit int) ([]study.Feedback, error) {
	query := `SELECT f.* FROM feedback f
		 JOIN subjects s ON s.id = f.subject_id
		 WHERE s.student_id = $1`
	args := []interface{}{studentID}
	if !since.IsZero() {
		args = append(args, since)
		query += ` AND f.created_at >= $2`
	}
	query += ` ORDER BY f.created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	fbs := []study.Feedback{}
	if err := repo.db.SelectContext(ctx, &fbs, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying student feedback")
	}
	return fbs, nil
}

func (repo *studyRepository) UpdateFeedback(ctx context.Context, fb study.Feedback) (study.Feedback, error) {
	_, err := repo.db.NamedExecContext(ctx,
		`UPDATE feedback SET strengths = :strengths, weaknesses = :weaknesses,
			areas_to_improve = :areas_to_improve, feedback_date = :feedback_date
		 WHERE id = :id`,
		fb,
	)
	if err != nil {
		return study.Feedback{}, errors.Wrap(err, "updating feedback")
	}
	return fb, nil
}

func (repo *studyRepository) DeleteFeedback(ctx context.Context, id string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM feedback WHERE id = $1`, id)
	return errors.Wrap(err, "deleting feedback")
}

// --- study sessions ---

func (repo *studyRepository) CreateSession(ctx context.Context, sess study.StudySession) (study.StudySession, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO study_sessions (id, student_id, subject_id, hours_spent, session_date, notes, created_at)
		 VALUES (:id, :student_id, :subject_id, :hours_spent, :session_date, :notes, :created_at)`,
		sess,
	)
	if err != nil {
		return study.StudySession{}, errors.Wrap(err, "creating session")
	}
	return sess, nil
}

func (repo *studyRepository) GetSessionByID(ctx context.Context, id string) (study.StudySession, error) {
	var sess study.StudySession
	err := repo.db.GetContext(ctx, &sess, `SELECT * FROM study_sessions WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return study.StudySession{}, study.ErrSessionNotFound
	}
	if err != nil {
		return study.StudySession{}, errors.Wrap(err, "getting session")
	}
	return sess, nil
}

func (repo *studyRepository) querySessions(ctx context.Context, query string, limit int, args ...interface{}) ([]study.StudySession, error) {
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	sessions := []study.StudySession{}
	if err := repo.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	return sessions, nil
}

func (repo *studyRepository) QuerySessionsBySubject(ctx context.Context, subjectID string, limit int) ([]study.StudySession, error) {
	return repo.querySessions(ctx,
		`SELECT * FROM study_sessions WHERE subject_id = $1 ORDER BY session_date DESC, created_at DESC`,
		limit, subjectID)
}

func (repo *studyRepository) QuerySessionsByStudent(ctx context.Context, studentID string, limit int) ([]study.StudySession, error) {
	return repo.querySessions(ctx,
		`SELECT * FROM study_sessions WHERE student_id = $1 ORDER BY session_date DESC, created_at DESC`,
		limit, studentID)
}

func (repo *studyRepository) LastSessionDate(ctx context.Context, studentID string) (study.Date, bool, error) {
	var day study.Date
	err := repo.db.GetContext(ctx, &day,
		`SELECT session_date FROM study_sessions WHERE student_id = $1 ORDER BY session_date DESC LIMIT 1`,
		studentID,
	)
	if err == sql.ErrNoRows {
		return study.Date{}, false, nil
	}
	if err != nil {
		return study.Date{}, false, errors.Wrap(err, "getting last session date")
	}
	return day, true, nil
}

func (repo *studyRepository) HasSessionOn(ctx context.Context, studentID string, day study.Date) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM study_sessions WHERE student_id = $1 AND session_date = $2)`,
		studentID, day,
	)
	return exists, errors.Wrap(err, "checking session")
}

func (repo *studyRepository) TotalHours(ctx context.Context, studentID string) (float64, error) {
	var hours float64
	err := repo.db.GetContext(ctx, &hours,
		`SELECT COALESCE(SUM(hours_spent), 0) FROM study_sessions WHERE student_id = $1`, studentID)
	return hours, errors.Wrap(err, "totalling hours")
}

func (repo *studyRepository) TotalHoursBySubject(ctx context.Context, subjectID string) (float64, error) {
	var hours float64
	err := repo.db.GetContext(ctx, &hours,
		`SELECT COALESCE(SUM(hours_spent), 0) FROM study_sessions WHERE subject_id = $1`, subjectID)
	return hours, errors.Wrap(err, "totalling subject hours")
}

func (repo *studyRepository) HoursOn(ctx context.Context, studentID string, day study.Date) (float64, error) {
	var hours float64
	err := repo.db.GetContext(ctx, &hours,
		`SELECT COALESCE(SUM(hours_spent), 0) FROM study_sessions WHERE student_id = $1 AND session_date = $2`,
		studentID, day)
	return hours, errors.Wrap(err, "totalling hours on day")
}

func (repo *studyRepository) HoursSince(ctx context.Context, studentID string, since study.Date) (float64, error) {
	var hours float64
	err := repo.db.GetContext(ctx, &hours,
		`SELECT COALESCE(SUM(hours_spent), 0) FROM study_sessions WHERE student_id = $1 AND session_date >= $2`,
		studentID, since)
	return hours, errors.Wrap(err, "totalling hours since")
}

func (repo *studyRepository) UpdateSession(ctx context.Context, sess study.StudySession) (study.StudySession, error) {
	_, err := repo.db.NamedExecContext(ctx,
		`UPDATE study_sessions SET hours_spent = :hours_spent, session_date = :session_date, notes = :notes
		 WHERE id = :id`,
		sess,
	)
	if err != nil {
		return study.StudySession{}, errors.Wrap(err, "updating session")
	}
	return sess, nil
}

func (repo *studyRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM study_sessions WHERE id = $1`, id)
	return errors.Wrap(err, "deleting session")
}
