package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/mawazo/studytrack/core/roadmap"
)

type roadmapRepository struct {
	db *sqlx.DB
}

var _ roadmap.Repository = (*roadmapRepository)(nil)

func NewRoadmapRepository(db *sqlx.DB) roadmap.Repository {
	return &roadmapRepository{db: db}
}

// itemRow shadows roadmap.ChecklistItem for the nullable completed_at column.
type itemRow struct {
	ID              string       `db:"id"`
	StepID          string       `db:"step_id"`
	TaskDescription string       `db:"task_description"`
	IsCompleted     bool         `db:"is_completed"`
	CompletedAt     sql.NullTime `db:"completed_at"`
}

func (row itemRow) item() roadmap.ChecklistItem {
	return roadmap.ChecklistItem{
		ID:              row.ID,
		StepID:          row.StepID,
		TaskDescription: row.TaskDescription,
		IsCompleted:     row.IsCompleted,
		CompletedAt:     row.CompletedAt.Time,
	}
}

func (repo *roadmapRepository) SaveRoadmap(ctx context.Context, rm roadmap.Roadmap) (roadmap.Roadmap, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return roadmap.Roadmap{}, errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	// one active roadmap per subject
	if _, err = tx.ExecContext(ctx,
		`UPDATE roadmaps SET is_active = FALSE WHERE subject_id = $1 AND is_active`, rm.SubjectID); err != nil {
		return roadmap.Roadmap{}, errors.Wrap(err, "deactivating old roadmaps")
	}

	if rm.ID == "" {
		rm.ID = uuid.NewString()
	}
	rm.TotalSteps = len(rm.Steps)
	if _, err = tx.NamedExecContext(ctx,
		`INSERT INTO roadmaps (id, subject_id, student_id, term_goal_id, title, overview, total_steps, is_active, generated_at)
		 VALUES (:id, :subject_id, :student_id, :term_goal_id, :title, :overview, :total_steps, :is_active, :generated_at)`,
		rm,
	); err != nil {
		return roadmap.Roadmap{}, errors.Wrap(err, "inserting roadmap")
	}

	for i := range rm.Steps {
		step := &rm.Steps[i]
		step.ID = uuid.NewString()
		step.RoadmapID = rm.ID
		if _, err = tx.NamedExecContext(ctx,
			`INSERT INTO roadmap_steps (id, roadmap_id, order_number, title, description, category, difficulty, estimated_hours, created_at)
			 VALUES (:id, :roadmap_id, :order_number, :title, :description, :category, :difficulty, :estimated_hours, :created_at)`,
			step,
		); err != nil {
			return roadmap.Roadmap{}, errors.Wrap(err, "inserting step")
		}

		for j := range step.ChecklistItems {
			item := &step.ChecklistItems[j]
			item.ID = uuid.NewString()
			item.StepID = step.ID
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO checklist_items (id, step_id, task_description, is_completed) VALUES ($1, $2, $3, $4)`,
				item.ID, item.StepID, item.TaskDescription, item.IsCompleted,
			); err != nil {
				return roadmap.Roadmap{}, errors.Wrap(err, "inserting checklist item")
			}
		}

		for j := range step.Resources {
			res := &step.Resources[j]
			res.ID = uuid.NewString()
			res.StepID = step.ID
			if _, err = tx.NamedExecContext(ctx,
				`INSERT INTO resources (id, step_id, resource_type, title, description, url, ai_content, created_at)
				 VALUES (:id, :step_id, :resource_type, :title, :description, :url, :ai_content, :created_at)`,
				res,
			); err != nil {
				return roadmap.Roadmap{}, errors.Wrap(err, "inserting resource")
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return roadmap.Roadmap{}, errors.Wrap(err, "committing tx")
	}
	return rm, nil
}

func (repo *roadmapRepository) GetRoadmapByID(ctx context.Context, id string) (roadmap.Roadmap, error) {
	var rm roadmap.Roadmap
	err := repo.db.GetContext(ctx, &rm, `SELECT * FROM roadmaps WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return roadmap.Roadmap{}, roadmap.ErrNotFound
	}
	if err != nil {
		return roadmap.Roadmap{}, errors.Wrap(err, "getting roadmap")
	}
	if rm.Steps, err = repo.querySteps(ctx, rm.ID); err != nil {
		return roadmap.Roadmap{}, err
	}
	return rm, nil
}

func (repo *roadmapRepository) querySteps(ctx context.Context, roadmapID string) ([]roadmap.Step, error) {
	steps := []roadmap.Step{}
	err := repo.db.SelectContext(ctx, &steps,
		`SELECT * FROM roadmap_steps WHERE roadmap_id = $1 ORDER BY order_number`, roadmapID)
	if err != nil {
		return nil, errors.Wrap(err, "querying steps")
	}
	for i := range steps {
		if err = repo.loadStepChildren(ctx, &steps[i]); err != nil {
			return nil, err
		}
	}
	return steps, nil
}

func (repo *roadmapRepository) loadStepChildren(ctx context.Context, step *roadmap.Step) error {
	var itemRows []itemRow
	err := repo.db.SelectContext(ctx, &itemRows,
		`SELECT * FROM checklist_items WHERE step_id = $1 ORDER BY id`, step.ID)
	if err != nil {
		return errors.Wrap(err, "querying checklist items")
	}
	step.ChecklistItems = make([]roadmap.ChecklistItem, len(itemRows))
	for i, row := range itemRows {
		step.ChecklistItems[i] = row.item()
	}

	step.Resources = []roadmap.Resource{}
	err = repo.db.SelectContext(ctx, &step.Resources,
		`SELECT * FROM resources WHERE step_id = $1 ORDER BY created_at, id`, step.ID)
	return errors.Wrap(err, "querying resources")
}

func (repo *roadmapRepository) GetStepByID(ctx context.Context, id string) (roadmap.Step, error) {
	var step roadmap.Step
	err := repo.db.GetContext(ctx, &step, `SELECT * FROM roadmap_steps WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return roadmap.Step{}, roadmap.ErrStepNotFound
	}
	if err != nil {
		return roadmap.Step{}, errors.Wrap(err, "getting step")
	}
	if err = repo.loadStepChildren(ctx, &step); err != nil {
		return roadmap.Step{}, err
	}
	return step, nil
}

func (repo *roadmapRepository) QueryRoadmapsBySubject(ctx context.Context, subjectID string) ([]roadmap.Roadmap, error) {
	roadmaps := []roadmap.Roadmap{}
	err := repo.db.SelectContext(ctx, &roadmaps,
		`SELECT * FROM roadmaps WHERE subject_id = $1 ORDER BY generated_at DESC`, subjectID)
	if err != nil {
		return nil, errors.Wrap(err, "querying roadmaps")
	}
	return roadmaps, nil
}

func (repo *roadmapRepository) QueryActiveRoadmapsByStudent(ctx context.Context, studentID string) ([]roadmap.Roadmap, error) {
	roadmaps := []roadmap.Roadmap{}
	err := repo.db.SelectContext(ctx, &roadmaps,
		`SELECT * FROM roadmaps WHERE student_id = $1 AND is_active ORDER BY generated_at DESC`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying active roadmaps")
	}
	return roadmaps, nil
}

func (repo *roadmapRepository) GetActiveRoadmapBySubject(ctx context.Context, subjectID string) (roadmap.Roadmap, error) {
	var rm roadmap.Roadmap
	err := repo.db.GetContext(ctx, &rm,
		`SELECT * FROM roadmaps WHERE subject_id = $1 AND is_active ORDER BY generated_at DESC LIMIT 1`, subjectID)
	if err == sql.ErrNoRows {
		return roadmap.Roadmap{}, roadmap.ErrNotFound
	}
	if err != nil {
		return roadmap.Roadmap{}, errors.Wrap(err, "getting active roadmap")
	}
	return rm, nil
}

func (repo *roadmapRepository) DeleteRoadmap(ctx context.Context, id string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM roadmaps WHERE id = $1`, id)
	return errors.Wrap(err, "deleting roadmap")
}

func (repo *roadmapRepository) GetChecklistItemByID(ctx context.Context, id string) (roadmap.ChecklistItem, error) {
	var row itemRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM checklist_items WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return roadmap.ChecklistItem{}, roadmap.ErrItemNotFound
	}
	if err != nil {
		return roadmap.ChecklistItem{}, errors.Wrap(err, "getting checklist item")
	}
	return row.item(), nil
}

func (repo *roadmapRepository) GetChecklistItemOwner(ctx context.Context, itemID string) (stepID, roadmapID, studentID string, err error) {
	var owner struct {
		StepID    string `db:"step_id"`
		RoadmapID string `db:"roadmap_id"`
		StudentID string `db:"student_id"`
	}
	err = repo.db.GetContext(ctx, &owner,
		`SELECT ci.step_id, rs.roadmap_id, r.student_id
		 FROM checklist_items ci
		 JOIN roadmap_steps rs ON rs.id = ci.step_id
		 JOIN roadmaps r ON r.id = rs.roadmap_id
		 WHERE ci.id = $1`,
		itemID,
	)
	if err == sql.ErrNoRows {
		return "", "", "", roadmap.ErrItemNotFound
	}
	if err != nil {
		return "", "", "", errors.Wrap(err, "resolving item owner")
	}
	return owner.StepID, owner.RoadmapID, owner.StudentID, nil
}

func (repo *roadmapRepository) UpdateChecklistItem(ctx context.Context, item roadmap.ChecklistItem) (roadmap.ChecklistItem, error) {
	var completedAt interface{}
	if !item.CompletedAt.IsZero() {
		completedAt = item.CompletedAt
	}
	_, err := repo.db.ExecContext(ctx,
		`UPDATE checklist_items SET is_completed = $1, completed_at = $2 WHERE id = $3`,
		item.IsCompleted, completedAt, item.ID,
	)
	if err != nil {
		return roadmap.ChecklistItem{}, errors.Wrap(err, "updating checklist item")
	}
	return item, nil
}

func (repo *roadmapRepository) countItems(ctx context.Context, query string, args ...interface{}) (completed, total int, err error) {
	var counts struct {
		Completed int `db:"completed"`
		Total     int `db:"total"`
	}
	if err = repo.db.GetContext(ctx, &counts, query, args...); err != nil {
		return 0, 0, errors.Wrap(err, "counting checklist items")
	}
	return counts.Completed, counts.Total, nil
}

func (repo *roadmapRepository) CountRoadmapItems(ctx context.Context, roadmapID string) (completed, total int, err error) {
	return repo.countItems(ctx,
		`SELECT COUNT(*) FILTER (WHERE ci.is_completed) AS completed, COUNT(*) AS total
		 FROM checklist_items ci
		 JOIN roadmap_steps rs ON rs.id = ci.step_id
		 WHERE rs.roadmap_id = $1`,
		roadmapID)
}

func (repo *roadmapRepository) CountStepItems(ctx context.Context, stepID string) (completed, total int, err error) {
	return repo.countItems(ctx,
		`SELECT COUNT(*) FILTER (WHERE is_completed) AS completed, COUNT(*) AS total
		 FROM checklist_items WHERE step_id = $1`,
		stepID)
}

func (repo *roadmapRepository) CountStudentItems(ctx context.Context, studentID string) (completed, total int, err error) {
	return repo.countItems(ctx,
		`SELECT COUNT(*) FILTER (WHERE ci.is_completed) AS completed, COUNT(*) AS total
		 FROM checklist_items ci
		 JOIN roadmap_steps rs ON rs.id = ci.step_id
		 JOIN roadmaps r ON r.id = rs.roadmap_id
		 WHERE r.student_id = $1`,
		studentID)
}

func (repo *roadmapRepository) QueryRecentCompletions(ctx context.Context, studentID string, limit int) ([]roadmap.ChecklistItem, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []itemRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT ci.* FROM checklist_items ci
		 JOIN roadmap_steps rs ON rs.id = ci.step_id
		 JOIN roadmaps r ON r.id = rs.roadmap_id
		 WHERE r.student_id = $1 AND ci.is_completed
		 ORDER BY ci.completed_at DESC
		 LIMIT $2`,
		studentID, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying recent completions")
	}
	items := make([]roadmap.ChecklistItem, len(rows))
	for i, row := range rows {
		items[i] = row.item()
	}
	return items, nil
}
