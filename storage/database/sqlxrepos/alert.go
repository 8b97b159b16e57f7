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

	"github.com/mawazo/studytrack/core/alert"
)

type alertRepository struct {
	db *sqlx.DB
}

var _ alert.Repository = (*alertRepository)(nil)

func NewAlertRepository(db *sqlx.DB) alert.Repository {
	return &alertRepository{db: db}
}

func (repo *alertRepository) CreateAlert(ctx context.Context, al alert.ProgressAlert) (alert.ProgressAlert, error) {
	if al.ID == "" {
		al.ID = uuid.NewString()
	}
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO progress_alerts (id, parent_id, student_id, kind, severity, title, message,
			subject_id, roadmap_id, is_read, read_at, is_sent, sent_at, created_at)
		 VALUES (:id, :parent_id, :student_id, :kind, :severity, :title, :message,
			:subject_id, :roadmap_id, :is_read, :read_at, :is_sent, :sent_at, :created_at)`,
		al,
	)
	if err != nil {
		return alert.ProgressAlert{}, errors.Wrap(err, "creating alert")
	}
	return al, nil
}

func (repo *alertRepository) GetAlertByID(ctx context.Context, id string) (alert.ProgressAlert, error) {
	var al alert.ProgressAlert
	err := repo.db.GetContext(ctx, &al, `SELECT * FROM progress_alerts WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return alert.ProgressAlert{}, alert.ErrNotFound
	}
	if err != nil {
		return alert.ProgressAlert{}, errors.Wrap(err, "getting alert")
	}
	return al, nil
}

func (repo *alertRepository) QueryAlerts(ctx context.Context, parentID string, filter alert.QueryFilter) ([]alert.ProgressAlert, error) {
	query := `SELECT * FROM progress_alerts WHERE parent_id = $1`
	args := []interface{}{parentID}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Kind != "" {
		query += ` AND kind = ` + arg(filter.Kind)
	}
	if filter.StudentID != "" {
		query += ` AND student_id = ` + arg(filter.StudentID)
	}
	if filter.UnreadOnly {
		query += ` AND NOT is_read`
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}

	alerts := []alert.ProgressAlert{}
	if err := repo.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying alerts")
	}
	return alerts, nil
}

func (repo *alertRepository) HasAlert(ctx context.Context, m alert.Match) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM progress_alerts WHERE parent_id = $1 AND student_id = $2 AND kind = $3`
	args := []interface{}{m.ParentID, m.StudentID, m.Kind}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if m.SubjectID != "" {
		query += ` AND subject_id = ` + arg(m.SubjectID)
	}
	if m.RoadmapID != "" {
		query += ` AND roadmap_id = ` + arg(m.RoadmapID)
	}
	if m.Title != "" {
		query += ` AND title = ` + arg(m.Title)
	}
	if !m.Since.IsZero() {
		query += ` AND created_at >= ` + arg(m.Since)
	}
	query += `)`

	var exists bool
	err := repo.db.GetContext(ctx, &exists, query, args...)
	return exists, errors.Wrap(err, "checking alert existence")
}

func (repo *alertRepository) CountUnreadAlerts(ctx context.Context, parentID string) (int, error) {
	var count int
	err := repo.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM progress_alerts WHERE parent_id = $1 AND NOT is_read`, parentID)
	return count, errors.Wrap(err, "counting unread alerts")
}

func (repo *alertRepository) MarkAlertRead(ctx context.Context, id string, at time.Time) error {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE progress_alerts SET is_read = TRUE, read_at = $1 WHERE id = $2 AND NOT is_read`, at, id)
	if err != nil {
		return errors.Wrap(err, "marking alert read")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// already read or missing; confirm existence
		var exists bool
		if err = repo.db.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM progress_alerts WHERE id = $1)`, id); err != nil {
			return errors.Wrap(err, "checking alert")
		}
		if !exists {
			return alert.ErrNotFound
		}
	}
	return nil
}

func (repo *alertRepository) MarkAllAlertsRead(ctx context.Context, parentID string, at time.Time) error {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE progress_alerts SET is_read = TRUE, read_at = $1 WHERE parent_id = $2 AND NOT is_read`, at, parentID)
	return errors.Wrap(err, "marking alerts read")
}

func (repo *alertRepository) QueryUnsentAlerts(ctx context.Context, parentID string) ([]alert.ProgressAlert, error) {
	alerts := []alert.ProgressAlert{}
	err := repo.db.SelectContext(ctx, &alerts,
		`SELECT * FROM progress_alerts WHERE parent_id = $1 AND NOT is_sent ORDER BY created_at DESC`, parentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying unsent alerts")
	}
	return alerts, nil
}

func (repo *alertRepository) MarkAlertsSent(ctx context.Context, at time.Time, ids ...string) error {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE progress_alerts SET is_sent = TRUE, sent_at = $1 WHERE id = ANY($2)`, at, pq.Array(ids))
	return errors.Wrap(err, "marking alerts sent")
}
