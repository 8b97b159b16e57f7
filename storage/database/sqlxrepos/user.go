package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/mawazo/studytrack/core"
	"github.com/mawazo/studytrack/core/user"
)

// columns that may be used in a caller-supplied ordering
var orderableUserCols = map[string]bool{
	"name":       true,
	"username":   true,
	"email":      true,
	"created_at": true,
	"last_login": true,
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

type userRow struct {
	ID                   string         `db:"id"`
	Name                 string         `db:"name"`
	Username             string         `db:"username"`
	Email                string         `db:"email"`
	YearGroup            null.Int       `db:"year_group"`
	IsActive             bool           `db:"is_active"`
	Roles                pq.StringArray `db:"roles"`
	EmailNotifications   bool           `db:"email_notifications"`
	AlertLowActivity     bool           `db:"alert_low_activity"`
	AlertLowActivityDays int            `db:"alert_low_activity_days"`
	AlertGoalAtRisk      bool           `db:"alert_goal_at_risk"`
	AlertGoalAtRiskDays  int            `db:"alert_goal_at_risk_days"`
	AlertMilestones      bool           `db:"alert_milestones"`
	AlertRoadmapComplete bool           `db:"alert_roadmap_completed"`
	AlertStreakBroken    bool           `db:"alert_streak_broken"`
	AlertNewFeedback     bool           `db:"alert_new_feedback"`
	AlertFrequency       string         `db:"alert_frequency"`
	LastAlertSentAt      sql.NullTime   `db:"last_alert_sent_at"`
	PasswordHash         []byte         `db:"password_hash"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
	LastLogin            sql.NullTime   `db:"last_login"`
}

func newUserRow(usr user.User) userRow {
	return userRow{
		ID:                   usr.ID,
		Name:                 usr.Name,
		Username:             usr.Username,
		Email:                usr.Email,
		YearGroup:            usr.YearGroup,
		IsActive:             usr.IsActive,
		Roles:                usr.Roles,
		EmailNotifications:   usr.EmailNotifications,
		AlertLowActivity:     usr.AlertPrefs.LowActivity,
		AlertLowActivityDays: usr.AlertPrefs.LowActivityDays,
		AlertGoalAtRisk:      usr.AlertPrefs.GoalAtRisk,
		AlertGoalAtRiskDays:  usr.AlertPrefs.GoalAtRiskDays,
		AlertMilestones:      usr.AlertPrefs.Milestones,
		AlertRoadmapComplete: usr.AlertPrefs.RoadmapCompleted,
		AlertStreakBroken:    usr.AlertPrefs.StreakBroken,
		AlertNewFeedback:     usr.AlertPrefs.NewFeedback,
		AlertFrequency:       usr.AlertPrefs.Frequency,
		LastAlertSentAt:      nullTime(usr.LastAlertSentAt),
		PasswordHash:         usr.PasswordHash,
		CreatedAt:            usr.CreatedAt,
		UpdatedAt:            usr.UpdatedAt,
		LastLogin:            nullTime(usr.LastLogin),
	}
}

func (row userRow) user() user.User {
	return user.User{
		ID:                 row.ID,
		Name:               row.Name,
		Username:           row.Username,
		Email:              row.Email,
		YearGroup:          row.YearGroup,
		IsActive:           row.IsActive,
		Roles:              row.Roles,
		EmailNotifications: row.EmailNotifications,
		AlertPrefs: user.AlertPrefs{
			LowActivity:      row.AlertLowActivity,
			LowActivityDays:  row.AlertLowActivityDays,
			GoalAtRisk:       row.AlertGoalAtRisk,
			GoalAtRiskDays:   row.AlertGoalAtRiskDays,
			Milestones:       row.AlertMilestones,
			RoadmapCompleted: row.AlertRoadmapComplete,
			StreakBroken:     row.AlertStreakBroken,
			NewFeedback:      row.AlertNewFeedback,
			Frequency:        row.AlertFrequency,
		},
		LastAlertSentAt: row.LastAlertSentAt.Time,
		PasswordHash:    row.PasswordHash,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
		LastLogin:       row.LastLogin.Time,
	}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

const userCols = `id, name, username, email, year_group, is_active, roles, email_notifications,
	alert_low_activity, alert_low_activity_days, alert_goal_at_risk, alert_goal_at_risk_days,
	alert_milestones, alert_roadmap_completed, alert_streak_broken, alert_new_feedback,
	alert_frequency, last_alert_sent_at, password_hash, created_at, updated_at, last_login`

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	excluded := make([]string, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		excluded = append(excluded, usr.ID)
	}

	var taken struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	err := repo.db.GetContext(ctx, &taken,
		`SELECT username, email FROM users
		 WHERE (username = $1 OR email = $2) AND id <> ALL($3) LIMIT 1`,
		username, email, pq.Array(excluded),
	)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	if taken.Username == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	row := newUserRow(usr)
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO users (`+userCols+`)
		 VALUES (:id, :name, :username, :email, :year_group, :is_active, :roles, :email_notifications,
			:alert_low_activity, :alert_low_activity_days, :alert_goal_at_risk, :alert_goal_at_risk_days,
			:alert_milestones, :alert_roadmap_completed, :alert_streak_broken, :alert_new_feedback,
			:alert_frequency, :last_alert_sent_at, :password_hash, :created_at, :updated_at, :last_login)`,
		row,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo *userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	var rows []userRow
	err := repo.db.SelectContext(ctx, &rows, `SELECT `+userCols+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return usersFromRows(rows), nil
}

func (repo *userRepository) getUser(ctx context.Context, query string, args ...interface{}) (user.User, error) {
	var row userRow
	err := repo.db.GetContext(ctx, &row, query, args...)
	if err == sql.ErrNoRows {
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.user(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getUser(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return repo.getUser(ctx, `SELECT `+userCols+` FROM users WHERE username = $1`, username)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email)
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	return repo.getUser(ctx, `SELECT `+userCols+` FROM users WHERE username = $1 OR email = $1`, username)
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	query := `SELECT ` + userCols + ` FROM users WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		query += ` AND (name ILIKE ` + p + ` OR username ILIKE ` + p + ` OR email ILIKE ` + p + `)`
	}
	if filter.Roles != nil {
		query += ` AND roles && ` + arg(pq.Array(filter.Roles))
	}
	if filter.IsActive != nil {
		query += ` AND is_active = ` + arg(*filter.IsActive)
	}
	if !filter.CreatedFrom.IsZero() {
		query += ` AND created_at >= ` + arg(filter.CreatedFrom)
	}
	if !filter.CreatedTo.IsZero() {
		query += ` AND created_at <= ` + arg(filter.CreatedTo)
	}
	var orderBy []string
	for _, ord := range orderings {
		if orderableUserCols[ord.Field] {
			orderBy = append(orderBy, ord.String())
		}
	}
	if orderBy == nil {
		orderBy = []string{"created_at ASC"}
	}
	query += ` ORDER BY ` + strings.Join(orderBy, ", ")

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	return usersFromRows(rows), nil
}

// UpdateUser merges the provided non-zero fields into the stored user.
func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	orig, err := repo.GetUserByID(ctx, usr.ID)
	if err != nil {
		return user.User{}, err
	}

	if usr.Name != "" {
		orig.Name = usr.Name
	}
	if usr.Username != "" {
		orig.Username = usr.Username
	}
	if usr.Email != "" {
		orig.Email = usr.Email
	}
	if usr.YearGroup.Valid {
		orig.YearGroup = usr.YearGroup
	}
	if usr.Roles != nil {
		orig.Roles = usr.Roles
	}
	if len(usr.PasswordHash) > 0 {
		orig.PasswordHash = usr.PasswordHash
	}
	if !usr.LastLogin.IsZero() {
		orig.LastLogin = usr.LastLogin
	}
	if isActive != nil {
		orig.IsActive = *isActive
	}
	orig.UpdatedAt = time.Now().UTC()

	row := newUserRow(orig)
	_, err = repo.db.NamedExecContext(ctx,
		`UPDATE users SET name = :name, username = :username, email = :email, year_group = :year_group,
			is_active = :is_active, roles = :roles, password_hash = :password_hash,
			updated_at = :updated_at, last_login = :last_login
		 WHERE id = :id`,
		row,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return orig, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM users WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting users")
}

func (repo *userRepository) LinkStudent(ctx context.Context, parentID, studentID string) error {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO parent_students (parent_id, student_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		parentID, studentID,
	)
	return errors.Wrap(err, "linking student")
}

func (repo *userRepository) QueryStudents(ctx context.Context, parentID string) ([]user.User, error) {
	var rows []userRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+userCols+` FROM users
		 WHERE id IN (SELECT student_id FROM parent_students WHERE parent_id = $1)
		 ORDER BY name`,
		parentID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return usersFromRows(rows), nil
}

func (repo *userRepository) QueryParents(ctx context.Context, studentID string) ([]user.User, error) {
	var rows []userRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+userCols+` FROM users
		 WHERE id IN (SELECT parent_id FROM parent_students WHERE student_id = $1)
		 ORDER BY name`,
		studentID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying parents")
	}
	return usersFromRows(rows), nil
}

func (repo *userRepository) UpdateAlertPrefs(ctx context.Context, usr user.User) (user.User, error) {
	usr.UpdatedAt = time.Now().UTC()
	row := newUserRow(usr)
	_, err := repo.db.NamedExecContext(ctx,
		`UPDATE users SET email_notifications = :email_notifications,
			alert_low_activity = :alert_low_activity, alert_low_activity_days = :alert_low_activity_days,
			alert_goal_at_risk = :alert_goal_at_risk, alert_goal_at_risk_days = :alert_goal_at_risk_days,
			alert_milestones = :alert_milestones, alert_roadmap_completed = :alert_roadmap_completed,
			alert_streak_broken = :alert_streak_broken, alert_new_feedback = :alert_new_feedback,
			alert_frequency = :alert_frequency, updated_at = :updated_at
		 WHERE id = :id`,
		row,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating alert prefs")
	}
	return usr, nil
}

func (repo *userRepository) SetLastAlertSent(ctx context.Context, parentID string, at time.Time) error {
	_, err := repo.db.ExecContext(ctx, `UPDATE users SET last_alert_sent_at = $1 WHERE id = $2`, at, parentID)
	return errors.Wrap(err, "setting last alert sent")
}

func usersFromRows(rows []userRow) []user.User {
	users := make([]user.User, len(rows))
	for i, row := range rows {
		users[i] = row.user()
	}
	return users
}

