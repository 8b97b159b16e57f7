package user

import (
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/mawazo/studytrack/core"
)

// Roles
const (
	RoleAdmin   = "admin:"
	RoleStudent = "student:"
	RoleParent  = "parent:"
)

// Alert digest frequencies
const (
	FrequencyImmediate = "immediate"
	FrequencyDaily     = "daily"
	FrequencyWeekly    = "weekly"
)

var (
	AllRoles = []string{RoleAdmin, RoleStudent, RoleParent}

	// SelfRegisterRoles are the roles open to public signup.
	SelfRegisterRoles = []string{RoleStudent, RoleParent}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Parent", Value: RoleParent},
		{Name: "Admin", Value: RoleAdmin},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AlertPrefs holds a parent's progress-alert preferences.
type AlertPrefs struct {
	LowActivity      bool   `json:"low_activity"`
	LowActivityDays  int    `json:"low_activity_days" validate:"omitempty,min=1,max=90"`
	GoalAtRisk       bool   `json:"goal_at_risk"`
	GoalAtRiskDays   int    `json:"goal_at_risk_days" validate:"omitempty,min=1,max=90"`
	Milestones       bool   `json:"milestones"`
	RoadmapCompleted bool   `json:"roadmap_completed"`
	StreakBroken     bool   `json:"streak_broken"`
	NewFeedback      bool   `json:"new_feedback"`
	Frequency        string `json:"frequency" validate:"omitempty,oneof=immediate daily weekly"`
}

// DefaultAlertPrefs enables every alert kind with sane thresholds.
func DefaultAlertPrefs() AlertPrefs {
	return AlertPrefs{
		LowActivity:      true,
		LowActivityDays:  3,
		GoalAtRisk:       true,
		GoalAtRiskDays:   14,
		Milestones:       true,
		RoadmapCompleted: true,
		StreakBroken:     true,
		NewFeedback:      true,
		Frequency:        FrequencyImmediate,
	}
}

type User struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Username           string     `json:"username"`
	Email              string     `json:"email"`
	YearGroup          null.Int   `json:"year_group"` // students only
	IsActive           bool       `json:"is_active"`
	Roles              []string   `json:"roles"`
	EmailNotifications bool       `json:"email_notifications"`
	AlertPrefs         AlertPrefs `json:"alert_prefs"`
	LastAlertSentAt    time.Time  `json:"-"` // UTC; zero when never sent
	PasswordHash       []byte     `json:"-"`
	CreatedAt          time.Time  `json:"created_at"` // UTC
	UpdatedAt          time.Time  `json:"updated_at"` // UTC
	LastLogin          time.Time  `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool   { return u.RoleStartsWith(RoleAdmin) }
func (u *User) IsStudent() bool { return u.RoleStartsWith(RoleStudent) }
func (u *User) IsParent() bool  { return u.RoleStartsWith(RoleParent) }

// NewUser contains information needed to create a new User (admin only).
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	YearGroup       null.Int `json:"year_group" validate:"omitempty"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := core.Validate.Struct(nu); err != nil {
		return err
	}
	return svc.checkUniqueness(nu.Username, nu.Email)
}

// RegisterUser is the open student/parent signup payload.
type RegisterUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"required,min=3,alphanum_"`
	Email           string   `json:"email" validate:"required,email"`
	Role            string   `json:"role" validate:"required,oneof=student: parent:"`
	YearGroup       null.Int `json:"year_group" validate:"omitempty"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (ru *RegisterUser) Validate(svc *Service) error {
	ru.Name = core.CleanString(ru.Name)
	ru.Username = core.CleanString(ru.Username, true /* lower */)
	ru.Email = core.CleanString(ru.Email, true /* lower */)

	if err := core.Validate.Struct(ru); err != nil {
		return err
	}
	return svc.checkUniqueness(ru.Username, ru.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	YearGroup       null.Int `json:"year_group"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(origUsr User, svc *Service) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}
	if uname := core.CleanString(uu.Username, true /* lower */); uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := core.Validate.Struct(uu); err != nil {
		return err
	}
	return svc.checkUniqueness(uu.Username, uu.Email, origUsr)
}

// UpdateAlertPrefs updates a parent's alert preferences.
type UpdateAlertPrefs struct {
	EmailNotifications *bool       `json:"email_notifications"`
	AlertPrefs         *AlertPrefs `json:"alert_prefs"`
}

func (up *UpdateAlertPrefs) Validate() error { return core.Validate.Struct(up) }

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate() error { return core.Validate.Struct(rp) }

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
