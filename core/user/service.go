package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/mawazo/studytrack/core"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
	ErrNotLinked      = errors.New("student is not linked to this parent")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		QueryAllUsers(ctx context.Context) ([]User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByUsername(ctx context.Context, username string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		GetUserByUsernameOrEmail(ctx context.Context, username string) (User, error)
		// FilterUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of Name, Username or Email.
		FilterUsers(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]User, error)
		UpdateUser(ctx context.Context, usr User, isActive *bool) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error

		// parent <-> student links
		LinkStudent(ctx context.Context, parentID, studentID string) error
		QueryStudents(ctx context.Context, parentID string) ([]User, error)
		QueryParents(ctx context.Context, studentID string) ([]User, error)

		UpdateAlertPrefs(ctx context.Context, usr User) (User, error)
		SetLastAlertSent(ctx context.Context, parentID string, at time.Time) error
	}

	Service struct {
		conf    *core.Config
		repo    Repository
		mailSvc core.EmailService
	}
)

func NewService(conf *core.Config, repo Repository, mailSvc core.EmailService) *Service {
	return &Service{conf: conf, repo: repo, mailSvc: mailSvc}
}

func (svc *Service) checkUniqueness(uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(context.Background(), uname, email, exclUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:               nu.Name,
		Username:           nu.Username,
		Email:              nu.Email,
		YearGroup:          nu.YearGroup,
		IsActive:           true,
		Roles:              nu.Roles,
		EmailNotifications: true,
		AlertPrefs:         DefaultAlertPrefs(),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

// Register creates a student or parent account from the public signup form.
func (svc *Service) Register(ctx context.Context, ru RegisterUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:               ru.Name,
		Username:           ru.Username,
		Email:              ru.Email,
		IsActive:           true,
		Roles:              []string{ru.Role},
		EmailNotifications: true,
		AlertPrefs:         DefaultAlertPrefs(),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if ru.Role == RoleStudent {
		usr.YearGroup = ru.YearGroup
	}
	if err := usr.SetPassword(ru.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) QueryAll(ctx context.Context) ([]User, error) {
	return svc.repo.QueryAllUsers(ctx)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsername(ctx, core.CleanString(uname, true /* lower */))
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsernameOrEmail(ctx, core.CleanString(uname, true /* lower */))
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]User, error) {
	return svc.repo.FilterUsers(ctx, filter, orderings...)
}

func (svc *Service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr := User{
		ID:        id,
		Name:      uu.Name,
		Username:  uu.Username,
		Email:     uu.Email,
		YearGroup: uu.YearGroup,
		Roles:     uu.Roles,
		UpdatedAt: time.Now().UTC(),
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, err
		}
	}
	return svc.repo.UpdateUser(ctx, usr, uu.IsActive)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr, nil)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}

// LinkStudent links a student account to a parent account for monitoring.
func (svc *Service) LinkStudent(ctx context.Context, parent User, studentUname string) error {
	student, err := svc.GetByUsernameOrEmail(ctx, studentUname)
	if err != nil {
		return err
	}
	if !student.IsStudent() {
		return core.NewValidationError(nil, core.FieldError{Field: "student", Error: "not a student account"})
	}
	return svc.repo.LinkStudent(ctx, parent.ID, student.ID)
}

// Students returns the students linked to a parent.
func (svc *Service) Students(ctx context.Context, parentID string) ([]User, error) {
	return svc.repo.QueryStudents(ctx, parentID)
}

// Parents returns the parents monitoring a student.
func (svc *Service) Parents(ctx context.Context, studentID string) ([]User, error) {
	return svc.repo.QueryParents(ctx, studentID)
}

// IsLinked reports whether studentID is linked to parentID.
func (svc *Service) IsLinked(ctx context.Context, parentID, studentID string) (bool, error) {
	students, err := svc.repo.QueryStudents(ctx, parentID)
	if err != nil {
		return false, err
	}
	for _, s := range students {
		if s.ID == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (svc *Service) SetAlertPrefs(ctx context.Context, usr User, up UpdateAlertPrefs) (User, error) {
	if up.EmailNotifications != nil {
		usr.EmailNotifications = *up.EmailNotifications
	}
	if up.AlertPrefs != nil {
		usr.AlertPrefs = *up.AlertPrefs
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAlertPrefs(ctx, usr)
}

func (svc *Service) SetLastAlertSent(ctx context.Context, parentID string, at time.Time) error {
	return svc.repo.SetLastAlertSent(ctx, parentID, at)
}

// RequestPasswordReset emails a password reset link to the given address
// if an active account exists for it.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}

	token, err := MakeToken(svc.conf, usr)
	if err != nil {
		return errors.Wrap(err, "making token")
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password-reset",
		TemplateData: struct {
			User  User
			UID   string
			Token string
		}{usr, EncodeUID(usr), token},
	})
	return nil
}

// ResetPassword sets a new password given a valid reset token.
func (svc *Service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	uid, err := decodeUID(rp.UID)
	if err != nil {
		return core.NewValidationError(errInvalidToken)
	}
	usr, err := svc.GetByID(ctx, uid)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewValidationError(errInvalidToken)
		}
		return err
	}
	if err = verifyToken(svc.conf, usr, rp.Token); err != nil {
		return core.NewValidationError(err)
	}
	if err = usr.SetPassword(rp.Password); err != nil {
		return err
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr, nil)
	return err
}
