package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mawazo/studytrack/core"
	"github.com/mawazo/studytrack/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	excluded := func(usr user.User) bool {
		for _, ex := range excludedUsers {
			if ex.ID == usr.ID {
				return true
			}
		}
		return false
	}

	for _, usr := range repo.query() {
		if excluded(usr) {
			continue
		}
		if usr.Username == username {
			return user.ErrUsernameExists
		}
		if usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryAllUsers(_ context.Context) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.query(), nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if usr, ok := repo.db.users[id]; ok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsername(_ context.Context, username string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.db.users {
		if usr.Username == username {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.db.users {
		if usr.Email == email {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsernameOrEmail(_ context.Context, username string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.db.users {
		if usr.Username == username || usr.Email == username {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) FilterUsers(_ context.Context, filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	matchesRole := func(usr user.User) bool {
		if filter.Roles == nil {
			return true
		}
		for _, want := range filter.Roles {
			for _, role := range usr.Roles {
				if strings.HasPrefix(role, want) {
					return true
				}
			}
		}
		return false
	}
	matchesSearch := func(usr user.User) bool {
		if filter.Search == "" {
			return true
		}
		s := strings.ToLower(filter.Search)
		return strings.Contains(strings.ToLower(usr.Name), s) ||
			strings.Contains(strings.ToLower(usr.Username), s) ||
			strings.Contains(strings.ToLower(usr.Email), s)
	}

	var users []user.User
	for _, usr := range repo.query() {
		if !matchesSearch(usr) || !matchesRole(usr) {
			continue
		}
		if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
			continue
		}
		if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
			continue
		}
		if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
			continue
		}
		users = append(users, usr)
	}
	orderUsers(users, orderings)
	return users, nil
}

// orderUsers sorts in place; query() already orders by CreatedAt which stays
// the default when no usable ordering is given.
func orderUsers(users []user.User, orderings []core.DBOrdering) {
	if len(orderings) == 0 {
		return
	}
	var key func(usr user.User) string
	switch orderings[0].Field {
	case "name":
		key = func(usr user.User) string { return usr.Name }
	case "username":
		key = func(usr user.User) string { return usr.Username }
	case "email":
		key = func(usr user.User) string { return usr.Email }
	default:
		return // unknown field, keep default order
	}
	sort.SliceStable(users, func(i, j int) bool {
		if orderings[0].Ascending {
			return key(users[i]) < key(users[j])
		}
		return key(users[i]) > key(users[j])
	})
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, isActive *bool) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
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
	return *orig, nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, id := range ids {
		delete(repo.db.users, id)
		delete(repo.db.parentLinks, id)
	}
	return nil
}

func (repo *userRepository) LinkStudent(_ context.Context, parentID, studentID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, id := range repo.db.parentLinks[parentID] {
		if id == studentID {
			return nil
		}
	}
	repo.db.parentLinks[parentID] = append(repo.db.parentLinks[parentID], studentID)
	return nil
}

func (repo *userRepository) QueryStudents(_ context.Context, parentID string) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var students []user.User
	for _, id := range repo.db.parentLinks[parentID] {
		if usr, ok := repo.db.users[id]; ok {
			students = append(students, *usr)
		}
	}
	return students, nil
}

func (repo *userRepository) QueryParents(_ context.Context, studentID string) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var parents []user.User
	for parentID, studentIDs := range repo.db.parentLinks {
		for _, id := range studentIDs {
			if id == studentID {
				if usr, ok := repo.db.users[parentID]; ok {
					parents = append(parents, *usr)
				}
				break
			}
		}
	}
	sort.Slice(parents, func(i, j int) bool { return parents[i].Name < parents[j].Name })
	return parents, nil
}

func (repo *userRepository) UpdateAlertPrefs(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	orig.EmailNotifications = usr.EmailNotifications
	orig.AlertPrefs = usr.AlertPrefs
	orig.UpdatedAt = time.Now().UTC()
	return *orig, nil
}

func (repo *userRepository) SetLastAlertSent(_ context.Context, parentID string, at time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr, ok := repo.db.users[parentID]
	if !ok {
		return user.ErrNotFound
	}
	usr.LastAlertSentAt = at
	return nil
}
