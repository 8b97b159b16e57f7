package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/mawazo/studytrack/core/alert"
)

type alertRepository struct {
	db *DB
}

var _ alert.Repository = (*alertRepository)(nil)

func NewAlertRepository(db *DB) alert.Repository {
	return &alertRepository{db: db}
}

func (repo *alertRepository) CreateAlert(_ context.Context, al alert.ProgressAlert) (alert.ProgressAlert, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if al.ID == "" {
		al.ID = uuid.NewString()
	}
	repo.db.alerts[al.ID] = &al
	return al, nil
}

func (repo *alertRepository) GetAlertByID(_ context.Context, id string) (alert.ProgressAlert, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if al, ok := repo.db.alerts[id]; ok {
		return *al, nil
	}
	return alert.ProgressAlert{}, alert.ErrNotFound
}

func (repo *alertRepository) queryAlerts(match func(alert.ProgressAlert) bool) []alert.ProgressAlert {
	alerts := []alert.ProgressAlert{}
	for _, al := range repo.db.alerts {
		if match(*al) {
			alerts = append(alerts, *al)
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].CreatedAt.After(alerts[j].CreatedAt) })
	return alerts
}

func (repo *alertRepository) QueryAlerts(_ context.Context, parentID string, filter alert.QueryFilter) ([]alert.ProgressAlert, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	alerts := repo.queryAlerts(func(al alert.ProgressAlert) bool {
		if al.ParentID != parentID {
			return false
		}
		if filter.Kind != "" && al.Kind != filter.Kind {
			return false
		}
		if filter.StudentID != "" && al.StudentID != filter.StudentID {
			return false
		}
		if filter.UnreadOnly && al.IsRead {
			return false
		}
		return true
	})
	if filter.Limit > 0 && len(alerts) > filter.Limit {
		alerts = alerts[:filter.Limit]
	}
	return alerts, nil
}

func (repo *alertRepository) HasAlert(_ context.Context, m alert.Match) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, al := range repo.db.alerts {
		if al.ParentID != m.ParentID || al.StudentID != m.StudentID || al.Kind != m.Kind {
			continue
		}
		if m.SubjectID != "" && al.SubjectID.String != m.SubjectID {
			continue
		}
		if m.RoadmapID != "" && al.RoadmapID.String != m.RoadmapID {
			continue
		}
		if m.Title != "" && al.Title != m.Title {
			continue
		}
		if !m.Since.IsZero() && al.CreatedAt.Before(m.Since) {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (repo *alertRepository) CountUnreadAlerts(_ context.Context, parentID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var count int
	for _, al := range repo.db.alerts {
		if al.ParentID == parentID && !al.IsRead {
			count++
		}
	}
	return count, nil
}

func (repo *alertRepository) MarkAlertRead(_ context.Context, id string, at time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	al, ok := repo.db.alerts[id]
	if !ok {
		return alert.ErrNotFound
	}
	if !al.IsRead {
		al.IsRead = true
		al.ReadAt = null.TimeFrom(at)
	}
	return nil
}

func (repo *alertRepository) MarkAllAlertsRead(_ context.Context, parentID string, at time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, al := range repo.db.alerts {
		if al.ParentID == parentID && !al.IsRead {
			al.IsRead = true
			al.ReadAt = null.TimeFrom(at)
		}
	}
	return nil
}

func (repo *alertRepository) QueryUnsentAlerts(_ context.Context, parentID string) ([]alert.ProgressAlert, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return repo.queryAlerts(func(al alert.ProgressAlert) bool {
		return al.ParentID == parentID && !al.IsSent
	}), nil
}

func (repo *alertRepository) MarkAlertsSent(_ context.Context, at time.Time, ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, id := range ids {
		if al, ok := repo.db.alerts[id]; ok {
			al.IsSent = true
			al.SentAt = null.TimeFrom(at)
		}
	}
	return nil
}
