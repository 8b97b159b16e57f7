package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/mawazo/studytrack/core/roadmap"
)

type roadmapRepository struct {
	db *DB
}

var _ roadmap.Repository = (*roadmapRepository)(nil)

func NewRoadmapRepository(db *DB) roadmap.Repository {
	return &roadmapRepository{db: db}
}

func (repo *roadmapRepository) SaveRoadmap(_ context.Context, rm roadmap.Roadmap) (roadmap.Roadmap, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, other := range repo.db.roadmaps {
		if other.SubjectID == rm.SubjectID {
			other.IsActive = false
		}
	}

	if rm.ID == "" {
		rm.ID = uuid.NewString()
	}
	rm.TotalSteps = len(rm.Steps)
	for i := range rm.Steps {
		step := &rm.Steps[i]
		step.ID = uuid.NewString()
		step.RoadmapID = rm.ID
		for j := range step.ChecklistItems {
			item := &step.ChecklistItems[j]
			item.ID = uuid.NewString()
			item.StepID = step.ID
			repo.db.itemCreation[item.ID] = len(repo.db.itemCreation)
			itemCopy := *item
			repo.db.items[item.ID] = &itemCopy
		}
		for j := range step.Resources {
			res := &step.Resources[j]
			res.ID = uuid.NewString()
			res.StepID = step.ID
			resCopy := *res
			repo.db.resources[res.ID] = &resCopy
		}
		stepCopy := *step
		stepCopy.ChecklistItems = nil
		stepCopy.Resources = nil
		repo.db.steps[step.ID] = &stepCopy
	}
	rmCopy := rm
	rmCopy.Steps = nil
	repo.db.roadmaps[rm.ID] = &rmCopy
	return rm, nil
}

func (repo *roadmapRepository) stepTree(stepID string) (roadmap.Step, bool) {
	step, ok := repo.db.steps[stepID]
	if !ok {
		return roadmap.Step{}, false
	}
	full := *step
	full.ChecklistItems = []roadmap.ChecklistItem{}
	for _, item := range repo.db.items {
		if item.StepID == stepID {
			full.ChecklistItems = append(full.ChecklistItems, *item)
		}
	}
	sort.Slice(full.ChecklistItems, func(i, j int) bool {
		return repo.db.itemCreation[full.ChecklistItems[i].ID] < repo.db.itemCreation[full.ChecklistItems[j].ID]
	})
	full.Resources = []roadmap.Resource{}
	for _, res := range repo.db.resources {
		if res.StepID == stepID {
			full.Resources = append(full.Resources, *res)
		}
	}
	sort.Slice(full.Resources, func(i, j int) bool { return full.Resources[i].ID < full.Resources[j].ID })
	return full, true
}

func (repo *roadmapRepository) GetRoadmapByID(_ context.Context, id string) (roadmap.Roadmap, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rm, ok := repo.db.roadmaps[id]
	if !ok {
		return roadmap.Roadmap{}, roadmap.ErrNotFound
	}
	full := *rm
	full.Steps = []roadmap.Step{}
	for _, step := range repo.db.steps {
		if step.RoadmapID == id {
			tree, _ := repo.stepTree(step.ID)
			full.Steps = append(full.Steps, tree)
		}
	}
	sort.Slice(full.Steps, func(i, j int) bool { return full.Steps[i].OrderNumber < full.Steps[j].OrderNumber })
	return full, nil
}

func (repo *roadmapRepository) GetStepByID(_ context.Context, id string) (roadmap.Step, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if step, ok := repo.stepTree(id); ok {
		return step, nil
	}
	return roadmap.Step{}, roadmap.ErrStepNotFound
}

func (repo *roadmapRepository) queryRoadmaps(match func(roadmap.Roadmap) bool) []roadmap.Roadmap {
	roadmaps := []roadmap.Roadmap{}
	for _, rm := range repo.db.roadmaps {
		if match(*rm) {
			roadmaps = append(roadmaps, *rm)
		}
	}
	sort.Slice(roadmaps, func(i, j int) bool {
		return roadmaps[i].GeneratedAt.After(roadmaps[j].GeneratedAt)
	})
	return roadmaps
}

func (repo *roadmapRepository) QueryRoadmapsBySubject(_ context.Context, subjectID string) ([]roadmap.Roadmap, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.queryRoadmaps(func(rm roadmap.Roadmap) bool { return rm.SubjectID == subjectID }), nil
}

func (repo *roadmapRepository) QueryActiveRoadmapsByStudent(_ context.Context, studentID string) ([]roadmap.Roadmap, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.queryRoadmaps(func(rm roadmap.Roadmap) bool { return rm.StudentID == studentID && rm.IsActive }), nil
}

func (repo *roadmapRepository) GetActiveRoadmapBySubject(_ context.Context, subjectID string) (roadmap.Roadmap, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	active := repo.queryRoadmaps(func(rm roadmap.Roadmap) bool { return rm.SubjectID == subjectID && rm.IsActive })
	if len(active) == 0 {
		return roadmap.Roadmap{}, roadmap.ErrNotFound
	}
	return active[0], nil
}

func (repo *roadmapRepository) DeleteRoadmap(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.roadmaps, id)
	for stepID, step := range repo.db.steps {
		if step.RoadmapID != id {
			continue
		}
		for itemID, item := range repo.db.items {
			if item.StepID == stepID {
				delete(repo.db.items, itemID)
				delete(repo.db.itemCreation, itemID)
			}
		}
		for resID, res := range repo.db.resources {
			if res.StepID == stepID {
				delete(repo.db.resources, resID)
			}
		}
		delete(repo.db.steps, stepID)
	}
	return nil
}

func (repo *roadmapRepository) GetChecklistItemByID(_ context.Context, id string) (roadmap.ChecklistItem, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if item, ok := repo.db.items[id]; ok {
		return *item, nil
	}
	return roadmap.ChecklistItem{}, roadmap.ErrItemNotFound
}

func (repo *roadmapRepository) GetChecklistItemOwner(_ context.Context, itemID string) (stepID, roadmapID, studentID string, err error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	item, ok := repo.db.items[itemID]
	if !ok {
		return "", "", "", roadmap.ErrItemNotFound
	}
	step, ok := repo.db.steps[item.StepID]
	if !ok {
		return "", "", "", roadmap.ErrStepNotFound
	}
	rm, ok := repo.db.roadmaps[step.RoadmapID]
	if !ok {
		return "", "", "", roadmap.ErrNotFound
	}
	return step.ID, rm.ID, rm.StudentID, nil
}

func (repo *roadmapRepository) UpdateChecklistItem(_ context.Context, item roadmap.ChecklistItem) (roadmap.ChecklistItem, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.items[item.ID]
	if !ok {
		return roadmap.ChecklistItem{}, roadmap.ErrItemNotFound
	}
	orig.IsCompleted = item.IsCompleted
	orig.CompletedAt = item.CompletedAt
	return *orig, nil
}

func (repo *roadmapRepository) countItems(match func(roadmap.ChecklistItem) bool) (completed, total int) {
	for _, item := range repo.db.items {
		if !match(*item) {
			continue
		}
		total++
		if item.IsCompleted {
			completed++
		}
	}
	return completed, total
}

func (repo *roadmapRepository) CountRoadmapItems(_ context.Context, roadmapID string) (completed, total int, err error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	completed, total = repo.countItems(func(item roadmap.ChecklistItem) bool {
		step, ok := repo.db.steps[item.StepID]
		return ok && step.RoadmapID == roadmapID
	})
	return completed, total, nil
}

func (repo *roadmapRepository) CountStepItems(_ context.Context, stepID string) (completed, total int, err error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	completed, total = repo.countItems(func(item roadmap.ChecklistItem) bool { return item.StepID == stepID })
	return completed, total, nil
}

func (repo *roadmapRepository) CountStudentItems(_ context.Context, studentID string) (completed, total int, err error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	completed, total = repo.countItems(func(item roadmap.ChecklistItem) bool {
		step, ok := repo.db.steps[item.StepID]
		if !ok {
			return false
		}
		rm, ok := repo.db.roadmaps[step.RoadmapID]
		return ok && rm.StudentID == studentID
	})
	return completed, total, nil
}

func (repo *roadmapRepository) QueryRecentCompletions(_ context.Context, studentID string, limit int) ([]roadmap.ChecklistItem, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	items := []roadmap.ChecklistItem{}
	for _, item := range repo.db.items {
		if !item.IsCompleted {
			continue
		}
		step, ok := repo.db.steps[item.StepID]
		if !ok {
			continue
		}
		rm, ok := repo.db.roadmaps[step.RoadmapID]
		if !ok || rm.StudentID != studentID {
			continue
		}
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CompletedAt.After(items[j].CompletedAt) })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
