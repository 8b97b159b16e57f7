// Package inmemdb provides map-backed repositories for tests.
package inmemdb

import (
	"sync"

	"github.com/mawazo/studytrack/core/alert"
	"github.com/mawazo/studytrack/core/roadmap"
	"github.com/mawazo/studytrack/core/study"
	"github.com/mawazo/studytrack/core/user"
)

type DB struct {
	mutex sync.RWMutex

	users        map[string]*user.User
	parentLinks  map[string][]string // parent ID -> student IDs
	subjects     map[string]*study.Subject
	termGoals    map[string]*study.TermGoal
	feedback     map[string]*study.Feedback
	sessions     map[string]*study.StudySession
	roadmaps     map[string]*roadmap.Roadmap
	steps        map[string]*roadmap.Step
	items        map[string]*roadmap.ChecklistItem
	resources    map[string]*roadmap.Resource
	alerts       map[string]*alert.ProgressAlert
	itemCreation map[string]int // insertion order, keeps listings stable
}

func NewDB() *DB {
	return &DB{
		users:        make(map[string]*user.User),
		parentLinks:  make(map[string][]string),
		subjects:     make(map[string]*study.Subject),
		termGoals:    make(map[string]*study.TermGoal),
		feedback:     make(map[string]*study.Feedback),
		sessions:     make(map[string]*study.StudySession),
		roadmaps:     make(map[string]*roadmap.Roadmap),
		steps:        make(map[string]*roadmap.Step),
		items:        make(map[string]*roadmap.ChecklistItem),
		resources:    make(map[string]*roadmap.Resource),
		alerts:       make(map[string]*alert.ProgressAlert),
		itemCreation: make(map[string]int),
	}
}
