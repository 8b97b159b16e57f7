package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/mawazo/studytrack/core/study"
	"github.com/mawazo/studytrack/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:               name,
		Username:           uname,
		Email:              email,
		Roles:              roles,
		IsActive:           isActive,
		EmailNotifications: true,
		AlertPrefs:         user.DefaultAlertPrefs(),
		CreatedAt:          tstamp,
		UpdatedAt:          tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateSubject(t *testing.T, repo study.Repository, studentID, name string) study.Subject {
	t.Helper()

	now := time.Now().UTC()
	sub, err := repo.CreateSubject(context.Background(), study.Subject{
		StudentID:   studentID,
		Name:        name,
		Description: "GCSE " + study.SubjectDisplayName(name),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	return sub
}

func CreateTermGoal(t *testing.T, repo study.Repository, subjectID string, deadline study.Date) study.TermGoal {
	t.Helper()

	goal, err := repo.CreateTermGoal(context.Background(), study.TermGoal{
		SubjectID:    subjectID,
		CurrentLevel: "5",
		TargetLevel:  "7",
		Term:         study.TermSummer2026,
		Deadline:     deadline,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateTermGoal() failed: %v", err)
	}
	return goal
}

func CreateSession(t *testing.T, repo study.Repository, studentID, subjectID string, hours float64, day study.Date) study.StudySession {
	t.Helper()

	sess, err := repo.CreateSession(context.Background(), study.StudySession{
		StudentID:   studentID,
		SubjectID:   subjectID,
		HoursSpent:  hours,
		SessionDate: day,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	return sess
}
