package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/mawazo/studytrack/core/study"
	"github.com/mawazo/studytrack/core/user"
)

const samplePassword = "R3vise!Now"

// loadSampleData seeds a demo parent with two linked students, tracked
// subjects, term goals, teacher feedback and a week of study sessions.
func (cli *commandLine) loadSampleData() error {
	ctx := context.Background()

	if _, err := cli.usrRepo.GetUserByUsername(ctx, "demo_parent"); err == nil {
		return errors.New("sample data already loaded")
	} else if errors.Cause(err) != user.ErrNotFound {
		return err
	}

	parent, err := cli.sampleUser(ctx, "Pat Demo", "demo_parent", "parent@demo.local", user.RoleParent, 0)
	if err != nil {
		return err
	}

	students := []struct {
		name, uname, email string
		yearGroup          int
		subjects           []string
	}{
		{"Alex Demo", "demo_alex", "alex@demo.local", 11, []string{study.SubjectMaths, study.SubjectScience}},
		{"Bo Demo", "demo_bo", "bo@demo.local", 10, []string{study.SubjectEnglish, study.SubjectMandarin}},
	}

	for _, s := range students {
		student, err := cli.sampleUser(ctx, s.name, s.uname, s.email, user.RoleStudent, s.yearGroup)
		if err != nil {
			return err
		}
		if err := cli.usrSvc.LinkStudent(ctx, parent, student.Username); err != nil {
			return err
		}
		if err := cli.sampleStudyData(ctx, student.ID, s.subjects); err != nil {
			return err
		}
	}

	fmt.Printf("sample data loaded; all accounts use password %q\n", samplePassword)
	return nil
}

func (cli *commandLine) sampleUser(ctx context.Context, name, uname, email, role string, yearGroup int) (user.User, error) {
	ru := user.RegisterUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Role:            role,
		Password:        samplePassword,
		PasswordConfirm: samplePassword,
	}
	if yearGroup > 0 {
		ru.YearGroup = null.IntFrom(yearGroup)
	}
	return cli.usrSvc.Register(ctx, ru)
}

func (cli *commandLine) sampleStudyData(ctx context.Context, studentID string, subjects []string) error {
	today := study.Today()

	for i, name := range subjects {
		sub, err := cli.studySvc.CreateSubject(ctx, studentID, study.NewSubject{
			Name:        name,
			Description: "GCSE " + study.SubjectDisplayName(name),
		})
		if err != nil {
			return err
		}

		if _, err = cli.studySvc.CreateTermGoal(ctx, sub.ID, study.NewTermGoal{
			CurrentLevel: "5",
			TargetLevel:  "7",
			Term:         study.TermSummer2026,
			Deadline:     today.AddDays(90),
		}); err != nil {
			return err
		}

		if _, err = cli.studySvc.CreateFeedback(ctx, sub.ID, study.NewFeedback{
			Strengths:      "Solid grasp of the core topics",
			Weaknesses:     "Struggles with exam timing",
			AreasToImprove: "More past paper practice under timed conditions",
			FeedbackDate:   today.AddDays(-3),
		}); err != nil {
			return err
		}

		// a week of sessions, skipping a couple of days
		for d := 6; d >= 0; d-- {
			if d%3 == i {
				continue
			}
			if _, err = cli.studySvc.CreateSession(ctx, studentID, sub.ID, study.NewStudySession{
				HoursSpent:  0.5 + float64(d%4)*0.5,
				SessionDate: today.AddDays(-d),
				Notes:       "Revision session",
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
