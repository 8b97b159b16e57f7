package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/mawazo/studytrack/core"
	"github.com/mawazo/studytrack/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, uname)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		now := time.Now().UTC()
		usr = user.User{
			Name:               uname,
			Username:           uname,
			Email:              email,
			IsActive:           true,
			EmailNotifications: true,
			AlertPrefs:         user.DefaultAlertPrefs(),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if isAdmin {
			usr.Roles = user.AllRoles
		} else {
			usr.Roles = []string{user.RoleStudent}
		}
		if err := usr.SetPassword(pwd); err != nil {
			return err
		}
		_, err = cli.usrRepo.CreateUser(ctx, usr)
		return err
	}

	if isAdmin {
		usr.Roles = user.AllRoles
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	isActive := true
	_, err = cli.usrRepo.UpdateUser(ctx, usr, &isActive)
	return err
}
