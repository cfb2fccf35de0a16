package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-guardian/core"
	"github.com/trezcool/masomo-guardian/core/user"
)

// addUser updates or creates a user.User.
// Users added by an operator are trusted: their email is marked verified.
func (cli *commandLine) addUser(ctx context.Context, name, email, pwd string, isAdmin, isTeacher bool) error {
	name = core.CleanString(name)
	email = core.CleanString(email, true /* lower */)
	now := time.Now().UTC()

	usr, err := cli.usrRepo.GetUserByEmail(ctx, email)
	exists := err == nil
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{ID: uuid.NewString(), Email: email, CreatedAt: now}
	}

	usr.Name = name
	usr.IsActive = true
	usr.UpdatedAt = now
	if usr.EmailVerifiedAt.IsZero() {
		usr.EmailVerifiedAt = now
	}
	switch {
	case isAdmin:
		usr.Roles = append([]string(nil), user.AdminRoles...)
	case isTeacher:
		usr.Roles = []string{user.RoleTeacher}
	case !exists:
		usr.Roles = []string{user.RoleParent}
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	return err
}
