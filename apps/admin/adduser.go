package main

import (
	"context"

	"github.com/volatiletech/null/v8"

	"github.com/telecom-etude/erp/core"
	"github.com/telecom-etude/erp/core/user"
)

// addUser updates or creates a member account.
func (cli *commandLine) addUser(email, firstName, lastName, position, pwd string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	if err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{Email: null.StringFrom(email)}
	}
	usr.FirstName = core.CleanString(firstName)
	usr.LastName = core.CleanString(lastName)
	if position = core.CleanString(position, true /* lower */); position != "" {
		usr.Position = null.StringFrom(position)
	}
	usr.SetActive(true)
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if _, err := cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
