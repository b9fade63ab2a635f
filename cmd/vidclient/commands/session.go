package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/vidclient/internal/app"
	"github.com/florianilch/vidclient/internal/backend"
	"github.com/florianilch/vidclient/internal/session"
)

// displayError carries a message meant for the user and the error behind it.
type displayError struct {
	msg string
	err error
}

func (e *displayError) Error() string { return e.msg }
func (e *displayError) Unwrap() error { return e.err }

func failed(err error, fallback string) error {
	if errors.Is(err, session.ErrNotAuthenticated) || errors.Is(err, session.ErrRefreshRejected) {
		return &displayError{msg: "not logged in: run `vidclient login`", err: err}
	}
	return &displayError{msg: backend.ErrorMessage(err, fallback), err: err}
}

func emailFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "email",
		Usage:    "account email",
		Required: true,
	}
}

func signupCommand() *cli.Command {
	return &cli.Command{
		Name:  "signup",
		Usage: "create an account and start a session (password is read from stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "name",
				Usage: "display name",
			},
			emailFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}

			return withClient(ctx, cmd, func(c *app.Client) error {
				token, err := c.Backend.Signup(ctx, backend.SignupRequest{
					Name:     cmd.String("name"),
					Email:    cmd.String("email"),
					Password: password,
				})
				if err != nil {
					return &displayError{msg: backend.ErrorMessage(err, "Signup failed"), err: err}
				}
				if err := c.Session.Establish(ctx, token); err != nil {
					return fmt.Errorf("saving session: %w", err)
				}

				fmt.Fprintf(cmd.Root().Writer, "Signed up as %s\n", cmd.String("email"))
				return nil
			})
		},
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "start a session (password is read from stdin)",
		Flags: []cli.Flag{emailFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}

			return withClient(ctx, cmd, func(c *app.Client) error {
				token, err := c.Backend.Login(ctx, backend.LoginRequest{
					Email:    cmd.String("email"),
					Password: password,
				})
				if err != nil {
					return &displayError{msg: backend.ErrorMessage(err, "Login failed"), err: err}
				}
				if err := c.Session.Establish(ctx, token); err != nil {
					return fmt.Errorf("saving session: %w", err)
				}

				fmt.Fprintf(cmd.Root().Writer, "Logged in as %s\n", cmd.String("email"))
				return nil
			})
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "end the session and forget stored credentials",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withClient(ctx, cmd, func(c *app.Client) error {
				if err := c.Session.Clear(ctx); err != nil {
					return fmt.Errorf("clearing session: %w", err)
				}
				fmt.Fprintln(cmd.Root().Writer, "Logged out")
				return nil
			})
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show whether a session is stored",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withClient(ctx, cmd, func(c *app.Client) error {
				state, err := c.Session.State(ctx)
				if err != nil {
					return fmt.Errorf("reading session: %w", err)
				}
				fmt.Fprintln(cmd.Root().Writer, state)
				return nil
			})
		},
	}
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "show the profile of the logged in user",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withClient(ctx, cmd, func(c *app.Client) error {
				user, err := c.Backend.Me(ctx)
				if err != nil {
					return failed(err, "Could not load profile")
				}

				w := cmd.Root().Writer
				if user.Name != "" {
					fmt.Fprintf(w, "%s <%s>\n", user.Name, user.Email)
				} else {
					fmt.Fprintln(w, user.Email)
				}
				fmt.Fprintf(w, "id: %s\n", user.ID)
				return nil
			})
		},
	}
}
