package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukerupert/pantry/internal/cli"
	"github.com/dukerupert/pantry/internal/client"
	"github.com/dukerupert/pantry/internal/model"
)

func loginCmd(opts *rootOptions) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(opts)
			if err != nil {
				return err
			}
			r := bufio.NewReader(os.Stdin)
			return login(cmd, e, r, username)
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "", "username or email (prompted when empty)")
	return cmd
}

// readSecret is replaced in tests so they never touch a terminal.
var readSecret = cli.Password

// login prompts for whatever is missing, signs in and saves the session.
func login(cmd *cobra.Command, e *env, r *bufio.Reader, username string) error {
	out := cmd.ErrOrStderr()
	var err error
	if username == "" {
		if username, err = cli.Prompt(r, out, "Username or email"); err != nil {
			return err
		}
	}
	password, err := readSecret(r, out, "Password")
	if err != nil {
		return err
	}

	if err := e.store.Login(cmd.Context(), username, password); err != nil {
		return errors.New(e.store.State().SessionError)
	}
	if err := e.persist(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", e.store.State().User.Username)
	return nil
}

func whoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(opts)
			if err != nil {
				return err
			}
			if err := e.store.Init(cmd.Context()); err != nil {
				return errors.New(e.store.State().SessionError)
			}
			// A stale token is dropped so the next run starts clean.
			if err := e.persist(); err != nil {
				return err
			}
			printUser(cmd.OutOrStdout(), e.store.State())
			return nil
		},
	}
}

func printUser(w io.Writer, s client.State) {
	if !s.IsAuthenticated {
		fmt.Fprintln(w, "not logged in")
		return
	}
	u := s.User
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%s\n", u.ID)
	fmt.Fprintf(tw, "username\t%s\n", u.Username)
	fmt.Fprintf(tw, "email\t%s\n", u.Email)
	if u.DisplayName != "" {
		fmt.Fprintf(tw, "name\t%s\n", u.DisplayName)
	}
	if len(u.DietaryPreferences) > 0 {
		fmt.Fprintf(tw, "diet\t%s\n", strings.Join(u.DietaryPreferences, ", "))
	}
	tw.Flush()
}

func logoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(opts)
			if err != nil {
				return err
			}
			if err := e.store.Logout(cmd.Context()); err != nil {
				return err
			}
			if err := e.session.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func recipesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recipes",
		Short: "List recipes visible to you",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(opts)
			if err != nil {
				return err
			}
			recipes, err := e.api.Recipes(cmd.Context())
			if err != nil {
				return err
			}
			printRecipes(cmd.OutOrStdout(), recipes)
			return nil
		},
	}
}

func printRecipes(w io.Writer, recipes []model.Recipe) {
	if len(recipes) == 0 {
		fmt.Fprintln(w, "no recipes")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tVISIBILITY")
	for _, r := range recipes {
		vis := "private"
		if r.Public {
			vis = "public"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.ID, r.Title, vis)
	}
	tw.Flush()
}
