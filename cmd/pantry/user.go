package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dukerupert/pantry/internal/cli"
	"github.com/dukerupert/pantry/internal/config"
	"github.com/dukerupert/pantry/internal/database"
	"github.com/dukerupert/pantry/internal/store"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	cmd.AddCommand(userAddCmd(), userPasswdCmd())
	return cmd
}

func openUserStore() (*store.UserStore, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return store.NewUserStore(db), func() { db.Close() }, nil
}

func userAddCmd() *cobra.Command {
	var (
		email       string
		displayName string
		diets       []string
	)

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(email) == "" {
				return errors.New("--email is required")
			}
			password, err := readNewPassword(cmd)
			if err != nil {
				return err
			}

			users, closeDB, err := openUserStore()
			if err != nil {
				return err
			}
			defer closeDB()

			u, err := users.Create(context.Background(), store.NewUser{
				Username:           args[0],
				Email:              email,
				DisplayName:        displayName,
				DietaryPreferences: diets,
				Password:           password,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", u.Username, u.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name")
	cmd.Flags().StringSliceVar(&diets, "diet", nil, "dietary preference (repeatable)")
	return cmd
}

func userPasswdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "passwd <user-id>",
		Short: "Set an account password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readNewPassword(cmd)
			if err != nil {
				return err
			}
			users, closeDB, err := openUserStore()
			if err != nil {
				return err
			}
			defer closeDB()
			return users.UpdatePassword(context.Background(), args[0], password)
		},
	}
}

func readNewPassword(cmd *cobra.Command) (string, error) {
	r := bufio.NewReader(os.Stdin)
	out := cmd.ErrOrStderr()
	password, err := cli.Password(r, out, "Password")
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	confirm, err := cli.Password(r, out, "Confirm password")
	if err != nil {
		return "", err
	}
	if confirm != password {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}
