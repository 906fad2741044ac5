package main

import (
	"fmt"

	"opsdash/internal/audit"
	"opsdash/internal/auth"

	"github.com/spf13/cobra"
)

type userAddOptions struct {
	username string
	email    string
	name     string
	password string
	role     string
}

func newUserCmd(opts *globalOptions) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage dashboard accounts",
	}
	userCmd.AddCommand(newUserAddCmd(opts))
	return userCmd
}

func newUserAddCmd(opts *globalOptions) *cobra.Command {
	in := &userAddOptions{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account (a password is generated when --password is omitted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			role := auth.Role(in.role)
			if !role.Valid() {
				return fmt.Errorf("unknown role %q (Standard or Administrator)", in.role)
			}

			password := in.password
			generated := password == ""
			if generated {
				var err error
				if password, err = auth.GeneratePassword(12); err != nil {
					return err
				}
			}

			_, db, closeFn, err := openStore(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			user := &auth.User{
				Username: in.username,
				Email:    in.email,
				Name:     in.name,
				Role:     role,
				IsActive: true,
			}
			ctx := cmd.Context()
			if err := auth.NewIdentityStore(db).Create(ctx, user, password); err != nil {
				return err
			}

			// 本地创建同样留痕，没有关联的操作者
			if _, err := audit.NewRecorder(db, nil).Record(ctx, audit.Entry{
				Category:    audit.CategoryUserCreated,
				Description: fmt.Sprintf("Admin opsctl created user %s", user.Username),
				Origin:      audit.Origin{Address: "127.0.0.1", UserAgent: "opsctl"},
			}); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				payload := map[string]any{"user": user}
				if generated {
					payload["password"] = password
				}
				return writeJSON(out, payload)
			}
			fmt.Fprintf(out, "created %s (%s) id=%s\n", user.Username, user.Role, user.ID)
			if generated {
				fmt.Fprintf(out, "generated password: %s\n", password)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&in.username, "username", "", "login name")
	cmd.Flags().StringVar(&in.email, "email", "", "email address")
	cmd.Flags().StringVar(&in.name, "name", "", "display name")
	cmd.Flags().StringVar(&in.password, "password", "", "initial password")
	cmd.Flags().StringVar(&in.role, "role", string(auth.RoleStandard), "Standard or Administrator")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
