// authctl is the operator CLI: schema migrations, development seed data, users, credential purge,
// revocation and audit reads.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"crm-tenancy/backend/internal/app"
	"crm-tenancy/backend/internal/config"
	"crm-tenancy/backend/internal/db/migrate"
	identityservice "crm-tenancy/backend/internal/identity/service"
	orgdomain "crm-tenancy/backend/internal/organization/domain"
	"crm-tenancy/backend/internal/platform/logger"
	sessiondomain "crm-tenancy/backend/internal/session/domain"
	userdomain "crm-tenancy/backend/internal/user/domain"
)

const (
	devOrgID      = "5d2f7c1a-3b4e-4f60-9a8b-1c2d3e4f5a6b"
	devOrgName    = "Dev Org"
	devUserEmail  = "dev@example.com"
	devPassword   = "Password123!dev"
	memberEmail   = "member@example.com"
	devOtherOrgID = "7e8f9a0b-1c2d-4e3f-8a5b-6c7d8e9f0a1b"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "authctl",
		Short:         "Operate the CRM auth and tenancy core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newSeedCommand())
	cmd.AddCommand(newPurgeCommand())
	cmd.AddCommand(newRevokeAllCommand())
	cmd.AddCommand(newUserCommand())
	cmd.AddCommand(newAuditCommand())
	return cmd
}

func loadApp(cmd *cobra.Command) (*app.App, context.Context, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger.Init(logger.Config{Env: cfg.Env, Level: cfg.LogLevel, ServiceName: "authctl"})
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return a, ctx, nil
}

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply or roll back the embedded schema migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if args[0] == "version" {
				v, dirty, err := migrate.Version(cfg.DatabaseURL)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", v, dirty)
				return nil
			}
			if err := migrate.Run(cfg.DatabaseURL, args[0]); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: done\n", args[0])
			return nil
		},
	}
	return cmd
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert development organizations and users (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Config.IsProduction() {
				return errors.New("seed is disabled when APP_ENV=production")
			}

			now := time.Now().UTC()
			for _, o := range []*orgdomain.Org{
				{ID: devOrgID, Name: devOrgName, CreatedAt: now},
				{ID: devOtherOrgID, Name: "Other Org", CreatedAt: now},
			} {
				if err := a.Orgs.Create(ctx, o); err != nil {
					return fmt.Errorf("create org %s: %w", o.Name, err)
				}
			}
			for _, u := range []struct {
				email string
				role  userdomain.Role
			}{
				{devUserEmail, userdomain.RoleOwner},
				{memberEmail, userdomain.RoleMember},
			} {
				_, err := a.Auth.CreateUser(ctx, devOrgID, u.email, devPassword, u.role)
				switch {
				case errors.Is(err, identityservice.ErrEmailAlreadyRegistered):
					fmt.Fprintf(cmd.OutOrStdout(), "%s exists, skipped\n", u.email)
				case err != nil:
					return fmt.Errorf("create user %s: %w", u.email, err)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) in %s\n", u.email, u.role, devOrgName)
				}
			}
			return nil
		},
	}
}

func newPurgeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete refresh credentials expired longer than CREDENTIAL_RETENTION",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			n, err := a.Purger.PurgeOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d credentials\n", n)
			return nil
		},
	}
}

func newRevokeAllCommand() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "revoke-all <user-id>",
		Short: "Revoke every active refresh credential of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			r := sessiondomain.RevokeReason(reason)
			if r != sessiondomain.RevokeAdmin && r != sessiondomain.RevokeLogout {
				return fmt.Errorf("reason must be %q or %q", sessiondomain.RevokeAdmin, sessiondomain.RevokeLogout)
			}
			a, ctx, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.Users.GetByID(ctx, userID)
			if err != nil {
				return err
			}
			if u == nil {
				return fmt.Errorf("user %s not found", userID)
			}
			n, err := a.Coordinator.RevokeAllForOwner(ctx, u.OrgID, u.ID, r)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %d credentials for %s\n", n, u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", string(sessiondomain.RevokeAdmin), "Revocation reason: admin or logout")
	return cmd
}

func parseUserID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("user id must be a UUID: %w", err)
	}
	return id.String(), nil
}

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage directory users",
	}
	cmd.AddCommand(newUserCreateCommand())
	cmd.AddCommand(newUserStatusCommand("disable", userdomain.UserStatusDisabled))
	cmd.AddCommand(newUserStatusCommand("enable", userdomain.UserStatusActive))
	return cmd
}

func newUserCreateCommand() *cobra.Command {
	var orgID, email, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user in an existing organization; the password is read from AUTHCTL_PASSWORD",
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv("AUTHCTL_PASSWORD")
			if password == "" {
				return errors.New("AUTHCTL_PASSWORD is required")
			}
			a, ctx, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			org, err := a.Orgs.GetByID(ctx, orgID)
			if err != nil {
				return err
			}
			if org == nil {
				return fmt.Errorf("organization %s not found", orgID)
			}
			u, err := a.Auth.CreateUser(ctx, org.ID, email, password, userdomain.Role(role))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s) in %s\n", u.ID, u.Email, u.Role, org.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "Organization id")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&role, "role", string(userdomain.RoleMember), "Role: owner, admin or member")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// Disabling also revokes the user's credentials so open sessions end at the next refresh.
func newUserStatusCommand(use string, status userdomain.UserStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user-id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " sign-in for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			a, ctx, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.Users.GetByID(ctx, userID)
			if err != nil {
				return err
			}
			if u == nil {
				return fmt.Errorf("user %s not found", userID)
			}
			if err := a.Users.SetStatus(ctx, u.ID, status); err != nil {
				return err
			}
			if status == userdomain.UserStatusDisabled {
				n, err := a.Coordinator.RevokeAllForOwner(ctx, u.OrgID, u.ID, sessiondomain.RevokeAdmin)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "disabled %s, revoked %d credentials\n", u.Email, n)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enabled %s\n", u.Email)
			return nil
		},
	}
}

func newAuditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read audit events",
	}
	var limit, offset int32
	list := &cobra.Command{
		Use:   "list <org-id|_system>",
		Short: "List an organization's audit events, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			events, err := a.AuditLogs.ListByOrg(ctx, strings.ToLower(strings.TrimSpace(args[0])), limit, offset)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTIME\tACTION\tUSER\tIP\tMETADATA")
			for _, e := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.ID, e.CreatedAt.Format(time.RFC3339), e.Action, e.UserID, e.IP, e.Metadata)
			}
			return tw.Flush()
		},
	}
	list.Flags().Int32Var(&limit, "limit", 50, "Maximum events to print")
	list.Flags().Int32Var(&offset, "offset", 0, "Events to skip")

	show := &cobra.Command{
		Use:   "show <event-id>",
		Short: "Print one audit event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			e, err := a.AuditLogs.GetByID(ctx, strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if e == nil {
				return fmt.Errorf("audit event %s not found", args[0])
			}
			org := e.OrgID
			if e.System() {
				org = "(none)"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:       %s\ntime:     %s\norg:      %s\nuser:     %s\n", e.ID, e.CreatedAt.Format(time.RFC3339), org, e.UserID)
			fmt.Fprintf(out, "action:   %s\nresource: %s\nip:       %s\nmetadata: %s\n", e.Action, e.Resource, e.IP, e.Metadata)
			return nil
		},
	}
	cmd.AddCommand(list, show)
	return cmd
}
