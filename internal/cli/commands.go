package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"newsroom-ledger/internal/api"
	"newsroom-ledger/internal/db"
	"newsroom-ledger/internal/export"
	"newsroom-ledger/internal/ledger"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(payoutCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)

	exportCmd.Flags().String("from", "", "First day, YYYY-MM-DD")
	exportCmd.Flags().String("to", "", "Last day (inclusive), YYYY-MM-DD")

	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")

	userAddCmd.Flags().String("name", "", "Display name")
	userAddCmd.Flags().String("role", ledger.RoleEmployee.String(), "Role: super, admin, editor, employee")
	userAddCmd.Flags().Int64("telegram", 0, "Telegram user ID for the admin bot")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repo, _, err := openLedger(cfg)
		if err != nil {
			return err
		}
		return repo.Close()
	},
}

var payoutCmd = &cobra.Command{
	Use:   "payout EMPLOYEE",
	Short: "Pay an employee for all unpaid campaign sends",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repo, svc, err := openLedger(cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		ctx := ledger.WithSession(cmd.Context(), ledger.System)
		report, err := svc.PayAllForEmployee(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export FILE.xlsx",
	Short: "Export the ledger journal, orders and balance to Excel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var period export.Period
		fromStr, _ := cmd.Flags().GetString("from")
		toStr, _ := cmd.Flags().GetString("to")
		if fromStr != "" {
			from, err := time.ParseInLocation(time.DateOnly, fromStr, cfg.Location)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			period.From = &from
		}
		if toStr != "" {
			to, err := time.ParseInLocation(time.DateOnly, toStr, cfg.Location)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			to = to.AddDate(0, 0, 1)
			period.To = &to
		}

		repo, svc, err := openLedger(cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		return writeExport(ledger.WithSession(cmd.Context(), ledger.System), svc, period, args[0])
	},
}

func writeExport(ctx context.Context, src export.Source, period export.Period, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteLedger(ctx, src, period, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

var tokenCmd = &cobra.Command{
	Use:   "token USERNAME",
	Short: "Issue an API bearer token for a portal user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		auth, err := api.NewAuthenticator(cfg.JWTSecret)
		if err != nil {
			return fmt.Errorf("JWT_SECRET: %w", err)
		}
		repo, _, err := openLedger(cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		var user db.User
		if err := repo.DB().Where("username = ?", args[0]).First(&user).Error; err != nil {
			return fmt.Errorf("user %q: %w", args[0], err)
		}

		ttl, _ := cmd.Flags().GetDuration("ttl")
		token, err := auth.IssueToken(sessionOf(user), ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage portal users",
}

var userAddCmd = &cobra.Command{
	Use:   "add USERNAME",
	Short: "Create a portal user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		roleStr, _ := cmd.Flags().GetString("role")
		tgID, _ := cmd.Flags().GetInt64("telegram")

		user, err := newUser(args[0], name, roleStr, tgID)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repo, _, err := openLedger(cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		if err := repo.DB().WithContext(cmd.Context()).Create(&user).Error; err != nil {
			return fmt.Errorf("create user %q: %w", user.Username, err)
		}
		return printJSON(cmd, user)
	},
}

func newUser(username, name, role string, tgID int64) (db.User, error) {
	if username == "" {
		return db.User{}, fmt.Errorf("username is required")
	}
	if !ledger.Role(role).IsValid() {
		return db.User{}, fmt.Errorf("unknown role %q", role)
	}
	user := db.User{Username: username, DisplayName: name, Role: role}
	if tgID != 0 {
		user.TelegramID = &tgID
	}
	return user, nil
}

func sessionOf(u db.User) ledger.Session {
	return ledger.Session{UserID: u.ID, DisplayName: u.Name(), Role: ledger.Role(u.Role)}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
