package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"newsroom-ledger/internal/config"
	"newsroom-ledger/internal/db"
	"newsroom-ledger/internal/ledger"
)

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to TOML config (default: $LEDGER_CONFIG)")
}

var rootCmd = &cobra.Command{
	Use:   "ledger-service",
	Short: "Newsroom bookkeeping ledger",
	Long: `Bookkeeping for a small newsroom: client orders, payments,
employee payouts, the income/expense journal and paid ad campaigns.
Without a subcommand the HTTP API, Telegram bot and scheduler are started.`,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute запускает дерево команд
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig читает конфигурацию и настраивает структурированное логирование
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.SlogLevel(),
		AddSource: true,
	}))
	slog.SetDefault(logger)
	return cfg, nil
}

// openLedger открывает БД, применяет миграции и собирает сервис учёта
func openLedger(cfg *config.Config) (*db.Repository, *ledger.Service, error) {
	repo, err := db.NewRepository(cfg.DBDriver, cfg.DBDsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s database: %w", cfg.DBDriver, err)
	}
	slog.Info("Database repository initialized successfully", "driver", cfg.DBDriver)

	if err := repo.AutoMigrate(); err != nil {
		repo.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	slog.Info("Database migrations completed successfully")

	svc := ledger.NewService(repo, ledger.Options{
		DefaultEmployeeRate:   cfg.EmployeeRate,
		CeilingRatio:          cfg.CeilingRatio,
		ReverseSalaryOnDelete: cfg.ReverseSalaryOnDelete,
		Location:              cfg.Location,
	})
	return repo, svc, nil
}
