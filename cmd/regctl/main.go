// Command regctl is the organizer's command line for the registration database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yourusername/eventreg-api/internal/config"
	pgRepo "github.com/yourusername/eventreg-api/internal/repository/postgres"
	"github.com/yourusername/eventreg-api/internal/service"
	"github.com/yourusername/eventreg-api/pkg/database"
	"gorm.io/gorm"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "regctl",
	Short: "Event registration administration",
	Long: `Administrative commands for the event registration database.

Connection settings are read the same way as the API server: .env, then the
config file (--config or CONFIG_PATH), then environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = os.Getenv("CONFIG_PATH")
		}
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if !loaded.Database.UsesPostgres() {
			return fmt.Errorf("regctl requires the postgres database driver, got %q", loaded.Database.Driver)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: $CONFIG_PATH)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStats подключается к базе и собирает сервис статистики
func openStats() (*service.StatsService, func(), error) {
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString(), false)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() { closeGorm(db) }

	repo := pgRepo.NewRegistrationRepo(db)
	gate, err := service.NewAdmissionGate(repo, cfg.Registration.MaxParticipants)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	stats, err := service.NewStatsService(repo, pgRepo.NewAttemptRepo(db), gate)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return stats, closeDB, nil
}

func closeGorm(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
