package main

import (
	"fmt"

	"github.com/crowd-labeling-api/internal/config"
	"github.com/crowd-labeling-api/internal/database"
	"github.com/crowd-labeling-api/internal/repository"
	"github.com/crowd-labeling-api/internal/service"
	"github.com/crowd-labeling-api/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app holds what every subcommand needs once the configuration is loaded
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	db       *database.DB
	repos    *repository.Repositories
	services *service.Services
}

// connect opens the database and builds the services
func (a *app) connect() error {
	db, err := database.New(&a.cfg.Database, a.log)
	if err != nil {
		return err
	}
	a.db = db
	a.repos = repository.New(db)
	a.services = service.NewServices(a.repos, a.cfg, a.log)
	return nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

// rootCommand creates and returns the root command
func rootCommand() *cobra.Command {
	a := &app{}
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "crowdctl",
		Short:         "Crowd labeling administration CLI",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Runnable() || cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			a.cfg = cfg
			a.log = logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, "pretty")
			return a.connect()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	rootCmd.AddCommand(
		migrateCommand(a),
		importLocationsCommand(a),
		importGoldCommand(a),
		exportCommand(a),
		setClientTypeCommand(a),
		setDoneCommand(a),
	)

	return rootCmd
}
