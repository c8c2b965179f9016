package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/crowd-labeling-api/internal/models"
	"github.com/crowd-labeling-api/internal/service"
	"github.com/spf13/cobra"
)

func importLocationsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import-locations <file.csv>",
		Short: "Import locations from a CSV with a factory_id column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			result, err := a.services.Import.ImportLocations(cmd.Context(), f)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}
}

func importGoldCommand(a *app) *cobra.Command {
	var admin string

	cmd := &cobra.Command{
		Use:   "import-gold <file.csv>",
		Short: "Import gold standard answers authored by an admin user",
		Long: "Import gold standard answers from a CSV with the columns factory_id, year_old,\n" +
			"year_new, land_usage, expansion and optionally source_url_root. The admin user\n" +
			"is created when it does not exist.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			result, err := a.services.Import.ImportGoldStandards(cmd.Context(), f, admin)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&admin, "admin", "admin", "Client ID of the admin user authoring the gold standards")
	return cmd
}

func exportCommand(a *app) *cobra.Command {
	var format, out string

	cmd := &cobra.Command{
		Use:       "export <answers|locations>",
		Short:     "Export answers or locations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"answers", "locations"},
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			switch args[0] {
			case "answers":
				return a.services.Export.StreamAnswers(cmd.Context(), w, format)
			case "locations":
				return a.services.Export.StreamLocations(cmd.Context(), w, format)
			}
			return fmt.Errorf("unknown resource %q, must be answers or locations", args[0])
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", service.FormatCSV, "Output format: csv, ndjson or json")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "Output file, - for stdout")
	return cmd
}

func setClientTypeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-client-type <client_id> <admin|normal|banned>",
		Short: "Change the permission level of a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientType, err := parseClientType(args[1])
			if err != nil {
				return err
			}

			user, err := a.repos.User.GetByClientID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if user == nil {
				return fmt.Errorf("user %q: %w", args[0], service.ErrNotFound)
			}

			user, err = a.services.User.SetClientType(cmd.Context(), user.ID, clientType)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s (id %d) is now %s\n", user.ClientID, user.ID, user.ClientType)
			return nil
		},
	}
}

func setDoneCommand(a *app) *cobra.Command {
	var reopen bool

	cmd := &cobra.Command{
		Use:   "set-done <factory_id>",
		Short: "Mark a location as done, or reopen it with --reopen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := a.repos.Location.GetByFactoryID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if loc == nil {
				return fmt.Errorf("location %q: %w", args[0], service.ErrNotFound)
			}

			loc, err = a.services.Location.SetDone(cmd.Context(), loc.ID, !reopen)
			if err != nil {
				return err
			}
			if loc.DoneAt == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "location %s is open\n", loc.FactoryID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "location %s done at %s\n", loc.FactoryID, loc.DoneAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reopen, "reopen", false, "Clear the done stamp instead of setting it")
	return cmd
}

// parseClientType accepts a client type name or its numeric value
func parseClientType(s string) (models.ClientType, error) {
	switch strings.ToLower(s) {
	case "admin":
		return models.ClientTypeAdmin, nil
	case "normal":
		return models.ClientTypeNormal, nil
	case "banned":
		return models.ClientTypeBanned, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || !models.ClientType(n).Valid() {
		return 0, fmt.Errorf("invalid client type %q, must be admin, normal, banned or -1, 0, 1", s)
	}
	return models.ClientType(n), nil
}

func printResult(w io.Writer, result *models.ImportResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
