package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/visual-health-insight/internal/api"
	"github.com/visual-health-insight/internal/config"
	"github.com/visual-health-insight/internal/logging"
	"github.com/visual-health-insight/internal/setup"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "health-insight",
		Short:         "Clinical records and visual health insight",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "path to the configuration file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(patientsCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(diagramCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(validateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates configuration and builds the logger it describes.
func loadConfig(cmd *cobra.Command) (*config.Manager, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	manager, err := config.NewManager(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := manager.Validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return manager, logging.NewLogger(manager.GetConfig().Logging, os.Stderr), nil
}

func bootstrap(cmd *cobra.Command) (*setup.App, *config.Manager, error) {
	manager, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	app, err := setup.Bootstrap(cmd.Context(), manager, logger)
	if err != nil {
		return nil, nil, err
	}
	return app, manager, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, manager, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			server := api.NewServer(manager, app.Reports, app.Metrics, app.Logger)
			if err := server.Start(ctx); err != nil {
				return err
			}
			app.Logger.Info("Server stopped")
			return nil
		},
	}
}

func patientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patients",
		Short: "List registered patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			out := cmd.OutOrStdout()
			for _, p := range app.Reports.Patients() {
				fmt.Fprintf(out, "%s\t%s\t%s\n", p.ID, p.Name, p.Gender)
			}
			return nil
		},
	}
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <patient-id>",
		Short: "Print the full patient report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			report, err := app.Reports.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

func diagramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagram <patient-id>",
		Short: "Write the annotated anatomy diagram as SVG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			diagram, err := app.Reports.Diagram(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !diagram.Available {
				return fmt.Errorf("no diagram for %s: %s", args[0], diagram.Warning)
			}
			if diagram.Warning != "" {
				app.Logger.WithField("patient_id", args[0]).Warn(diagram.Warning)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output, _ := cmd.Flags().GetString("output"); output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			_, err = io.WriteString(w, diagram.Markup)
			return err
		},
	}
	cmd.Flags().StringP("output", "o", "", "write the SVG to this file instead of stdout")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import the dataset files into a SQLite database",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			data := manager.GetDataConfig()

			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = data.Dir
			}
			dbPath, _ := cmd.Flags().GetString("db")
			if dbPath == "" {
				dbPath = data.SQLitePath
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), data.LoadTimeout)
			defer cancel()
			return setup.ImportFiles(ctx, dir, data.Files, dbPath, logger)
		},
	}
	cmd.Flags().String("dir", "", "directory holding the dataset files (defaults to data.dir)")
	cmd.Flags().String("db", "", "SQLite database path (defaults to data.sqlite_path)")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and load every dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			stats := app.Records.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d patients, %d lab observations, %d medications\n",
				stats.Patients, stats.LabObservations, stats.Medications)
			return nil
		},
	}
}
