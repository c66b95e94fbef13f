// Package cmd provides the CLI commands for keeprag.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keepstack/keeprag/internal/logging"
	"github.com/keepstack/keeprag/pkg/version"
)

var (
	projectDir     string
	logLevel       string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the keeprag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keeprag",
		Short: "Embedding ingestion pipeline and retrieval engine for article knowledge bases",
		Long: `keeprag turns article sections into vector embeddings through a
crash-safe background job queue, and answers questions over them with
multi-pass similarity search plus grounded answer generation.

Run 'keeprag serve' to expose the ingest trigger and query endpoint over HTTP,
or use 'keeprag ingest' and 'keeprag query' directly from the shell.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("keeprag version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project directory holding .keeprag.yaml and .env")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.keeprag/logs/")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newEnqueueCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(*cobra.Command, []string) error {
	level := logLevel
	if debugMode {
		level = "debug"
	}
	cleanup, err := logging.Setup(logging.DefaultConfig(level))
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	return nil
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
