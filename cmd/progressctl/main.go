package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"acadium-backend/internal/catalog"
	"acadium-backend/internal/logger"
)

var (
	apiURL      string
	apiToken    string
	catalogFile string
	debugMode   bool

	log = logger.Nop()
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           "progressctl",
		Short:         "Inspect and update learning-path progress",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger(debugMode)
		},
	}
	flags := rootCommand.PersistentFlags()
	flags.StringVar(&apiURL, "api-url", envOrDefault("ACADIUM_API_URL", "http://localhost:8080"), "progress API base URL")
	flags.StringVar(&apiToken, "token", os.Getenv("ACADIUM_TOKEN"), "bearer token")
	flags.StringVar(&catalogFile, "catalog", "", "catalog YAML file (embedded catalog when empty)")
	flags.BoolVar(&debugMode, "debug", false, "Enable debug mode")

	rootCommand.AddCommand(
		newCatalogCommand(),
		newMigrateCommand(),
		newStepsCommand(),
		newCompleteCommand(),
		newIncompleteCommand(),
		newSummaryCommand(),
	)
	return rootCommand
}

func setupLogger(debug bool) error {
	env := "production"
	if debug {
		env = "development"
	}
	l, err := logger.New(env)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log = l
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadCatalog() (*catalog.Catalog, error) {
	if catalogFile == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(catalogFile)
}
