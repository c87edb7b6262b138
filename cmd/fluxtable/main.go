// Package main implements the fluxtable binary: an HTTP service exposing
// one evolving record table over an embedded engine or a remote Snowflake
// warehouse.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/fluxtable/fluxtable/internal/app"
	"github.com/fluxtable/fluxtable/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		backendKind string
		driver      string
		httpAddr    string
		workers     int
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for local data files")
	flag.StringVar(&backendKind, "backend", "", "Backend: local, remote")
	flag.StringVar(&driver, "driver", "", "Local engine: duckdb, sqlite")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address")
	flag.IntVar(&workers, "workers", 0, "Number of pool workers")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Fluxtable - Schema-Evolving Record Store\n\n")
		fmt.Fprintf(os.Stderr, "Usage: fluxtable [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  fluxtable --data-dir /data/fluxtable\n")
		fmt.Fprintf(os.Stderr, "  fluxtable --driver sqlite --http-addr :9000\n")
		fmt.Fprintf(os.Stderr, "  fluxtable --config /etc/fluxtable/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  FLUXTABLE_BACKEND          Backend (local, remote)\n")
		fmt.Fprintf(os.Stderr, "  FLUXTABLE_DATA_DIR         Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  FLUXTABLE_LOCAL_DRIVER     Local engine (duckdb, sqlite)\n")
		fmt.Fprintf(os.Stderr, "  FLUXTABLE_SNOWFLAKE_*      Warehouse credentials\n")
		fmt.Fprintf(os.Stderr, "  FLUXTABLE_HTTP_ADDR        HTTP listen address\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("fluxtable version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	// A .env file is optional; credentials usually arrive through it in
	// development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Ignoring .env: %v", err)
	}

	cfg, err := loadConfig(configFile, dataDir, backendKind, driver, httpAddr, workers)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	printBanner(cfg)

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	if err := application.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, dataDir, backendKind, driver, httpAddr string, workers int) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	// Command line flags win.
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if backendKind != "" {
		cfg.Backend = config.BackendKind(backendKind)
	}
	if driver != "" {
		cfg.Local.Driver = driver
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if workers > 0 {
		cfg.Executor.Workers = workers
	}

	return cfg, nil
}

// printBanner prints the startup banner with configuration summary.
func printBanner(cfg *config.Config) {
	log.Printf("╔═══════════════════════════════════════════╗")
	log.Printf("║                 FLUXTABLE                 ║")
	log.Printf("║       Schema-Evolving Record Store        ║")
	log.Printf("╚═══════════════════════════════════════════╝")
	log.Printf("")
	log.Printf("Configuration:")
	log.Printf("  Backend:  %s", cfg.Backend)
	if cfg.Backend == config.BackendLocal {
		log.Printf("  Driver:   %s", cfg.Local.Driver)
		log.Printf("  Data Dir: %s", cfg.DataDir)
	} else {
		log.Printf("  Account:  %s", cfg.Snowflake.Account)
		log.Printf("  Login:    %s", cfg.Snowflake.Login)
	}
	log.Printf("  Table:    %s", cfg.Table.Name)
	log.Printf("  Workers:  %d", cfg.Executor.Workers)
	log.Printf("  HTTP:     %s", cfg.HTTP.Addr)
	log.Printf("")
}
