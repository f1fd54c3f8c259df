// Command lkconsole runs the LK Cosmetics administration console and a few
// session diagnostics against the REST backend.
//
//	lkconsole serve --addr 127.0.0.1:8080
//	lkconsole check
//	lkconsole whoami --matricule EMP-001
//
// Configuration is read from --config (YAML), then LKC_* environment
// variables (a .env file is loaded first when present), then flags.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	lkcosmetics "github.com/lk-cosmetics/lkCosmeticsSystemFrontend"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type globalOptions struct {
	configPath string
	envFile    string
	dev        bool
	baseURL    string
	logFormat  string
	logLevel   string

	logger *slog.Logger
	cfg    lkcosmetics.Config
}

func main() {
	if err := newRootCmd(&globalOptions{}).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd(opts *globalOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "lkconsole",
		Short:         "LK Cosmetics administration console",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading LKC_* variables")
	flags.BoolVar(&opts.dev, "dev", false, "start from the development preset")
	flags.StringVar(&opts.baseURL, "base-url", "", "backend API root (overrides config)")
	flags.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		serveCmd(opts),
		checkCmd(opts),
		whoamiCmd(opts),
		versionCmd(),
	)
	return rootCmd
}

func (o *globalOptions) load() error {
	logger, err := newLogger(o.logFormat, o.logLevel)
	if err != nil {
		return err
	}
	o.logger = logger
	slog.SetDefault(logger)

	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Debug("dotenv file not found, using process environment", "path", o.envFile)
			} else {
				logger.Warn("dotenv file not loaded", "path", o.envFile, "error", err)
			}
		}
	}

	cfg := lkcosmetics.DefaultConfig()
	if o.dev {
		cfg = lkcosmetics.DevelopmentConfig()
	}
	if o.configPath != "" {
		if cfg, err = lkcosmetics.LoadConfigFile(o.configPath); err != nil {
			return err
		}
	}
	if err := lkcosmetics.ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return err
	}
	if o.baseURL != "" {
		cfg.API.BaseURL = o.baseURL
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, w := range cfg.Lint() {
		logger.Warn("configuration warning", "code", w.Code, "message", w.Message)
	}

	o.cfg = cfg
	return nil
}

func newLogger(format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}

	handlerOpts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q (want text or json)", format)
	}
}
