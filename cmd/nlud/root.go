package main

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"nlud/internal/config"
)

type rootOptions struct {
	configPath string
	envFile    string
}

func buildRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "nlud",
		Short:         "NLU daemon: mounts bots, trains their models and serves predictions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("NLUD_CONFIG"), "Config file (.yaml, .json or .toml)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Dotenv file loaded before reading NLUD_* variables")

	root.AddCommand(buildServeCmd(opts), buildHashCmd(opts))
	return root
}

// loadConfig layers file, environment and defaults, in that order.
func (o *rootOptions) loadConfig() (config.Config, error) {
	if o.envFile != "" {
		// A missing dotenv file is fine.
		if err := godotenv.Load(o.envFile); err != nil && !os.IsNotExist(err) {
			return config.Config{}, err
		}
	}
	var cfg config.Config
	if o.configPath != "" {
		c, err := config.Load(o.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	if err := config.FromEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg.WithDefaults(), nil
}

func newLogger(c config.LogConfig) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if c.Format == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(lvl).With().Timestamp().Logger()
}

// splitCSV parses a comma-separated flag value into a slice, trimming spaces and dropping empties.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
