package main

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/shortlyhq/shortly/internal/config"
	"github.com/shortlyhq/shortly/internal/lifecycle"
)

type serveOptions struct {
	configPath string
	envPath    string
	logLevel   string
}

func commandServe() *cobra.Command {
	options := serveOptions{}

	cmd := &cobra.Command{
		Use:     "serve [flags] [config file]",
		Short:   "Run the shortening service",
		Example: "shortener serve config.yaml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true
			options.configPath = args[0]
			return runServe(options)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&options.envPath, "env-config", "", "environment-specific config overlay file")
	flags.StringVar(&options.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func parseLogLevel(raw string) logrus.Level {
	level, err := logrus.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func runServe(options serveOptions) error {
	logger := logrus.New()
	logger.SetLevel(parseLogLevel(options.logLevel))

	cfg, err := config.Load(options.configPath, options.envPath)
	if err != nil {
		return err
	}

	app, err := lifecycle.Build(cfg, logger)
	if err != nil {
		return err
	}

	return app.Run()
}
