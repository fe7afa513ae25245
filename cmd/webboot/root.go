package main

import (
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/webboot/internal/infrastructure/config"
	"github.com/GriffinCanCode/webboot/internal/infrastructure/logging"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

// cli holds state shared by the subcommands once the root pre-run has loaded
// configuration.
type cli struct {
	configPath string
	logLevel   string
	logDev     bool

	cfg    *config.Config
	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:          "webboot",
		Short:        "Boot web application pages headlessly and serve them for development",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "YAML or TOML config file")
	flags.StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&c.logDev, "log-dev", false, "development logging (console encoding)")

	root.AddCommand(
		newRunCmd(c),
		newServeCmd(c),
		newCrawlerCmd(),
		newVersionCmd(),
	)
	return root
}

func (c *cli) load(cmd *cobra.Command) error {
	cfg, err := config.LoadWithFile(c.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = c.logLevel
	}
	if cmd.Flags().Changed("log-dev") {
		cfg.Logging.Development = c.logDev
	}
	c.cfg = cfg
	c.logger = logging.NewFromSettings(cfg.Logging.Level, cfg.Logging.Development)
	return nil
}
