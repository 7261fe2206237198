// Command smalab runs the SMA lab tools without the GUI.
//
// Usage: smalab [global options] command [command options] [arguments...]
package main

import (
	"fmt"
	"os"

	"sma-lab/internal/config"
	"sma-lab/internal/logging"
	"sma-lab/internal/store"
	"sma-lab/internal/version"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// Shared by the commands, set in before.
var (
	cfg *config.Config
	log *logrus.Logger
)

func main() {
	app := &cli.App{
		Name:    version.Name,
		Usage:   "acquire and analyze shape memory alloy experiments",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "env",
				Usage: "read settings from `FILE` (default .env)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override SMALAB_LOG_LEVEL",
			},
		},
		Before: before,
		Commands: []*cli.Command{
			analyzeCommand(),
			autofillCommand(),
			ocrCommand(),
			deflectionCommand(),
			processCommand(),
			plotCommand(),
			acquireCommand(),
			portsCommand(),
			{
				Name:  "version",
				Usage: "print build information",
				Action: func(c *cli.Context) error {
					fmt.Println(version.String())
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		if log != nil {
			log.WithError(err).Error("Command failed")
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func before(c *cli.Context) error {
	if err := config.LoadEnv(c.StringSlice("env")...); err != nil {
		return fmt.Errorf("failed to read env file: %w", err)
	}
	cfg = config.Load()
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	log = logging.New(cfg.LogLevel, cfg.LogFormat)
	return nil
}

// openStore opens the session database, or returns nil with a warning.
func openStore() *store.DB {
	db, err := store.New(cfg.DBPath)
	if err != nil {
		log.WithError(err).Warn("Point store unavailable")
		return nil
	}
	return db
}

// argument returns positional argument i or a usage error.
func argument(c *cli.Context, i int, name string) (string, error) {
	v := c.Args().Get(i)
	if v == "" {
		return "", cli.Exit(fmt.Sprintf("missing %s\nusage: %s %s %s", name, c.App.Name, c.Command.Name, c.Command.ArgsUsage), 2)
	}
	return v, nil
}

func progress(what string) func(current, total int) {
	return func(current, total int) {
		if current == total || current%50 == 0 {
			log.WithFields(logrus.Fields{"done": current, "total": total}).Info(what)
		}
	}
}
