// Package main provides the entry point for the SMA thermal analyzer.
package main

import (
	"os"

	"sma-lab/internal/app"
	"sma-lab/internal/config"
	"sma-lab/internal/logging"
	"sma-lab/internal/session"
	"sma-lab/internal/store"
	"sma-lab/internal/version"
	"sma-lab/ui/analyzer"
	"sma-lab/ui/prefs"

	fyneapp "fyne.io/fyne/v2/app"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		logging.New("info", "text").WithError(err).Warn("Failed to read .env")
	}
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	log.Infof("Starting %s", version.String())

	var persister session.Persister
	db, err := store.New(cfg.DBPath)
	if err != nil {
		log.WithError(err).Warn("Point store unavailable, sessions will not be resumed")
	} else {
		defer db.Close()
		persister = db
	}

	a := fyneapp.NewWithID("lab.sma.analyzer")
	a.Settings().SetTheme(app.NewTheme(cfg.DarkTheme))

	state := app.NewState(persister, log)
	state.Bandwidth = cfg.Bandwidth
	appPrefs := prefs.Load()

	// Command line arguments: images folder, dataset, calibration
	args := os.Args[1:]
	if len(args) == 3 {
		state.Inputs = app.Inputs{ImagesDir: args[0], DatasetPath: args[1], CalibrationPath: args[2]}
	}

	win := analyzer.New(a, state, appPrefs)
	if len(args) == 3 {
		win.StartAnalysis()
	}

	win.SetCloseIntercept(func() {
		win.SavePreferences()
		win.Close()
	})
	win.ShowAndRun()
}
