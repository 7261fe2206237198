package main

import (
	"errors"
	"fmt"

	"sma-lab/internal/session"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func sessionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:  "bandwidth",
			Usage: "estimator bandwidth (0 uses SMALAB_BANDWIDTH)",
		},
	}
}

func openSession(c *cli.Context, persister session.Persister) (*session.Controller, error) {
	images, err := argument(c, 0, "IMAGES_DIR")
	if err != nil {
		return nil, err
	}
	data, err := argument(c, 1, "DATASET")
	if err != nil {
		return nil, err
	}
	cal, err := argument(c, 2, "CALIBRATION")
	if err != nil {
		return nil, err
	}
	bw := c.Float64("bandwidth")
	if bw == 0 {
		bw = cfg.Bandwidth
	}
	ctrl, err := session.Open(session.Options{
		DatasetPath:     data,
		ImagesDir:       images,
		CalibrationPath: cal,
		Bandwidth:       bw,
		Persister:       persister,
		Logger:          log,
	})
	if err != nil {
		return nil, err
	}
	for _, p := range ctrl.Problems() {
		var warn *session.UnmatchedTimestampWarning
		if errors.As(p, &warn) {
			log.Debug(p)
			continue
		}
		log.Warn(p)
	}
	return ctrl, nil
}

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "report the stored analysis of a dataset, or list stored sessions",
		ArgsUsage: "IMAGES_DIR DATASET CALIBRATION",
		Flags: append(sessionFlags(),
			&cli.BoolFlag{Name: "sessions", Usage: "list the stored sessions and exit"},
			&cli.StringFlag{Name: "forget", Usage: "delete the stored session of `DATASET` and exit"},
		),
		Action: func(c *cli.Context) error {
			db := openStore()
			if db != nil {
				defer db.Close()
			}

			switch {
			case c.Bool("sessions"):
				if db == nil {
					return errors.New("no point store")
				}
				infos, err := db.Sessions()
				if err != nil {
					return err
				}
				for _, s := range infos {
					fmt.Printf("%s\t%d records\t%d excluded\tdefaults=%t\t%s\n",
						s.Dataset, s.Records, s.Excluded, s.Defaults, s.UpdatedAt.Format("2006-01-02 15:04"))
				}
				return nil
			case c.String("forget") != "":
				if db == nil {
					return errors.New("no point store")
				}
				return db.DeleteSession(c.String("forget"))
			}

			var persister session.Persister
			if db != nil {
				persister = db
			}
			ctrl, err := openSession(c, persister)
			if err != nil {
				return err
			}
			_, hasDefaults := ctrl.Defaults()
			log.WithFields(logrus.Fields{
				"frames":   ctrl.Len(),
				"pending":  len(ctrl.Pending()),
				"defaults": hasDefaults,
				"problems": len(ctrl.Problems()),
			}).Info("Analysis state")
			return nil
		},
	}
}

func autofillCommand() *cli.Command {
	return &cli.Command{
		Name:      "autofill",
		Usage:     "sample every unvisited frame at the stored default points and save",
		ArgsUsage: "IMAGES_DIR DATASET CALIBRATION",
		Flags: append(sessionFlags(),
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "write to `FILE` instead of the dataset"},
		),
		Action: func(c *cli.Context) error {
			db := openStore()
			if db == nil {
				return errors.New("autofill needs the point store for the default layout")
			}
			defer db.Close()

			ctrl, err := openSession(c, db)
			if err != nil {
				return err
			}
			if _, ok := ctrl.Defaults(); !ok {
				return cli.Exit("no default points stored for this dataset; place three points in the analyzer first", 1)
			}
			report, err := ctrl.Save(session.SaveOptions{
				AutoFill: true,
				Progress: progress("Auto-filling"),
				Path:     c.String("out"),
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d rows, %d measured, %d auto-filled, %d failed, %d excluded\n",
				report.Path, report.Rows, report.Measured, report.AutoFilled, report.Failed, report.Excluded)
			return nil
		},
	}
}
