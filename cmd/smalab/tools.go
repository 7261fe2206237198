package main

import (
	"fmt"
	"os"
	"path/filepath"

	"sma-lab/internal/analysis"
	"sma-lab/internal/config"
	"sma-lab/internal/dataset"
	"sma-lab/internal/deflection"
	"sma-lab/internal/experiment"
	"sma-lab/internal/ocr"
	"sma-lab/internal/plots"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gocv.io/x/gocv"
)

// resolveInputs turns the TARGET argument into a data file and an image
// folder. TARGET is either an experiment folder, whose manifest names both,
// or a CSV file with the folder given by --images.
func resolveInputs(c *cli.Context, folder func(m *experiment.Manifest, path string) string) (csvPath, imagesDir string, err error) {
	target, err := argument(c, 0, "TARGET")
	if err != nil {
		return "", "", err
	}
	imagesDir = c.String("images")

	info, err := os.Stat(target)
	if err != nil {
		return "", "", err
	}
	if !info.IsDir() {
		if imagesDir == "" {
			return "", "", cli.Exit("--images is required when TARGET is a CSV file", 2)
		}
		return target, imagesDir, nil
	}

	manifestPath := filepath.Join(target, experiment.ManifestName)
	m, err := experiment.Load(manifestPath)
	if err != nil {
		return "", "", err
	}
	if imagesDir == "" {
		imagesDir = folder(m, manifestPath)
	}
	return m.DataFile(manifestPath), imagesDir, nil
}

func ocrCommand() *cli.Command {
	return &cli.Command{
		Name:      "ocr",
		Usage:     "read the thermal overlay temperature of every row",
		ArgsUsage: "TARGET",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "images", Usage: "thermal frames `DIR` (default cam2 of the experiment)"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output `FILE` (default <stem>_with_temperature.csv)"},
			&cli.StringFlag{Name: "roi", Usage: "overlay region x,y,w,h[,threshold] (default SMALAB_OCR_ROI)"},
			&cli.StringFlag{Name: "preview", Usage: "draw the region and reading on `IMAGE` and exit"},
			&cli.StringFlag{Name: "tune", Usage: "search the threshold on `IMAGE` and exit"},
		},
		Action: func(c *cli.Context) error {
			region, thresh := cfg.OCRRegion, cfg.OCRThreshold
			if s := c.String("roi"); s != "" {
				r, t, err := config.ParseROI(s)
				if err != nil {
					return err
				}
				region = r
				if t >= 0 {
					thresh = t
				}
			}

			engine, err := ocr.NewEngine(region, thresh)
			if err != nil {
				return err
			}
			defer engine.Close()

			if img := c.String("preview"); img != "" {
				out := filepath.Join(filepath.Dir(img), "ocr_preview.jpg")
				if err := engine.Preview(img, out); err != nil {
					return err
				}
				fmt.Println(out)
				return nil
			}
			if path := c.String("tune"); path != "" {
				img := gocv.IMRead(path, gocv.IMReadColor)
				if img.Empty() {
					return fmt.Errorf("failed to load image %s", path)
				}
				defer img.Close()
				res, err := engine.TuneThreshold(img)
				if err != nil {
					return err
				}
				fmt.Printf("threshold %.0f reads %q (%g, %d agreeing)\n", res.Threshold, res.Text, res.Value, res.Agreeing)
				fmt.Printf("SMALAB_OCR_ROI=%d,%d,%d,%d,%.0f\n", region.X, region.Y, region.Width, region.Height, res.Threshold)
				return nil
			}

			csvPath, imagesDir, err := resolveInputs(c, (*experiment.Manifest).ThermalFolder)
			if err != nil {
				return err
			}
			sum, err := ocr.ProcessDataset(engine, ocr.ProcessOptions{
				CSVPath:   csvPath,
				ImagesDir: imagesDir,
				OutPath:   c.String("out"),
				Progress:  progress("Reading temperatures"),
				Logger:    log,
			})
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"out":       sum.OutPath,
				"processed": sum.Processed,
				"extracted": sum.Extracted,
				"failed":    sum.Failed,
				"missing":   sum.Missing,
			}).Info("Temperatures extracted")
			if sum.Extracted > 0 {
				fmt.Printf("temperature mean %.2f min %.2f max %.2f\n", sum.Mean, sum.Min, sum.Max)
			}
			return nil
		},
	}
}

func deflectionCommand() *cli.Command {
	return &cli.Command{
		Name:      "deflection",
		Usage:     "measure the ArUco marker distance of every row",
		ArgsUsage: "TARGET",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "images", Usage: "side camera frames `DIR` (default cam1 of the experiment)"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output `FILE` (default overwrites the data file)"},
			&cli.Float64Flag{Name: "marker-mm", Usage: "marker side in mm (default SMALAB_MARKER_MM)"},
		},
		Action: func(c *cli.Context) error {
			csvPath, imagesDir, err := resolveInputs(c, (*experiment.Manifest).SideCamFolder)
			if err != nil {
				return err
			}
			size := c.Float64("marker-mm")
			if size <= 0 {
				size = cfg.MarkerMM
			}

			det := deflection.NewDetector(size)
			defer det.Close()

			sum, err := deflection.ProcessDataset(det, deflection.ProcessOptions{
				CSVPath:   csvPath,
				ImagesDir: imagesDir,
				OutPath:   c.String("out"),
				Progress:  progress("Measuring markers"),
				Logger:    log,
			})
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"out":      sum.OutPath,
				"rows":     sum.Rows,
				"measured": sum.Measured,
				"failed":   sum.Failed,
			}).Info("Distances measured")
			return nil
		},
	}
}

func processCommand() *cli.Command {
	return &cli.Command{
		Name:      "process",
		Usage:     "split an annotated table into heating and cooling curves",
		ArgsUsage: "CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Value: "deflexion_constante", Usage: "deflexion_constante or fuerza_constante"},
			&cli.Float64Flag{Name: "value", Required: true, Usage: "constant deflection in mm, or hung weight in grams"},
			&cli.BoolFlag{Name: "no-chart", Usage: "skip the phase chart"},
			&cli.BoolFlag{Name: "stress", Usage: "print the spring shear stress of each crystal phase"},
		},
		Action: func(c *cli.Context) error {
			csvPath, err := argument(c, 0, "CSV")
			if err != nil {
				return err
			}
			kind, err := analysis.ParseKind(c.String("kind"))
			if err != nil {
				return err
			}
			exp := analysis.Experiment{Kind: kind, Value: c.Float64("value")}

			res, written, err := analysis.ProcessFile(csvPath, exp)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"rows":    res.Rows,
				"heating": res.HeatingRows,
				"cooling": res.CoolingRows,
			}).Info("Table processed")

			if !c.Bool("no-chart") {
				out := filepath.Join(filepath.Dir(csvPath), plots.PhaseChartFile(kind))
				if err := plots.PhaseChart(res, out); err != nil {
					return err
				}
				written = append(written, out)
			}
			for _, p := range written {
				fmt.Println(p)
			}

			if c.Bool("stress") {
				printStress(res)
			}
			return nil
		},
	}
}

func printStress(res *analysis.Result) {
	if res.Experiment.Kind != analysis.ConstantDeflection {
		fmt.Println("shear stress needs a constant deflection experiment")
		return
	}
	spring := analysis.DefaultSpring
	deflectionMM := res.Experiment.Value
	var pts []analysis.ShearPoint
	for _, crystal := range []analysis.Crystal{analysis.Martensite, analysis.Austenite} {
		f, ok := analysis.CrystalForce(res.Heating, crystal)
		if !ok {
			fmt.Printf("%s: no samples in the temperature window\n", crystal)
			continue
		}
		pt := spring.NewShearPoint(deflectionMM, f)
		pts = append(pts, pt)
		fmt.Printf("%s: F=%.3f N  tau=%.2f MPa  gamma=%.5f  G=%.1f MPa\n",
			crystal, pt.ForceN, pt.StressMPa, pt.Strain, pt.Modulus())
	}
	if g, err := analysis.FitShearModulus(pts); err == nil {
		fmt.Printf("fit slope G=%.1f MPa\n", g)
	}
}

func plotCommand() *cli.Command {
	return &cli.Command{
		Name:      "plot",
		Usage:     "chart the sample point temperatures of an analyzed table",
		ArgsUsage: "CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out-dir", Usage: "write the charts to `DIR` (default next to CSV)"},
		},
		Action: func(c *cli.Context) error {
			csvPath, err := argument(c, 0, "CSV")
			if err != nil {
				return err
			}
			tbl, err := dataset.ReadFile(csvPath)
			if err != nil {
				return err
			}
			dir := c.String("out-dir")
			if dir == "" {
				dir = filepath.Dir(csvPath)
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}

			for name, render := range map[string]func(*dataset.Table, string) error{
				plots.TemperaturePointsFile: plots.TemperaturePoints,
				plots.PhaseGridFile:         plots.PhaseGrid,
			} {
				out := filepath.Join(dir, name)
				if err := render(tbl, out); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				fmt.Println(out)
			}
			return nil
		},
	}
}
