package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"sma-lab/internal/acquisition"
	"sma-lab/internal/deflection"
	"sma-lab/internal/experiment"
	"sma-lab/internal/monitor"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const acquireHelp = `commands:
  start [ACTIVE_MS REST_MS]   start an experiment
  stop                        stop the running experiment
  debug on|off                enter or leave debug mode
  relay on|off                switch the heating relay (debug mode)
  zero-force [on]             take the current force reading as zero
  known-force N [on]          scale the force with a known load in newtons
  zero-def                    take the marker distance as zero deflection
  status                      print the latest readings
  quit                        disconnect and exit`

func portsCommand() *cli.Command {
	return &cli.Command{
		Name:  "ports",
		Usage: "list the serial ports",
		Action: func(c *cli.Context) error {
			ports, err := acquisition.ListPorts()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Println("no serial ports found")
			}
			for _, p := range ports {
				fmt.Println(p)
			}
			return nil
		},
	}
}

func acquireCommand() *cli.Command {
	return &cli.Command{
		Name:  "acquire",
		Usage: "drive the test rig and record experiments",
		Description: "Connects to the controller, validates it and reads commands from stdin.\n\n" +
			acquireHelp,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Aliases: []string{"p"}, Usage: "serial `PORT` (default the first port found)"},
			&cli.IntFlag{Name: "baud", Usage: "baud rate (default SMALAB_SERIAL_BAUD)"},
			&cli.IntFlag{Name: "side-camera", Value: acquisition.SideCameraOptions().Device, Usage: "side camera device, -1 to disable"},
			&cli.IntFlag{Name: "thermal-camera", Value: acquisition.ThermalCameraOptions().Device, Usage: "thermal camera device, -1 to disable"},
			&cli.StringFlag{Name: "data-dir", Usage: "experiments `DIR` (default SMALAB_DATA_DIR)"},
			&cli.StringFlag{Name: "monitor", Usage: "serve live readings on `ADDR` (default SMALAB_MONITOR_ADDR)"},
			&cli.IntFlag{Name: "active", Value: 5000, Usage: "heating time per cycle in ms"},
			&cli.IntFlag{Name: "rest", Value: 5000, Usage: "rest time per cycle in ms"},
			&cli.StringFlag{Name: "force-from", Usage: "reuse the force calibration of experiment `DIR`"},
		},
		Action: runAcquire,
	}
}

func runAcquire(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	port := c.String("port")
	if port == "" {
		ports, err := acquisition.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			return cli.Exit("no serial ports found; use --port", 1)
		}
		port = ports[0]
	}
	baud := c.Int("baud")
	if baud <= 0 {
		baud = cfg.SerialBaud
	}
	dataDir := c.String("data-dir")
	if dataDir == "" {
		dataDir = cfg.DataDir
	}

	var sinks []acquisition.FrameSink
	var side *acquisition.Camera
	for i, dev := range []int{c.Int("side-camera"), c.Int("thermal-camera")} {
		if dev < 0 {
			continue
		}
		opts := acquisition.ThermalCameraOptions()
		if i == 0 {
			opts = acquisition.SideCameraOptions()
		}
		opts.Device = dev
		cam, err := acquisition.OpenCamera(opts, log)
		if err != nil {
			return err
		}
		defer cam.Close()
		if i == 0 {
			side = cam
		}
		sinks = append(sinks, cam)
	}

	rig := acquisition.NewRig(acquisition.RigConfig{
		DataDir: dataDir,
		Cameras: sinks,
		Logger:  log,
	})
	if dir := c.String("force-from"); dir != "" {
		m, err := experiment.LoadDir(dir)
		if err != nil {
			return err
		}
		rig.SetForce(m.Force)
	}

	if side != nil {
		det := deflection.NewDetector(cfg.MarkerMM)
		defer det.Close()
		rig.TrackDistance(side, det)
	}

	hub := monitor.NewHub(log)
	go hub.Run(ctx)
	rig.Subscribe(func(s acquisition.Status) {
		if err := hub.Publish(s); err != nil {
			log.WithError(err).Debug("Status not broadcast")
		}
	})
	if addr := firstNonEmpty(c.String("monitor"), cfg.MonitorAddr); addr != "" {
		go func() {
			if err := hub.Serve(ctx, addr); err != nil {
				log.WithError(err).Error("Monitor stopped")
			}
		}()
	}

	for _, cam := range sinks {
		go cam.(*acquisition.Camera).Run(ctx)
	}

	link, err := acquisition.OpenSerial(port, baud, log)
	if err != nil {
		return err
	}
	rig.Attach(link)
	defer func() {
		if err := rig.Detach(); err != nil && !errors.Is(err, acquisition.ErrNotConnected) {
			log.WithError(err).Warn("Failed to stop the experiment")
		}
		link.Close()
	}()

	go func() {
		if err := link.ReadLines(ctx, rig.HandleLine); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("Controller link lost")
			stop()
		}
	}()
	if err := rig.Validate(); err != nil {
		return err
	}

	fmt.Println(acquireHelp)
	lines := make(chan string)
	go scanLines(os.Stdin, lines)

	active, rest := c.Int("active"), c.Int("rest")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := rigCommand(rig, line, &active, &rest)
			if err != nil {
				fmt.Println("error:", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func scanLines(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out <- sc.Text()
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// rigCommand runs one console command. active and rest keep the last
// cycle used by start.
func rigCommand(rig *acquisition.Rig, line string, active, rest *int) (quit bool, err error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return false, nil
	}
	args := fields[1:]

	switch fields[0] {
	case "start":
		if len(args) == 2 {
			a, errA := strconv.Atoi(args[0])
			r, errR := strconv.Atoi(args[1])
			if errA != nil || errR != nil || a <= 0 || r < 0 {
				return false, fmt.Errorf("invalid cycle %q", strings.Join(args, " "))
			}
			*active, *rest = a, r
		}
		dir, err := rig.Start(*active, *rest)
		if err != nil {
			return false, err
		}
		fmt.Println("recording to", dir)
	case "stop":
		return false, rig.Stop()
	case "debug":
		return false, rig.Debug(onArg(args, 0))
	case "relay":
		return false, rig.SetRelay(onArg(args, 0))
	case "zero-force":
		return false, rig.CaptureZeroForce(onArg(args, 0))
	case "known-force":
		if len(args) == 0 {
			return false, errors.New("known-force needs the load in newtons")
		}
		n, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return false, fmt.Errorf("invalid load %q", args[0])
		}
		if err := rig.CaptureKnownForce(n, onArg(args, 1)); err != nil {
			return false, err
		}
		f := rig.Force()
		fmt.Printf("force: offset %g scale %g, relay offset %g scale %g\n", f.Offset, f.Scale, f.RelayOffset, f.RelayScale)
	case "zero-def":
		mm, err := rig.CaptureZeroDeformation()
		if err != nil {
			return false, err
		}
		fmt.Printf("zero deformation %.2f mm\n", mm)
	case "status":
		s := rig.Status()
		log.WithFields(logrus.Fields{
			"state":      s.State,
			"current_mA": s.CurrentMA,
			"force_N":    s.ForceN,
			"sma_V":      s.VoltageSMA,
			"ref_V":      s.VoltageRef,
			"relay":      s.Relay,
			"deflection": s.DeflectionMM,
			"rows":       s.Rows,
		}).Info("Rig status")
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Println(acquireHelp)
	default:
		return false, fmt.Errorf("unknown command %q", fields[0])
	}
	return false, nil
}

func onArg(args []string, i int) bool {
	return i < len(args) && (args[i] == "on" || args[i] == "1" || args[i] == "true")
}
