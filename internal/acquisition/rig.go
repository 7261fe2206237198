package acquisition

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sma-lab/internal/experiment"
	"sma-lab/internal/logging"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// State is the rig's position in the experiment workflow.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateValidated
	StateDebug
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateValidated:
		return "validated"
	case StateDebug:
		return "debug"
	case StateRunning:
		return "running"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	ErrNotConnected = errors.New("controller not connected")
	ErrNotValidated = errors.New("controller not validated")
	ErrNotDebugging = errors.New("sensor debug mode is off")
	ErrBusy         = errors.New("experiment running")
	ErrNoReading    = errors.New("no force reading yet")
	ErrNoDistance   = errors.New("markers not measured yet")
)

// Status is the live view of the rig, published after every change.
type Status struct {
	State        State     `json:"state"`
	Time         time.Time `json:"time"`
	CurrentMA    float64   `json:"current_mA"`
	ForceN       float64   `json:"force_N"`
	VoltageSMA   float64   `json:"busVoltage_SMA_V"`
	VoltageRef   float64   `json:"busVoltage_ref_V"`
	Relay        bool      `json:"relay"`
	DistanceMM   float64   `json:"distance_mm"`
	DeflectionMM float64   `json:"deflexion_mm"`
	Experiment   string    `json:"experiment,omitempty"`
	Rows         int       `json:"rows"`
}

// FrameMeter measures the marker distance in a frame.
type FrameMeter interface {
	Distance(img gocv.Mat) (float64, error)
}

// RigConfig configures NewRig.
type RigConfig struct {
	// DataDir receives one folder per experiment.
	DataDir string

	// Cameras are written as cam1, cam2, ... in order.
	Cameras []FrameSink

	Logger logrus.FieldLogger
	Now    func() time.Time
}

// Rig coordinates the controller link, the cameras and the recorder. All
// methods are safe for concurrent use.
type Rig struct {
	cfg RigConfig
	log logrus.FieldLogger

	mu          sync.Mutex
	link        *Link
	state       State
	force       experiment.ForceCalibration
	zero        float64
	rawForce    float64
	hasForce    bool
	distance    float64
	hasDistance bool
	relayCmd    bool
	resume      State
	status      Status
	rec         *Recorder
	listeners   []func(Status)
}

// NewRig creates a disconnected rig.
func NewRig(cfg RigConfig) *Rig {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Rig{
		cfg:   cfg,
		log:   logging.OrDiscard(cfg.Logger),
		force: experiment.DefaultForceCalibration(),
	}
}

// Subscribe registers a status listener. Listeners run on the goroutine
// that caused the change and must not call back into the rig.
func (r *Rig) Subscribe(fn func(Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Attach connects the rig to a controller link.
func (r *Rig) Attach(link *Link) {
	r.mu.Lock()
	r.link = link
	r.state = StateConnected
	r.mu.Unlock()
	r.publish()
}

// Detach forgets the link, stopping a running experiment first.
func (r *Rig) Detach() error {
	err := r.Stop()
	r.mu.Lock()
	r.link = nil
	r.state = StateDisconnected
	r.relayCmd = false
	r.mu.Unlock()
	r.publish()
	return err
}

// State returns the current state.
func (r *Rig) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Status returns the latest status.
func (r *Rig) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Force returns the force calibration.
func (r *Rig) Force() experiment.ForceCalibration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.force
}

// SetForce replaces the force calibration.
func (r *Rig) SetForce(c experiment.ForceCalibration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.force = c
}

// Validate asks the controller to identify itself.
func (r *Rig) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.link == nil {
		return ErrNotConnected
	}
	return r.link.Send(CmdValidate)
}

// HandleLine processes one line received from the controller.
func (r *Rig) HandleLine(line string) {
	switch {
	case strings.Contains(line, ReplyValidated):
		r.mu.Lock()
		if r.state == StateConnected {
			r.state = StateValidated
		}
		r.mu.Unlock()
		r.log.Info("Controller validated")
		r.publish()
		return
	case strings.Contains(line, ReplyTerminated):
		r.log.Info("Controller finished the experiment")
		if err := r.finish(true); err != nil {
			r.log.WithError(err).Error("Failed to close experiment")
		}
		r.publish()
		return
	}

	reading, ok := ParseReading(line)
	if !ok {
		r.log.WithField("line", line).Debug("Controller message")
		return
	}
	r.apply(reading)
	r.publish()
}

func (r *Rig) apply(reading Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.cfg.Now()
	r.status.Time = now
	if reading.CurrentMA != nil {
		r.status.CurrentMA = *reading.CurrentMA
	}
	if reading.RelayState != nil {
		r.status.Relay = *reading.RelayState
	}
	if reading.ForceRaw != nil {
		r.rawForce = *reading.ForceRaw
		r.hasForce = true
		r.status.ForceN = r.force.Apply(r.rawForce, r.status.Relay)
	}
	if reading.VoltageSMA != nil {
		r.status.VoltageSMA = *reading.VoltageSMA
	}
	if reading.VoltageRef != nil {
		r.status.VoltageRef = *reading.VoltageRef
	}

	if r.state != StateRunning || r.rec == nil {
		return
	}
	sample := Sample{
		Time:         now,
		CurrentMA:    value(reading.CurrentMA),
		VoltageSMA:   value(reading.VoltageSMA),
		VoltageRef:   value(reading.VoltageRef),
		DeflectionMM: r.distance - r.zero,
		// A missing reading counts as raw zero, calibrated like any other.
		ForceN: r.force.Apply(value(reading.ForceRaw), r.status.Relay),
	}
	if _, err := r.rec.Record(sample); err != nil {
		r.log.WithError(err).Error("Failed to record sample")
	}
}

// Start creates the experiment folder and starts the heating cycle.
func (r *Rig) Start(activeMS, restMS int) (string, error) {
	r.mu.Lock()
	defer func() {
		r.mu.Unlock()
		r.publish()
	}()

	switch {
	case r.link == nil:
		return "", ErrNotConnected
	case r.state == StateRunning:
		return "", ErrBusy
	case r.state == StateDebug:
		return "", fmt.Errorf("leave sensor debug mode first")
	case r.state != StateValidated:
		return "", ErrNotValidated
	case activeMS <= 0 || restMS <= 0:
		return "", fmt.Errorf("active and rest times must be positive")
	case r.cfg.DataDir == "":
		return "", fmt.Errorf("no data folder selected")
	}

	rec, err := StartRecording(r.cfg.DataDir, r.cfg.Now(), activeMS, restMS, r.cfg.Cameras, r.log)
	if err != nil {
		return "", err
	}
	if err := r.link.Send(StartCommand(activeMS, restMS)); err != nil {
		rec.Finish(r.force, r.zero, false)
		return "", err
	}

	r.rec = rec
	r.state = StateRunning
	r.log.WithFields(logrus.Fields{"active_ms": activeMS, "rest_ms": restMS}).Info("Experiment started")
	return rec.Dir(), nil
}

// Stop interrupts a running experiment.
func (r *Rig) Stop() error {
	r.mu.Lock()
	running := r.state == StateRunning
	var sendErr error
	if running && r.link != nil {
		sendErr = r.link.Send(CmdStop)
	}
	r.mu.Unlock()
	if !running {
		return nil
	}
	err := r.finish(false)
	r.publish()
	return errors.Join(sendErr, err)
}

func (r *Rig) finish(completed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rec == nil {
		return nil
	}
	err := r.rec.Finish(r.force, r.zero, completed)
	r.rec = nil
	if r.state == StateRunning {
		r.state = StateValidated
	}
	return err
}

// Debug switches the controller's sensor streaming mode used for
// calibration. Leaving debug mode also releases the relay.
func (r *Rig) Debug(on bool) error {
	r.mu.Lock()
	defer func() {
		r.mu.Unlock()
		r.publish()
	}()

	if r.link == nil {
		return ErrNotConnected
	}
	if r.state == StateRunning {
		return ErrBusy
	}
	if on {
		if r.state == StateDebug {
			return nil
		}
		if err := r.link.Send(CmdDebug); err != nil {
			return err
		}
		r.resume = r.state
		r.state = StateDebug
		return nil
	}

	if r.state != StateDebug {
		return nil
	}
	if err := r.link.Send(CmdDebugEnd); err != nil {
		return err
	}
	r.state = r.resume
	if r.relayCmd {
		if err := r.link.Send(CmdRelayOff); err != nil {
			return err
		}
		r.relayCmd = false
	}
	return nil
}

// SetRelay drives the SMA relay in debug mode.
func (r *Rig) SetRelay(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.link == nil {
		return ErrNotConnected
	}
	if r.state != StateDebug {
		return ErrNotDebugging
	}
	cmd := CmdRelayOff
	if on {
		cmd = CmdRelayOn
	}
	if err := r.link.Send(cmd); err != nil {
		return err
	}
	r.relayCmd = on
	return nil
}

// CaptureZeroForce stores the current raw force as the zero offset for the
// given relay state.
func (r *Rig) CaptureZeroForce(relayOn bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasForce {
		return ErrNoReading
	}
	r.force.CaptureZero(r.rawForce, relayOn)
	r.log.WithFields(logrus.Fields{"relay": relayOn, "offset": r.rawForce}).Info("Force offset captured")
	return nil
}

// CaptureKnownForce derives the scale for the given relay state from the
// current raw force under a known load.
func (r *Rig) CaptureKnownForce(knownN float64, relayOn bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasForce {
		return ErrNoReading
	}
	if err := r.force.CaptureKnown(r.rawForce, knownN, relayOn); err != nil {
		return err
	}
	r.log.WithFields(logrus.Fields{"relay": relayOn, "known_N": knownN}).Info("Force scale captured")
	return nil
}

// SetDistance stores the latest marker distance.
func (r *Rig) SetDistance(mm float64) {
	r.mu.Lock()
	r.distance = mm
	r.hasDistance = true
	r.mu.Unlock()
}

// TrackDistance measures every frame of cam with meter. Call before the
// camera runs.
func (r *Rig) TrackDistance(cam *Camera, meter FrameMeter) {
	cam.OnFrame = func(frame gocv.Mat) {
		if d, err := meter.Distance(frame); err == nil {
			r.SetDistance(d)
		}
	}
}

// CaptureZeroDeformation takes the current marker distance as the zero of
// deflection and saves the side camera frame under <DataDir>/Calibration.
func (r *Rig) CaptureZeroDeformation() (float64, error) {
	r.mu.Lock()
	defer func() {
		r.mu.Unlock()
		r.publish()
	}()
	if !r.hasDistance {
		return 0, ErrNoDistance
	}
	r.zero = r.distance

	if len(r.cfg.Cameras) > 0 && r.cfg.Cameras[0] != nil && r.cfg.DataDir != "" {
		dir := filepath.Join(r.cfg.DataDir, "Calibration")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return r.zero, err
		}
		path := filepath.Join(dir, FormatTimestamp(r.cfg.Now())+".jpg")
		if ok, err := r.cfg.Cameras[0].WriteLatest(path); err != nil {
			return r.zero, err
		} else if !ok {
			r.log.Warn("No side camera frame for the calibration image")
		}
	}
	r.log.WithField("zero_mm", r.zero).Info("Zero deformation captured")
	return r.zero, nil
}

func (r *Rig) snapshotLocked() Status {
	s := r.status
	s.State = r.state
	s.DistanceMM = r.distance
	s.DeflectionMM = r.distance - r.zero
	if r.rec != nil {
		s.Experiment = filepath.Base(r.rec.Dir())
		s.Rows = r.rec.Rows()
	}
	return s
}

func (r *Rig) publish() {
	r.mu.Lock()
	s := r.snapshotLocked()
	listeners := append([]func(Status){}, r.listeners...)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
}
