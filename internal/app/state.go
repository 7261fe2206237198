// Package app holds the analyzer state shared by the GUI widgets and the
// events they listen to.
package app

import (
	"errors"
	"sync"
	"sync/atomic"

	"sma-lab/internal/logging"
	"sma-lab/internal/session"

	"github.com/sirupsen/logrus"
)

// EventType identifies different application events.
type EventType int

const (
	// EventSessionOpened carries the *session.Controller.
	EventSessionOpened EventType = iota
	// EventFrameChanged carries the new session.View.
	EventFrameChanged
	// EventPointsChanged carries the current session.View.
	EventPointsChanged
	// EventModified carries a bool.
	EventModified
	// EventSaved carries the session.SaveReport.
	EventSaved
	// EventProblem carries an error worth showing to the user.
	EventProblem
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// Inputs are the three files an analysis needs.
type Inputs struct {
	ImagesDir       string
	DatasetPath     string
	CalibrationPath string
}

// Ready reports whether every input is set.
func (in Inputs) Ready() bool {
	return in.ImagesDir != "" && in.DatasetPath != "" && in.CalibrationPath != ""
}

var (
	// ErrNoSession is returned by actions that need an open analysis.
	ErrNoSession = errors.New("no analysis running")
	// ErrBusy is returned while a save holds the session.
	ErrBusy = errors.New("save in progress")
)

// State holds the analyzer inputs, the running session and the frame on
// screen.
type State struct {
	mu sync.RWMutex
	// ops serializes every call into the session controller.
	ops    sync.Mutex
	saving atomic.Bool

	Inputs    Inputs
	Bandwidth float64
	Modified  bool

	session   *session.Controller
	view      session.View
	persister session.Persister
	log       logrus.FieldLogger

	// Event listeners
	listeners map[EventType][]EventListener
}

// NewState creates an idle state. persister may be nil.
func NewState(persister session.Persister, log logrus.FieldLogger) *State {
	return &State{
		persister: persister,
		log:       logging.OrDiscard(log),
		listeners: make(map[EventType][]EventListener),
	}
}

// On registers an event listener for the specified event type.
func (s *State) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *State) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// SetModified marks unsaved work and emits an event.
func (s *State) SetModified(modified bool) {
	s.mu.Lock()
	s.Modified = modified
	s.mu.Unlock()
	s.Emit(EventModified, modified)
}

// Session returns the running session, or nil.
func (s *State) Session() *session.Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// View returns the frame on screen.
func (s *State) View() session.View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Start opens a session on the current inputs and shows the first frame.
// Non-fatal problems are emitted as EventProblem.
func (s *State) Start() error {
	s.mu.RLock()
	in, bw := s.Inputs, s.Bandwidth
	s.mu.RUnlock()
	if !in.Ready() {
		return errors.New("select the images folder, the dataset and the calibration file first")
	}
	if !s.ops.TryLock() {
		return ErrBusy
	}

	c, err := session.Open(session.Options{
		DatasetPath:     in.DatasetPath,
		ImagesDir:       in.ImagesDir,
		CalibrationPath: in.CalibrationPath,
		Bandwidth:       bw,
		Persister:       s.persister,
		Logger:          s.log,
	})
	if err != nil {
		s.ops.Unlock()
		return err
	}

	s.mu.Lock()
	s.session = c
	s.view = session.View{}
	s.mu.Unlock()
	s.ops.Unlock()

	s.Emit(EventSessionOpened, c)
	for _, p := range c.Problems() {
		var warn *session.UnmatchedTimestampWarning
		if errors.As(p, &warn) {
			continue
		}
		s.Emit(EventProblem, p)
	}
	s.SetModified(false)

	if c.Len() == 0 {
		return nil
	}
	return s.navigate((*session.Controller).First)
}

func (s *State) navigate(move func(*session.Controller) (session.View, error)) error {
	c := s.Session()
	if c == nil {
		return ErrNoSession
	}
	if !s.ops.TryLock() {
		return ErrBusy
	}
	v, err := move(c)
	s.ops.Unlock()
	if errors.Is(err, session.ErrNothingToShow) {
		return err
	}
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
	s.Emit(EventFrameChanged, v)
	return err
}

// First shows the first frame.
func (s *State) First() error { return s.navigate((*session.Controller).First) }

// Previous shows the previous frame.
func (s *State) Previous() error { return s.navigate((*session.Controller).Previous) }

// Next shows the next frame.
func (s *State) Next() error { return s.navigate((*session.Controller).Next) }

// Last shows the last frame.
func (s *State) Last() error { return s.navigate((*session.Controller).Last) }

// Click places or moves a point at an image pixel of the current frame.
func (s *State) Click(x, y int) session.Placement {
	c := s.Session()
	if c == nil {
		return session.Placement{Slot: -1, Ignored: true, Reason: ErrNoSession}
	}
	if !s.ops.TryLock() {
		return session.Placement{Slot: -1, Ignored: true, Reason: ErrBusy}
	}
	p := c.Click(x, y)
	if p.Ignored {
		s.ops.Unlock()
		return p
	}
	s.refresh(c)
	s.SetModified(true)
	return p
}

// ToggleExclude flips the exclusion of the current frame.
func (s *State) ToggleExclude() (bool, error) {
	c := s.Session()
	if c == nil {
		return false, ErrNoSession
	}
	if !s.ops.TryLock() {
		return false, ErrBusy
	}
	excluded, err := c.ToggleExclude()
	if err != nil {
		s.ops.Unlock()
		return false, err
	}
	s.refresh(c)
	s.SetModified(true)
	return excluded, nil
}

// refresh republishes the current frame and releases ops.
func (s *State) refresh(c *session.Controller) {
	v, err := c.Current()
	s.ops.Unlock()
	if err != nil {
		return
	}
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
	s.Emit(EventPointsChanged, v)
}

// Pending returns how many frames a save would auto-fill. It is zero
// while a save runs.
func (s *State) Pending() int {
	c := s.Session()
	if c == nil || !s.ops.TryLock() {
		return 0
	}
	defer s.ops.Unlock()
	return len(c.Pending())
}

// Busy reports whether a save is running.
func (s *State) Busy() bool {
	return s.saving.Load()
}

// Save writes the dataset back, auto-filling pending frames when asked.
// It may run off the UI goroutine: until it returns, every other session
// action fails with ErrBusy.
func (s *State) Save(autoFill bool, progress func(current, total int)) (session.SaveReport, error) {
	c := s.Session()
	if c == nil {
		return session.SaveReport{}, ErrNoSession
	}
	if !s.ops.TryLock() {
		return session.SaveReport{}, ErrBusy
	}
	s.saving.Store(true)
	report, err := c.Save(session.SaveOptions{AutoFill: autoFill, Progress: progress})
	s.saving.Store(false)
	s.ops.Unlock()
	if err != nil {
		return report, err
	}
	s.SetModified(false)
	s.Emit(EventSaved, report)
	return report, nil
}
