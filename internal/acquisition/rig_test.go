package acquisition

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sma-lab/internal/dataset"
	"sma-lab/internal/experiment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(250 * time.Millisecond)
	return c.t
}

func newTestRig(t *testing.T) (*Rig, *fakePort, *fileSink, string) {
	t.Helper()
	root := t.TempDir()
	side := &fileSink{}
	c := &clock{t: time.Date(2025, 7, 8, 14, 0, 0, 0, time.Local)}
	rig := NewRig(RigConfig{
		DataDir: root,
		Cameras: []FrameSink{side, &fileSink{}},
		Now:     c.now,
	})
	port := newFakePort("")
	return rig, port, side, root
}

func TestRigRequiresValidation(t *testing.T) {
	rig, port, _, _ := newTestRig(t)

	_, err := rig.Start(2000, 3000)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, rig.Validate(), ErrNotConnected)

	rig.Attach(NewLink(port, nil))
	assert.Equal(t, StateConnected, rig.State())
	_, err = rig.Start(2000, 3000)
	assert.ErrorIs(t, err, ErrNotValidated)

	require.NoError(t, rig.Validate())
	rig.HandleLine("VALIDATED")
	assert.Equal(t, StateValidated, rig.State())

	_, err = rig.Start(0, 3000)
	assert.Error(t, err)
	assert.Equal(t, []string{"VALIDATE"}, port.sent())
}

func TestRigRecordsExperiment(t *testing.T) {
	rig, port, side, root := newTestRig(t)
	rig.Attach(NewLink(port, nil))
	rig.HandleLine("VALIDATED")

	var statuses []Status
	rig.Subscribe(func(s Status) { statuses = append(statuses, s) })

	rig.SetDistance(50)
	zero, err := rig.CaptureZeroDeformation()
	require.NoError(t, err)
	assert.Equal(t, 50.0, zero)
	require.Len(t, side.paths, 1)
	assert.Equal(t, filepath.Join(root, "Calibration"), filepath.Dir(side.paths[0]))

	rig.SetForce(experiment.ForceCalibration{Offset: 1, Scale: 2, RelayOffset: 0.5, RelayScale: 4})

	dir, err := rig.Start(2000, 3000)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, rig.State())
	_, err = rig.Start(2000, 3000)
	assert.ErrorIs(t, err, ErrBusy)

	rig.SetDistance(52.5)
	rig.HandleLine(`{"current_mA": 1200, "relay_state": true, "force_N": 1.5, "busVoltage_SMA_V": 3.1}`)
	rig.HandleLine(`{"current_mA": 0, "relay_state": false, "force_N": 2, "busVoltage_ref_V": 5}`)

	last := statuses[len(statuses)-1]
	assert.Equal(t, StateRunning, last.State)
	assert.Equal(t, 2, last.Rows)
	assert.Equal(t, 2.5, last.DeflectionMM)
	assert.Equal(t, 2.0, last.ForceN)

	rig.HandleLine("TERMINATED")
	assert.Equal(t, StateValidated, rig.State())
	assert.Equal(t, []string{"START 2000 3000"}, port.sent())

	tbl, err := dataset.ReadFile(filepath.Join(dir, experiment.DataName))
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "1200", tbl.Get(0, dataset.ColCurrent))
	assert.Equal(t, "4", tbl.Get(0, dataset.ColForce))
	assert.Equal(t, "3.1", tbl.Get(0, dataset.ColVoltageSMA))
	assert.Equal(t, "0", tbl.Get(0, dataset.ColVoltageRef))
	assert.Equal(t, "2.5", tbl.Get(0, dataset.ColDeflection))
	assert.Equal(t, "2", tbl.Get(1, dataset.ColForce))
	assert.Equal(t, "5", tbl.Get(1, dataset.ColVoltageRef))

	m, err := experiment.LoadDir(dir)
	require.NoError(t, err)
	assert.True(t, m.Finished)
	assert.Equal(t, 50.0, m.ZeroDeformation)
	assert.Equal(t, 2, m.Rows)
}

func TestRigCalibratesMissingForceAsZero(t *testing.T) {
	rig, port, _, _ := newTestRig(t)
	rig.Attach(NewLink(port, nil))
	rig.HandleLine("VALIDATED")
	rig.SetForce(experiment.ForceCalibration{Offset: 1, Scale: 2, RelayOffset: 0.25, RelayScale: 4})

	dir, err := rig.Start(1000, 1000)
	require.NoError(t, err)
	rig.HandleLine(`{"current_mA": 0, "relay_state": false}`)
	rig.HandleLine(`{"current_mA": 900, "relay_state": true}`)
	rig.HandleLine("TERMINATED")

	tbl, err := dataset.ReadFile(filepath.Join(dir, experiment.DataName))
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "-2", tbl.Get(0, dataset.ColForce))
	assert.Equal(t, "-1", tbl.Get(1, dataset.ColForce))
}

func TestRigStopMarksUnfinished(t *testing.T) {
	rig, port, _, _ := newTestRig(t)
	rig.Attach(NewLink(port, nil))
	rig.HandleLine("VALIDATED")

	dir, err := rig.Start(1000, 1000)
	require.NoError(t, err)
	require.NoError(t, rig.Stop())
	assert.Equal(t, StateValidated, rig.State())
	assert.Equal(t, []string{"START 1000 1000", "STOP"}, port.sent())

	m, err := experiment.LoadDir(dir)
	require.NoError(t, err)
	assert.False(t, m.Finished)

	require.NoError(t, rig.Stop())
}

func TestRigDebugAndForceCalibration(t *testing.T) {
	rig, port, _, _ := newTestRig(t)
	rig.Attach(NewLink(port, nil))
	rig.HandleLine("VALIDATED")

	assert.ErrorIs(t, rig.SetRelay(true), ErrNotDebugging)
	assert.ErrorIs(t, rig.CaptureZeroForce(false), ErrNoReading)

	require.NoError(t, rig.Debug(true))
	assert.Equal(t, StateDebug, rig.State())
	_, err := rig.Start(1000, 1000)
	assert.Error(t, err)

	rig.HandleLine(`{"force_N": 0.2}`)
	require.NoError(t, rig.CaptureZeroForce(false))
	rig.HandleLine(`{"force_N": 1.2}`)
	require.NoError(t, rig.CaptureKnownForce(9.81, false))
	require.NoError(t, rig.CaptureZeroForce(true))
	assert.ErrorIs(t, rig.CaptureKnownForce(9.81, true), experiment.ErrDegenerateCalibration)

	f := rig.Force()
	assert.InDelta(t, 0.2, f.Offset, 1e-12)
	assert.InDelta(t, 9.81, f.Apply(1.2, false), 1e-9)

	require.NoError(t, rig.SetRelay(true))
	require.NoError(t, rig.Debug(false))
	assert.Equal(t, StateValidated, rig.State())
	assert.Equal(t, []string{"DEBUG", "RELAY_ON", "DEBUGEND", "RELAY_OFF"}, port.sent())
}
