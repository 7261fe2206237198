package acquisition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sma-lab/internal/logging"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// CameraOptions configures a capture device.
type CameraOptions struct {
	Device int
	Width  int
	Height int
	MJPG   bool
}

// SideCameraOptions is the setup of the deflection camera.
func SideCameraOptions() CameraOptions {
	return CameraOptions{Device: 0, Width: 1024, Height: 576, MJPG: true}
}

// ThermalCameraOptions is the setup of the thermal camera.
func ThermalCameraOptions() CameraOptions {
	return CameraOptions{Device: 1}
}

// Camera grabs frames in its own goroutine and keeps the latest one.
type Camera struct {
	opts CameraOptions
	cap  *gocv.VideoCapture
	log  logrus.FieldLogger

	mu     sync.Mutex
	latest gocv.Mat
	has    bool

	// OnFrame, when set before Run, is called from the capture goroutine
	// with every frame. The frame is only valid during the call.
	OnFrame func(frame gocv.Mat)
}

// OpenCamera opens a capture device.
func OpenCamera(opts CameraOptions, log logrus.FieldLogger) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(opts.Device)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", opts.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("camera %d not available", opts.Device)
	}
	if opts.MJPG {
		vc.Set(gocv.VideoCaptureFOURCC, vc.ToCodec("MJPG"))
	}
	if opts.Width > 0 && opts.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	}

	log = logging.OrDiscard(log).WithField("camera", opts.Device)
	log.Info("Camera open")
	return &Camera{opts: opts, cap: vc, log: log, latest: gocv.NewMat()}, nil
}

// Read failures back off from minReadBackoff up to maxReadBackoff.
const (
	minReadBackoff = 10 * time.Millisecond
	maxReadBackoff = time.Second
)

// readBackoff returns the wait after the given number of consecutive
// failed reads.
func readBackoff(failures int) time.Duration {
	d := minReadBackoff
	for i := 1; i < failures && d < maxReadBackoff; i++ {
		d *= 2
	}
	return min(d, maxReadBackoff)
}

// sleepCtx waits for d and reports false when ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Run grabs frames until ctx is done.
func (c *Camera) Run(ctx context.Context) {
	frame := gocv.NewMat()
	defer frame.Close()

	failures := 0
	for ctx.Err() == nil {
		if ok := c.cap.Read(&frame); !ok || frame.Empty() {
			failures++
			if failures == 1 {
				c.log.Warn("Camera read failed, retrying")
			}
			if !sleepCtx(ctx, readBackoff(failures)) {
				return
			}
			continue
		}
		if failures > 0 {
			c.log.WithField("failures", failures).Info("Camera recovered")
			failures = 0
		}
		if c.OnFrame != nil {
			c.OnFrame(frame)
		}
		c.mu.Lock()
		frame.CopyTo(&c.latest)
		c.has = true
		c.mu.Unlock()
	}
}

// Latest returns a copy of the last frame. The caller closes it.
func (c *Camera) Latest() (gocv.Mat, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.has {
		return gocv.NewMat(), false
	}
	return c.latest.Clone(), true
}

// WriteLatest saves the last frame to path. It reports false when no frame
// has been captured yet.
func (c *Camera) WriteLatest(path string) (bool, error) {
	frame, ok := c.Latest()
	defer frame.Close()
	if !ok {
		return false, nil
	}
	if !gocv.IMWrite(path, frame) {
		return false, fmt.Errorf("failed to write %s", path)
	}
	return true, nil
}

// Close releases the device. Run must have returned.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest.Close()
	return c.cap.Close()
}
