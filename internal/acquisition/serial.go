package acquisition

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"sma-lab/internal/logging"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// DefaultBaudRate is the controller's serial speed.
const DefaultBaudRate = 115200

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Link is a line-oriented connection to the controller.
type Link struct {
	port io.ReadWriteCloser
	log  logrus.FieldLogger

	mu     sync.Mutex
	closed bool
}

// OpenSerial opens a serial port and wraps it in a Link.
func OpenSerial(name string, baud int, log logrus.FieldLogger) (*Link, error) {
	log = logging.OrDiscard(log)
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	log.WithFields(logrus.Fields{"port": name, "baud": baud}).Info("Serial link open")
	return NewLink(port, log), nil
}

// NewLink wraps an already open stream.
func NewLink(port io.ReadWriteCloser, log logrus.FieldLogger) *Link {
	return &Link{port: port, log: logging.OrDiscard(log)}
}

// Send writes one command line.
func (l *Link) Send(cmd string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("send %q: link closed", cmd)
	}
	if _, err := io.WriteString(l.port, cmd+"\n"); err != nil {
		return fmt.Errorf("send %q: %w", cmd, err)
	}
	l.log.WithField("cmd", cmd).Debug("TX")
	return nil
}

// ReadLines delivers every received line to handle until ctx is done, the
// stream ends or the link is closed.
func (l *Link) ReadLines(ctx context.Context, handle func(line string)) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()

	scanner := bufio.NewScanner(l.port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		l.log.WithField("line", line).Debug("RX")
		handle(line)
	}
	if ctx.Err() != nil || l.isClosed() {
		return nil
	}
	return scanner.Err()
}

func (l *Link) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close closes the underlying port. It is safe to call more than once.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.port.Close()
}
