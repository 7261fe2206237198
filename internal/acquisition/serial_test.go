package acquisition

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort records writes and reads from a fixed script.
type fakePort struct {
	mu     sync.Mutex
	in     io.Reader
	out    bytes.Buffer
	closed bool
}

func newFakePort(script string) *fakePort {
	return &fakePort{in: strings.NewReader(script)}
}

func (p *fakePort) Read(b []byte) (int, error) { return p.in.Read(b) }

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := strings.TrimSuffix(p.out.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestLinkSendAndReadLines(t *testing.T) {
	port := newFakePort("VALIDATED\r\n\n{\"current_mA\": 1}\n")
	link := NewLink(port, nil)

	require.NoError(t, link.Send(CmdValidate))
	assert.Equal(t, []string{"VALIDATE"}, port.sent())

	var lines []string
	err := link.ReadLines(context.Background(), func(line string) {
		lines = append(lines, line)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"VALIDATED", `{"current_mA": 1}`}, lines)
}

func TestLinkClose(t *testing.T) {
	port := newFakePort("")
	link := NewLink(port, nil)

	require.NoError(t, link.Close())
	require.NoError(t, link.Close())
	assert.True(t, port.closed)
	assert.Error(t, link.Send(CmdStop))
}

func TestReadLinesStopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	link := NewLink(struct {
		io.Reader
		io.Writer
		io.Closer
	}{pr, io.Discard, pr}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	got := make(chan string, 1)
	go func() {
		done <- link.ReadLines(ctx, func(line string) { got <- line })
	}()

	_, err := pw.Write([]byte("TERMINATED\n"))
	require.NoError(t, err)
	assert.Equal(t, "TERMINATED", <-got)

	cancel()
	assert.NoError(t, <-done)
}
