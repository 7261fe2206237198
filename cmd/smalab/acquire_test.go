package main

import (
	"strings"
	"testing"

	"sma-lab/internal/acquisition"
	"sma-lab/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRigCommand(t *testing.T) {
	log = logging.Discard()
	rig := acquisition.NewRig(acquisition.RigConfig{DataDir: t.TempDir()})
	active, rest := 5000, 5000

	_, err := rigCommand(rig, "start 1500 2500", &active, &rest)
	assert.Error(t, err, "rig is not connected")
	assert.Equal(t, 1500, active)
	assert.Equal(t, 2500, rest)

	_, err = rigCommand(rig, "start fast slow", &active, &rest)
	assert.ErrorContains(t, err, "invalid cycle")
	assert.Equal(t, 1500, active)

	_, err = rigCommand(rig, "known-force", &active, &rest)
	assert.Error(t, err)

	_, err = rigCommand(rig, "relay on", &active, &rest)
	assert.ErrorIs(t, err, acquisition.ErrNotConnected)

	_, err = rigCommand(rig, "zero-def", &active, &rest)
	assert.ErrorIs(t, err, acquisition.ErrNoDistance)

	_, err = rigCommand(rig, "dance", &active, &rest)
	assert.ErrorContains(t, err, "unknown command")

	quit, err := rigCommand(rig, "  ", &active, &rest)
	require.NoError(t, err)
	assert.False(t, quit)

	quit, err = rigCommand(rig, "status", &active, &rest)
	require.NoError(t, err)
	assert.False(t, quit)

	quit, err = rigCommand(rig, "QUIT", &active, &rest)
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestOnArg(t *testing.T) {
	assert.True(t, onArg([]string{"on"}, 0))
	assert.True(t, onArg([]string{"2.5", "1"}, 1))
	assert.False(t, onArg([]string{"off"}, 0))
	assert.False(t, onArg(nil, 0))
}

func TestScanLines(t *testing.T) {
	out := make(chan string)
	go scanLines(strings.NewReader("start\nstop\n"), out)

	var got []string
	for l := range out {
		got = append(got, l)
	}
	assert.Equal(t, []string{"start", "stop"}, got)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, ":8080", firstNonEmpty("", ":8080", ":9090"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
