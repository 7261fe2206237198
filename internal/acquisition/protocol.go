// Package acquisition runs the test rig: the serial link to the heater and
// load-cell controller, the two cameras and the experiment recorder.
package acquisition

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Controller commands. Every command is terminated by a newline on the wire.
const (
	CmdValidate = "VALIDATE"
	CmdStart    = "START"
	CmdStop     = "STOP"
	CmdDebug    = "DEBUG"
	CmdDebugEnd = "DEBUGEND"
	CmdRelayOn  = "RELAY_ON"
	CmdRelayOff = "RELAY_OFF"
)

// Controller replies.
const (
	ReplyValidated  = "VALIDATED"
	ReplyTerminated = "TERMINATED"
)

// StartCommand builds the command that starts a heating cycle.
func StartCommand(activeMS, restMS int) string {
	return fmt.Sprintf("%s %d %d", CmdStart, activeMS, restMS)
}

// Reading is one JSON line from the controller. Absent fields are nil.
type Reading struct {
	CurrentMA  *float64 `json:"current_mA,omitempty"`
	RelayState *bool    `json:"relay_state,omitempty"`
	ForceRaw   *float64 `json:"force_N,omitempty"`
	VoltageSMA *float64 `json:"busVoltage_SMA_V,omitempty"`
	VoltageRef *float64 `json:"busVoltage_ref_V,omitempty"`
}

// ParseReading decodes a JSON line. ok is false for anything else.
func ParseReading(line string) (Reading, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return Reading{}, false
	}
	var r Reading
	if err := json.Unmarshal([]byte(line), &r); err != nil {
		return Reading{}, false
	}
	return r, true
}

// value returns *p or 0.
func value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
