package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/davidahmann/execgate/core/fsx"
)

type telemetryEvent struct {
	SchemaID        string  `json:"schema_id"`
	SchemaVersion   string  `json:"schema_version"`
	CreatedAt       string  `json:"created_at"`
	ProducerVersion string  `json:"producer_version"`
	CorrelationID   string  `json:"correlation_id"`
	Command         string  `json:"command"`
	ExitCode        int     `json:"exit_code"`
	ElapsedMS       float64 `json:"elapsed_ms"`
}

// writeTelemetryEvent appends one JSONL record per invocation when the
// operator opted in via EXECGATE_TELEMETRY. Failures warn on stderr and never
// change the exit code.
func writeTelemetryEvent(command, correlationID string, exitCode int, elapsed time.Duration) {
	telemetryPath := strings.TrimSpace(os.Getenv("EXECGATE_TELEMETRY"))
	if telemetryPath == "" {
		return
	}
	event := telemetryEvent{
		SchemaID:        "execgate.telemetry.event",
		SchemaVersion:   "1.0.0",
		CreatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
		ProducerVersion: version,
		CorrelationID:   correlationID,
		Command:         command,
		ExitCode:        exitCode,
		ElapsedMS:       float64(elapsed.Microseconds()) / 1000.0,
	}
	encoded, err := json.Marshal(event)
	if err == nil {
		err = fsx.AppendLineLocked(telemetryPath, encoded, 0o600)
	}
	if err != nil && !strings.EqualFold(strings.TrimSpace(os.Getenv("EXECGATE_TELEMETRY_WARN")), "off") {
		fmt.Fprintf(os.Stderr, "execgate warning: telemetry write failed: %v\n", err)
	}
}
