// Package protocol defines the JSON-over-stdio communication protocol
// between matbridge and an engine worker process.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType represents the type of message in the protocol.
type MessageType string

const (
	// MessageTypeReady indicates the worker is attached to the engine and
	// ready to receive commands
	MessageTypeReady MessageType = "READY"
	// MessageTypeCommand indicates a command from the supervisor
	MessageTypeCommand MessageType = "CMD"
	// MessageTypeEvent indicates streamed engine console output
	MessageTypeEvent MessageType = "EVENT"
	// MessageTypeDone indicates successful command completion
	MessageTypeDone MessageType = "DONE"
	// MessageTypeError indicates a command failed
	MessageTypeError MessageType = "ERROR"
	// MessageTypeExit indicates the worker is exiting
	MessageTypeExit MessageType = "EXIT"
)

// CommandType represents the type of command sent to the worker.
type CommandType string

const (
	// CommandTypeEval evaluates code in the engine asynchronously
	CommandTypeEval CommandType = "eval"
	// CommandTypeProbe checks engine responsiveness with a trivial request
	CommandTypeProbe CommandType = "probe"
	// CommandTypeDebugQuery asks whether the engine is paused at a breakpoint
	CommandTypeDebugQuery CommandType = "debug.query"
	// CommandTypeDesktopQuery asks whether the engine desktop is visible
	CommandTypeDesktopQuery CommandType = "desktop.query"
	// CommandTypeDesktopShow asks the engine to open its desktop
	CommandTypeDesktopShow CommandType = "desktop.show"
	// CommandTypeInterrupt interrupts the in-flight evaluation
	CommandTypeInterrupt CommandType = "interrupt"
)

// Message is the base message structure for all protocol messages.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ReadyMessage is sent once the worker has attached to the engine.
type ReadyMessage struct {
	Version       string            `json:"version"`
	EngineName    string            `json:"engine_name"`
	EngineVersion string            `json:"engine_version"`
	PID           int               `json:"pid"`
	Caps          map[string]bool   `json:"capabilities"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// CommandMessage contains a command for the worker.
type CommandMessage struct {
	ID      string          `json:"id"`
	Type    CommandType     `json:"type"`
	Timeout int             `json:"timeout,omitempty"` // seconds, 0 = unbounded
	Params  json.RawMessage `json:"params,omitempty"`
}

// EventMessage carries a line of engine console output produced while a
// command is running.
type EventMessage struct {
	CommandID string `json:"command_id"`
	Stream    string `json:"stream"` // stdout, stderr
	Text      string `json:"text"`
}

// DoneMessage indicates successful command completion.
type DoneMessage struct {
	CommandID string          `json:"command_id"`
	Result    json.RawMessage `json:"result,omitempty"`
	Duration  float64         `json:"duration"` // seconds
}

// ErrorMessage indicates a command failed. For eval commands Message and
// Identifier carry the engine's own error text and identifier verbatim.
type ErrorMessage struct {
	CommandID  string            `json:"command_id,omitempty"`
	Code       string            `json:"code"`
	Identifier string            `json:"identifier,omitempty"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
}

// ExitMessage is sent before the worker terminates.
type ExitMessage struct {
	Reason   string `json:"reason"`
	ExitCode int    `json:"exit_code"`
}

// Command parameter and result structures.

// EvalParams contains parameters for code evaluation.
type EvalParams struct {
	Code          string `json:"code"`
	CaptureOutput bool   `json:"capture_output"`

	// ExportFigures asks the worker to export figures opened during the
	// evaluation: "inline" embeds them in the result, "file" writes them
	// to ExportDir. Empty disables export.
	ExportFigures string `json:"export_figures,omitempty"`
	ExportDir     string `json:"export_dir,omitempty"`
}

// EvalResult contains the result of a finished evaluation.
type EvalResult struct {
	Output string          `json:"output,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// ProbeResult contains the result of a responsiveness probe.
type ProbeResult struct {
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// DebugQueryResult reports engine debug state.
type DebugQueryResult struct {
	InDebugPause bool   `json:"in_debug_pause"`
	Frame        string `json:"frame,omitempty"`
}

// DesktopQueryResult reports engine desktop visibility.
type DesktopQueryResult struct {
	Visible bool `json:"visible"`
}

// Validate checks if the message type is valid.
func (mt MessageType) Validate() error {
	switch mt {
	case MessageTypeReady, MessageTypeCommand, MessageTypeEvent,
		MessageTypeDone, MessageTypeError, MessageTypeExit:
		return nil
	default:
		return fmt.Errorf("invalid message type: %s", mt)
	}
}

// Validate checks if the command type is valid.
func (ct CommandType) Validate() error {
	switch ct {
	case CommandTypeEval, CommandTypeProbe, CommandTypeDebugQuery,
		CommandTypeDesktopQuery, CommandTypeDesktopShow, CommandTypeInterrupt:
		return nil
	default:
		return fmt.Errorf("invalid command type: %s", ct)
	}
}

// Validate checks if the command message is valid.
func (cmd *CommandMessage) Validate() error {
	if cmd.ID == "" {
		return fmt.Errorf("command ID is required")
	}
	if err := cmd.Type.Validate(); err != nil {
		return err
	}
	if cmd.Type == CommandTypeEval && len(cmd.Params) == 0 {
		return fmt.Errorf("eval params are required")
	}
	return nil
}
