package protocol

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	params, _ := json.Marshal(&EvalParams{Code: "x = magic(3)", CaptureOutput: true})
	cmd := &CommandMessage{
		ID:     "cmd-1",
		Type:   CommandTypeEval,
		Params: params,
	}
	if err := enc.EncodeCommand(cmd); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	dec := NewDecoder(&buf)
	got, err := dec.DecodeCommand()
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.ID != "cmd-1" || got.Type != CommandTypeEval {
		t.Errorf("command fields lost: %+v", got)
	}
	var gotParams EvalParams
	if err := ParseData(got.Params, &gotParams); err != nil {
		t.Fatalf("params parse failed: %v", err)
	}
	if gotParams.Code != "x = magic(3)" || !gotParams.CaptureOutput {
		t.Errorf("params lost: %+v", gotParams)
	}
}

func TestEncodeRejectsInvalidCommand(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	if err := enc.EncodeCommand(&CommandMessage{Type: CommandTypeEval}); err == nil {
		t.Error("missing command ID should be rejected")
	}
	if err := enc.EncodeCommand(&CommandMessage{ID: "x", Type: "bogus"}); err == nil {
		t.Error("unknown command type should be rejected")
	}
	params, _ := json.Marshal(&EvalParams{Code: "1"})
	_ = params
	if err := enc.EncodeCommand(&CommandMessage{ID: "x", Type: CommandTypeEval}); err == nil {
		t.Error("eval without params should be rejected")
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written for rejected commands")
	}

	// Probe needs no params.
	if err := enc.EncodeCommand(&CommandMessage{ID: "p", Type: CommandTypeProbe}); err != nil {
		t.Errorf("probe without params should be accepted: %v", err)
	}
}

func TestDecodeStreamOfMessages(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	if err := enc.EncodeReady(&ReadyMessage{Version: "1.0", EngineName: "matlab", PID: 42}); err != nil {
		t.Fatalf("encode ready: %v", err)
	}
	result, _ := json.Marshal(&DebugQueryResult{InDebugPause: true, Frame: "frob>inner"})
	if err := enc.EncodeDone(&DoneMessage{CommandID: "q1", Result: result}); err != nil {
		t.Fatalf("encode done: %v", err)
	}
	if err := enc.EncodeError(&ErrorMessage{
		CommandID:  "e1",
		Code:       "EVAL_FAILED",
		Identifier: "MATLAB:UndefinedFunction",
		Message:    "Undefined function 'frob'.",
	}); err != nil {
		t.Fatalf("encode error: %v", err)
	}

	dec := NewDecoder(&buf)

	msg, err := dec.Decode()
	if err != nil || msg.Type != MessageTypeReady {
		t.Fatalf("expected READY, got %v (%v)", msg, err)
	}
	var ready ReadyMessage
	if err := ParseData(msg.Data, &ready); err != nil || ready.EngineName != "matlab" {
		t.Errorf("ready data lost: %+v (%v)", ready, err)
	}

	msg, err = dec.Decode()
	if err != nil || msg.Type != MessageTypeDone {
		t.Fatalf("expected DONE, got %v (%v)", msg, err)
	}
	var done DoneMessage
	if err := ParseData(msg.Data, &done); err != nil || done.CommandID != "q1" {
		t.Fatalf("done data lost: %+v (%v)", done, err)
	}
	var dbg DebugQueryResult
	if err := ParseData(done.Result, &dbg); err != nil || !dbg.InDebugPause {
		t.Errorf("nested result lost: %+v (%v)", dbg, err)
	}

	msg, err = dec.Decode()
	if err != nil || msg.Type != MessageTypeError {
		t.Fatalf("expected ERROR, got %v (%v)", msg, err)
	}
	var errMsg ErrorMessage
	if err := ParseData(msg.Data, &errMsg); err != nil {
		t.Fatalf("error data lost: %v", err)
	}
	if errMsg.Identifier != "MATLAB:UndefinedFunction" {
		t.Errorf("engine identifier lost: %q", errMsg.Identifier)
	}

	if _, err := dec.Decode(); err != io.EOF {
		t.Errorf("expected EOF at end of stream, got %v", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	dec := NewDecoder(strings.NewReader("not json\n"))
	if _, err := dec.Decode(); err == nil {
		t.Error("non-JSON line should fail")
	}

	dec = NewDecoder(strings.NewReader(`{"type":"NONSENSE"}` + "\n"))
	if _, err := dec.Decode(); err == nil {
		t.Error("unknown message type should fail")
	}
}
