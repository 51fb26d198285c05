// Package record converts between Records and their control-message text.
//
// Control fields travel as JSON. Binary payloads (frame, lidar) are never
// placed in the JSON; they are carried next to it in Record.Frame and
// Record.Lidar.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/deepgtav/vpilot-collector/pkg/core"
)

// Binary field names. They may not appear in control text.
const (
	FieldFrame = "frame"
	FieldLidar = "lidar"
)

// FieldError is the key the simulator uses to refuse a Start or Config.
const FieldError = "error"

// EncodeControl returns the control text of rec.
func EncodeControl(rec *core.Record) (string, error) {
	if len(rec.Control) == 0 {
		return "{}", nil
	}
	if _, err := DecodeControl(string(rec.Control)); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, rec.Control); err != nil {
		return "", fmt.Errorf("failed to compact control: %w", err)
	}
	return buf.String(), nil
}

// DecodeControl parses control text into a field mapping. Numbers decode as
// float64, arrays as []any and objects as map[string]any.
func DecodeControl(text string) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode control: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("failed to decode control: not an object")
	}
	if err := checkBinaryFields(fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// New builds a Record from control fields and binary payloads.
func New(tick uint64, fields map[string]any, frame, lidar []byte) (*core.Record, error) {
	if err := checkBinaryFields(fields); err != nil {
		return nil, err
	}
	control, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode control: %w", err)
	}
	return &core.Record{Tick: tick, Control: control, Frame: frame, Lidar: lidar}, nil
}

func checkBinaryFields(fields map[string]any) error {
	for _, key := range []string{FieldFrame, FieldLidar} {
		if _, ok := fields[key]; ok {
			return fmt.Errorf("control carries binary field %q", key)
		}
	}
	return nil
}

// Telemetry decodes the well-known control fields of rec.
func Telemetry(rec *core.Record) (core.Telemetry, error) {
	var t core.Telemetry
	if len(rec.Control) == 0 {
		return t, nil
	}
	if err := json.Unmarshal(rec.Control, &t); err != nil {
		return t, fmt.Errorf("failed to decode telemetry: %w", err)
	}
	return t, nil
}

// Rejection returns the simulator's refusal reason if the control text
// carries one.
func Rejection(control []byte) (*core.RejectionError, bool) {
	var probe struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(control, &probe); err != nil || probe.Error == nil {
		return nil, false
	}
	return &core.RejectionError{Reason: *probe.Error}, true
}
