// Package messages defines the control messages exchanged with the simulator
// and the scenario and dataset configuration they carry.
package messages

import "encoding/json"

// Message type keys of the control protocol.
const (
	KindStart    = "start"
	KindConfig   = "config"
	KindStop     = "stop"
	KindCommands = "commands"
)

// Message is an outbound control message.
type Message interface {
	Kind() string
}

// setup is the body shared by Start and Config.
type setup struct {
	Scenario *Scenario `json:"scenario"`
	Dataset  *Dataset  `json:"dataset"`
}

// Start begins a session.
type Start struct {
	Scenario *Scenario
	Dataset  *Dataset
}

func (Start) Kind() string { return KindStart }

func (m Start) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]setup{KindStart: {Scenario: m.Scenario, Dataset: m.Dataset}})
}

// BytesPresence reports which binary payloads the simulator will send.
func (m Start) BytesPresence() (frame, lidar bool) {
	return ActivateBytesPresence(m.Dataset)
}

// Config reconfigures a running session.
type Config struct {
	Scenario *Scenario
	Dataset  *Dataset
}

func (Config) Kind() string { return KindConfig }

func (m Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]setup{KindConfig: {Scenario: m.Scenario, Dataset: m.Dataset}})
}

// BytesPresence reports which binary payloads the simulator will send.
func (m Config) BytesPresence() (frame, lidar bool) {
	return ActivateBytesPresence(m.Dataset)
}

// Stop ends a session.
type Stop struct{}

func (Stop) Kind() string { return KindStop }

func (Stop) MarshalJSON() ([]byte, error) {
	return []byte(`{"stop":null}`), nil
}

// Commands drives the ego vehicle directly. Throttle and Brake are in
// [0, 1], Steering in [-1, 1].
type Commands struct {
	Throttle float64 `json:"throttle"`
	Brake    float64 `json:"brake"`
	Steering float64 `json:"steering"`
}

func (Commands) Kind() string { return KindCommands }

func (m Commands) MarshalJSON() ([]byte, error) {
	type body Commands
	return json.Marshal(map[string]body{KindCommands: body(m)})
}

// Encode serialises m to its JSON wire form.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}
