// pkg/core/telemetry.go
package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Telemetry is the typed view of the well-known control fields of a Record.
// A field is set only when the simulator sent it, which depends on the
// dataset configuration.
type Telemetry struct {
	Throttle     Optional[float64] `json:"throttle"`
	Brake        Optional[float64] `json:"brake"`
	Steering     Optional[float64] `json:"steering"`
	Speed        Optional[float64] `json:"speed"`
	Acceleration Optional[Scalars] `json:"acceleration"`
	Yaw          Optional[float64] `json:"yaw"`
	YawRate      Optional[float64] `json:"yawRate"`
	Location     Optional[Scalars] `json:"location"`
	DrivingMode  Optional[Scalars] `json:"drivingMode"`
	IsCollide    Optional[bool]    `json:"isCollide"`
	Time         Optional[Scalars] `json:"time"`
}

// Position returns Location as a Position3D. Missing axes are zero.
func (t Telemetry) Position() (Position3D, bool) {
	loc, ok := t.Location.Get()
	if !ok {
		return Position3D{}, false
	}
	var p Position3D
	if len(loc) > 0 {
		p.X = loc[0]
	}
	if len(loc) > 1 {
		p.Y = loc[1]
	}
	if len(loc) > 2 {
		p.Z = loc[2]
	}
	return p, true
}

// DrivingModeIndex returns the first element of the driving-mode indicator.
// The simulator reports 0 when the ego vehicle restarts its route.
func (t Telemetry) DrivingModeIndex() (int, bool) {
	dm, ok := t.DrivingMode.Get()
	if !ok || len(dm) == 0 {
		return 0, false
	}
	return int(dm[0]), true
}

// Scalars is a list of numbers that also accepts a bare JSON number.
type Scalars []float64

func (s *Scalars) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty scalars value")
	}
	if data[0] == '[' {
		var list []float64
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*s = list
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Scalars{v}
	return nil
}
