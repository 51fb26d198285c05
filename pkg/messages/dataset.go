package messages

import (
	"encoding/json"
	"fmt"

	"github.com/deepgtav/vpilot-collector/pkg/core"
)

// Dataset selects which fields the simulator reports every tick. Every
// field is optional; unset fields are sent as null.
type Dataset struct {
	Rate           core.Optional[int]         `json:"rate"` // Hz
	Frame          core.Optional[FrameSize]   `json:"frame"`
	Vehicles       core.Optional[bool]        `json:"vehicles"`
	Peds           core.Optional[bool]        `json:"peds"`
	TrafficSigns   core.Optional[bool]        `json:"trafficSigns"`
	Direction      core.Optional[[]float64]   `json:"direction"`
	Reward         core.Optional[[]float64]   `json:"reward"`
	Throttle       core.Optional[bool]        `json:"throttle"`
	Brake          core.Optional[bool]        `json:"brake"`
	Steering       core.Optional[bool]        `json:"steering"`
	Speed          core.Optional[bool]        `json:"speed"`
	Yaw            core.Optional[bool]        `json:"yaw"`
	YawRate        core.Optional[bool]        `json:"yawRate"`
	DrivingModeMsg core.Optional[bool]        `json:"drivingModeMsg"`
	Location       core.Optional[bool]        `json:"location"`
	Time           core.Optional[bool]        `json:"time"`
	RageMatrices   core.Optional[bool]        `json:"rageMatrices"`
	CameraInfo     core.Optional[bool]        `json:"cameraInfo"`
	EulerAngles    core.Optional[bool]        `json:"eulerAngles"`
	Lidar          core.Optional[LidarConfig] `json:"lidar"`
	IsCollide      core.Optional[bool]        `json:"isCollide"`
	Acceleration   core.Optional[bool]        `json:"acceleration"`
}

// FrameSize is the captured bitmap size, sent as [width, height].
type FrameSize struct {
	Width  int
	Height int
}

func (f FrameSize) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{f.Width, f.Height})
}

func (f *FrameSize) UnmarshalJSON(data []byte) error {
	var v []int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 2 {
		return fmt.Errorf("frame: want [width, height], got %d values", len(v))
	}
	f.Width, f.Height = v[0], v[1]
	return nil
}

// LidarMode is the lidar initialisation state requested from the simulator.
type LidarMode int

const (
	LidarNotInitYet LidarMode = iota
	LidarInit2D
	LidarInit3DCone
	LidarInit3DScaledCone
	LidarInit3DSpatialCircle
	LidarInit3DScaledSpatialCircle
)

// LidarConfig is sent as [mode, visualize, maxRange, hSamples, hLeftDeg,
// hRightDeg, vSamples, vUpDeg, vDownDeg]. 2D lidars omit the vertical part.
// For the scaled modes HSamples is the total sample count.
type LidarConfig struct {
	Mode      LidarMode
	Visualize bool
	MaxRange  float64
	HSamples  int
	HLeftDeg  float64
	HRightDeg float64
	VSamples  int
	VUpDeg    float64
	VDownDeg  float64
}

func (l LidarConfig) MarshalJSON() ([]byte, error) {
	v := []any{int(l.Mode), l.Visualize, l.MaxRange, l.HSamples, l.HLeftDeg, l.HRightDeg}
	if l.Mode != LidarInit2D {
		v = append(v, l.VSamples, l.VUpDeg, l.VDownDeg)
	}
	return json.Marshal(v)
}

func (l *LidarConfig) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 6 && len(raw) != 9 {
		return fmt.Errorf("lidar: want 6 or 9 values, got %d", len(raw))
	}
	var mode int
	out := LidarConfig{}
	targets := []any{&mode, &out.Visualize, &out.MaxRange, &out.HSamples, &out.HLeftDeg, &out.HRightDeg,
		&out.VSamples, &out.VUpDeg, &out.VDownDeg}
	for i, r := range raw {
		if err := json.Unmarshal(r, targets[i]); err != nil {
			return fmt.Errorf("lidar[%d]: %w", i, err)
		}
	}
	out.Mode = LidarMode(mode)
	*l = out
	return nil
}

// ActivateBytesPresence reports which binary payloads follow each control
// message for the given dataset: a frame when Frame is set and a point cloud
// when Lidar is set.
func ActivateBytesPresence(ds *Dataset) (frame, lidar bool) {
	if ds == nil {
		return false, false
	}
	return ds.Frame.IsSet(), ds.Lidar.IsSet()
}
