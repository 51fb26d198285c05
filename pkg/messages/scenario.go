package messages

import (
	"encoding/json"
	"fmt"

	"github.com/deepgtav/vpilot-collector/pkg/core"
	"github.com/deepgtav/vpilot-collector/pkg/drivingmode"
)

// Scenario configures the world and the ego vehicle. Every field is
// optional; unset fields are sent as null and the simulator keeps its default.
type Scenario struct {
	Location            core.Optional[[]float64]       `json:"location"`
	Time                core.Optional[ClockTime]       `json:"time"`
	Weather             core.Optional[string]          `json:"weather"`
	Vehicle             core.Optional[string]          `json:"vehicle"`
	DrivingMode         core.Optional[EgoDriving]      `json:"drivingMode"`
	Route               core.Optional[Route]           `json:"route"`
	SurroundDrivingMode core.Optional[SurroundDriving] `json:"surroundDrivingMode"`
}

// ClockTime is an in-game time of day, sent as [hour, minute].
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{c.Hour, c.Minute})
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var v []int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 2 {
		return fmt.Errorf("time: want [hour, minute], got %d values", len(v))
	}
	c.Hour, c.Minute = v[0], v[1]
	return nil
}

// Ego driving style selectors. Values >= 0 are a drivingmode.Behavior.
const (
	StyleManual     = -2
	StyleAutoPreset = -1
)

// RouteMode selects how the ego vehicle follows its route.
type RouteMode int

const (
	Wandering RouteMode = iota
	ToCoordOneWayTrip
	ToCoordCircleTrip
	ToCoordOneWayTripCircle
)

// EgoDriving is the ego vehicle's driving mode, sent as
// [style, routeMode, speed, aggressiveness, ability].
type EgoDriving struct {
	Style          int
	RouteMode      RouteMode
	Speed          float64
	Aggressiveness float64
	Ability        float64
}

// ManualDriving hands the ego vehicle to the player.
func ManualDriving() EgoDriving {
	return EgoDriving{Style: StyleManual}
}

// AutoPresetDriving lets the simulator pick its preinstalled styles.
func AutoPresetDriving(mode RouteMode) EgoDriving {
	return EgoDriving{Style: StyleAutoPreset, RouteMode: mode}
}

// CustomDriving drives with an explicit behaviour set.
func CustomDriving(b drivingmode.Behavior, mode RouteMode, speed, aggressiveness, ability float64) EgoDriving {
	return EgoDriving{
		Style:          b.Int(),
		RouteMode:      mode,
		Speed:          speed,
		Aggressiveness: aggressiveness,
		Ability:        ability,
	}
}

func (d EgoDriving) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{d.Style, int(d.RouteMode), d.Speed, d.Aggressiveness, d.Ability})
}

func (d *EgoDriving) UnmarshalJSON(data []byte) error {
	v, err := decodeNumbers(data, 1, 5, "drivingMode")
	if err != nil {
		return err
	}
	*d = EgoDriving{Style: int(v[0])}
	if len(v) > 1 {
		d.RouteMode = RouteMode(v[1])
	}
	if len(v) > 2 {
		d.Speed = v[2]
	}
	if len(v) > 3 {
		d.Aggressiveness = v[3]
	}
	if len(v) > 4 {
		d.Ability = v[4]
	}
	return nil
}

// SurroundDriving configures surrounding traffic, sent as
// [mode, param1, param2, param3]. Mode -2 keeps the default AI, -1 selects
// the preinstalled style Param1, and >= 0 is a drivingmode.Behavior with
// Param1..3 being speed, aggressiveness and ability.
type SurroundDriving struct {
	Mode   int
	Param1 float64
	Param2 float64
	Param3 float64
}

// DefaultTraffic keeps the simulator's own traffic AI.
func DefaultTraffic() SurroundDriving {
	return SurroundDriving{Mode: StyleManual}
}

// PresetTraffic uses the preinstalled style at index.
func PresetTraffic(index int) SurroundDriving {
	return SurroundDriving{Mode: StyleAutoPreset, Param1: float64(index)}
}

// CustomTraffic drives surrounding vehicles with an explicit behaviour set.
func CustomTraffic(b drivingmode.Behavior, speed, aggressiveness, ability float64) SurroundDriving {
	return SurroundDriving{Mode: b.Int(), Param1: speed, Param2: aggressiveness, Param3: ability}
}

func (s SurroundDriving) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{s.Mode, s.Param1, s.Param2, s.Param3})
}

func (s *SurroundDriving) UnmarshalJSON(data []byte) error {
	v, err := decodeNumbers(data, 1, 4, "surroundDrivingMode")
	if err != nil {
		return err
	}
	*s = SurroundDriving{Mode: int(v[0])}
	if len(v) > 1 {
		s.Param1 = v[1]
	}
	if len(v) > 2 {
		s.Param2 = v[2]
	}
	if len(v) > 3 {
		s.Param3 = v[3]
	}
	return nil
}

// Route is an ordered list of waypoints: start, optional middle points and
// destination. It is sent flattened as [x0, y0, z0, x1, y1, z1, ...].
type Route []core.Position3D

func (r Route) MarshalJSON() ([]byte, error) {
	flat := make([]float64, 0, len(r)*3)
	for _, p := range r {
		flat = append(flat, p.X, p.Y, p.Z)
	}
	return json.Marshal(flat)
}

func (r *Route) UnmarshalJSON(data []byte) error {
	var flat []float64
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	route, err := RouteFromFlat(flat)
	if err != nil {
		return err
	}
	*r = route
	return nil
}

// RouteFromFlat builds a Route from a flat list of waypoint triples.
func RouteFromFlat(flat []float64) (Route, error) {
	if len(flat)%3 != 0 {
		return nil, fmt.Errorf("route: %d values is not a whole number of waypoints", len(flat))
	}
	route := make(Route, 0, len(flat)/3)
	for i := 0; i < len(flat); i += 3 {
		route = append(route, core.Position3D{X: flat[i], Y: flat[i+1], Z: flat[i+2]})
	}
	return route, nil
}

func decodeNumbers(data []byte, minLen, maxLen int, field string) ([]float64, error) {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	if len(v) < minLen || len(v) > maxLen {
		return nil, fmt.Errorf("%s: want %d..%d values, got %d", field, minLen, maxLen, len(v))
	}
	return v, nil
}
