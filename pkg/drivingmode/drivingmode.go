// Package drivingmode names the bits of the simulator's 32-bit driving-style
// field and the composite presets built from them.
//
// Bit values are part of the wire format and must not change. Bits whose
// meaning is unknown are exposed as ReservedN so they can be passed through,
// but no preset sets them.
package drivingmode

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"
)

// Behavior is a set of driving-style bits.
type Behavior uint32

const (
	FollowTraffic             Behavior = 0x1
	YieldToCrossingPeds       Behavior = 0x2
	DriveAroundVehicles       Behavior = 0x4
	DriveAroundEmptyVehicles  Behavior = 0x8
	DriveAroundPeds           Behavior = 0x10
	DriveAroundObjects        Behavior = 0x20
	Reserved1                 Behavior = 0x40
	StopAtTrafficLights       Behavior = 0x80
	UseBlinkers               Behavior = 0x100
	AllowGoingWrongWay        Behavior = 0x200
	GoInReverseGear           Behavior = 0x400
	Reserved2                 Behavior = 0x800
	Reserved3                 Behavior = 0x1000
	Reserved4                 Behavior = 0x2000
	Reserved5                 Behavior = 0x4000
	Reserved6                 Behavior = 0x8000
	Reserved7                 Behavior = 0x10000
	Reserved8                 Behavior = 0x20000
	TakeShortestPath          Behavior = 0x40000 // lifts most pathing limits, dirt roads included
	AllowLaneChangeOvertake   Behavior = 0x80000
	Reserved9                 Behavior = 0x100000
	Reserved10                Behavior = 0x200000
	IgnoreRoads               Behavior = 0x400000 // local pathing, only within ~200m of the player
	Reserved11                Behavior = 0x800000
	IgnoreAllPathing          Behavior = 0x1000000 // drives straight at the destination
	Reserved12                Behavior = 0x2000000
	Reserved13                Behavior = 0x4000000
	Reserved14                Behavior = 0x8000000
	Reserved15                Behavior = 0x10000000
	AvoidHighwaysWhenPossible Behavior = 0x20000000
	Reserved16                Behavior = 0x40000000
	Reserved17                Behavior = 0x80000000
)

// Reserved is the union of all bits with unknown meaning.
const Reserved = Reserved1 | Reserved2 | Reserved3 | Reserved4 | Reserved5 |
	Reserved6 | Reserved7 | Reserved8 | Reserved9 | Reserved10 | Reserved11 |
	Reserved12 | Reserved13 | Reserved14 | Reserved15 | Reserved16 | Reserved17

// Building blocks for the presets.
const (
	Default     = DriveAroundEmptyVehicles | DriveAroundObjects | UseBlinkers | StopAtTrafficLights
	DualStop    = FollowTraffic | YieldToCrossingPeds
	DualAvoid   = DriveAroundVehicles | DriveAroundPeds
	LaneSelect1 = Behavior(0)
	LaneSelect2 = AllowLaneChangeOvertake
	LaneSelect3 = AllowLaneChangeOvertake | TakeShortestPath | AllowGoingWrongWay
)

// Presets used for ego and surrounding traffic.
const (
	Strict1  = Default | DualStop | LaneSelect1
	Strict2  = Default | DualStop | LaneSelect2
	Loose1   = Default | DualStop | DualAvoid | LaneSelect2
	Loose2   = Default | DualStop | DualAvoid | LaneSelect3
	Loose3   = Default | DualAvoid | LaneSelect3
	AvoidPed = Default | DualAvoid | LaneSelect3
)

var names = map[Behavior]string{
	FollowTraffic:             "FollowTraffic",
	YieldToCrossingPeds:       "YieldToCrossingPeds",
	DriveAroundVehicles:       "DriveAroundVehicles",
	DriveAroundEmptyVehicles:  "DriveAroundEmptyVehicles",
	DriveAroundPeds:           "DriveAroundPeds",
	DriveAroundObjects:        "DriveAroundObjects",
	StopAtTrafficLights:       "StopAtTrafficLights",
	UseBlinkers:               "UseBlinkers",
	AllowGoingWrongWay:        "AllowGoingWrongWay",
	GoInReverseGear:           "GoInReverseGear",
	TakeShortestPath:          "TakeShortestPath",
	AllowLaneChangeOvertake:   "AllowLaneChangeOvertake",
	IgnoreRoads:               "IgnoreRoads",
	IgnoreAllPathing:          "IgnoreAllPathing",
	AvoidHighwaysWhenPossible: "AvoidHighwaysWhenPossible",
}

var presets = map[string]Behavior{
	"default":  Default,
	"strict1":  Strict1,
	"strict2":  Strict2,
	"loose1":   Loose1,
	"loose2":   Loose2,
	"loose3":   Loose3,
	"avoidped": AvoidPed,
}

// Preset looks up a named preset. Names are case-insensitive and ignore
// underscores, so "STRICT_1" and "strict1" are the same preset.
func Preset(name string) (Behavior, bool) {
	key := strings.ToLower(strings.ReplaceAll(name, "_", ""))
	b, ok := presets[key]
	return b, ok
}

// Presets returns the preset names in sorted order.
func Presets() []string {
	out := make([]string, 0, len(presets))
	for name := range presets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Has reports whether every bit of flag is set in b.
func (b Behavior) Has(flag Behavior) bool {
	return b&flag == flag
}

// With returns b with flag set.
func (b Behavior) With(flag Behavior) Behavior {
	return b | flag
}

// Without returns b with flag cleared.
func (b Behavior) Without(flag Behavior) Behavior {
	return b &^ flag
}

// Int returns the value as the signed integer the simulator expects.
func (b Behavior) Int() int {
	return int(int32(b))
}

// String lists the named bits of b joined by "|". Reserved bits are printed
// as hex.
func (b Behavior) String() string {
	if b == 0 {
		return "0"
	}
	var parts []string
	rest := b
	for rest != 0 {
		bit := Behavior(1) << bits.TrailingZeros32(uint32(rest))
		rest &^= bit
		if name, ok := names[bit]; ok {
			parts = append(parts, name)
		} else {
			parts = append(parts, fmt.Sprintf("%#x", uint32(bit)))
		}
	}
	return strings.Join(parts, "|")
}
