package messages

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgtav/vpilot-collector/pkg/core"
	"github.com/deepgtav/vpilot-collector/pkg/drivingmode"
)

func collectionDataset() *Dataset {
	return &Dataset{
		Rate:     core.Some(10),
		Frame:    core.Some(FrameSize{Width: 480, Height: 320}),
		Throttle: core.Some(true),
		Brake:    core.Some(true),
		Steering: core.Some(true),
		Lidar: core.Some(LidarConfig{
			Mode: LidarInit3DScaledCone, Visualize: true, MaxRange: 100,
			HSamples: 1000, HLeftDeg: 60, HRightDeg: 300,
			VSamples: 20, VUpDeg: 85, VDownDeg: 115,
		}),
	}
}

func TestStart_WireShape(t *testing.T) {
	scenario := &Scenario{
		Vehicle:     core.Some("blista"),
		Time:        core.Some(ClockTime{Hour: 12}),
		DrivingMode: core.Some(EgoDriving{Style: StyleManual, RouteMode: ToCoordOneWayTripCircle, Speed: 25, Aggressiveness: 1, Ability: 1}),
		Route: core.Some(Route{
			{X: -1989, Y: -468.25, Z: 10.5625},
			{X: 689.279053, Y: 26.910444, Z: 83.943283},
		}),
	}

	data, err := Encode(Start{Scenario: scenario, Dataset: collectionDataset()})
	require.NoError(t, err)

	var got map[string]map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	sc := got["start"]["scenario"]
	assert.Equal(t, "blista", sc["vehicle"])
	assert.Equal(t, []any{12.0, 0.0}, sc["time"])
	assert.Equal(t, []any{-2.0, 3.0, 25.0, 1.0, 1.0}, sc["drivingMode"])
	assert.Equal(t, []any{-1989.0, -468.25, 10.5625, 689.279053, 26.910444, 83.943283}, sc["route"])
	assert.Contains(t, sc, "weather")
	assert.Nil(t, sc["weather"])

	ds := got["start"]["dataset"]
	assert.Equal(t, 10.0, ds["rate"])
	assert.Equal(t, []any{480.0, 320.0}, ds["frame"])
	assert.Equal(t, []any{3.0, true, 100.0, 1000.0, 60.0, 300.0, 20.0, 85.0, 115.0}, ds["lidar"])
	assert.Nil(t, ds["peds"])
}

func TestStart_NilSections(t *testing.T) {
	data, err := Encode(Start{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":{"scenario":null,"dataset":null}}`, string(data))
}

func TestConfig_WireShape(t *testing.T) {
	data, err := Encode(Config{Scenario: &Scenario{Weather: core.Some("RAIN")}})
	require.NoError(t, err)

	var got map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	require.Contains(t, got, "config")
	assert.Nil(t, got["config"]["dataset"])
}

func TestStopAndCommands(t *testing.T) {
	data, err := Encode(Stop{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"stop":null}`, string(data))

	data, err = Encode(Commands{Throttle: 0.5, Brake: 0, Steering: -0.25})
	require.NoError(t, err)
	assert.JSONEq(t, `{"commands":{"throttle":0.5,"brake":0,"steering":-0.25}}`, string(data))
}

func TestActivateBytesPresence(t *testing.T) {
	frame, lidar := ActivateBytesPresence(nil)
	assert.False(t, frame)
	assert.False(t, lidar)

	frame, lidar = ActivateBytesPresence(collectionDataset())
	assert.True(t, frame)
	assert.True(t, lidar)

	frame, lidar = Start{Dataset: &Dataset{Frame: core.Some(FrameSize{Width: 1, Height: 1})}}.BytesPresence()
	assert.True(t, frame)
	assert.False(t, lidar)
}

func TestCustomDriving_UsesBehaviorBits(t *testing.T) {
	d := CustomDriving(drivingmode.Strict1, ToCoordOneWayTrip, 30, 0.5, 1)
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `[427, 1, 30, 0.5, 1]`, string(data))

	var back EgoDriving
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, d, back)
}

func TestSurroundDriving_ShortForms(t *testing.T) {
	var s SurroundDriving
	require.NoError(t, json.Unmarshal([]byte(`[-1, 1]`), &s))
	assert.Equal(t, PresetTraffic(1), s)

	require.NoError(t, json.Unmarshal([]byte(`[-2]`), &s))
	assert.Equal(t, DefaultTraffic(), s)

	assert.Error(t, json.Unmarshal([]byte(`[]`), &s))
}

func TestRoute_RejectsPartialWaypoint(t *testing.T) {
	var r Route
	err := json.Unmarshal([]byte(`[1, 2, 3, 4]`), &r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whole number of waypoints")
}

func TestDataset_RoundTrip(t *testing.T) {
	in := collectionDataset()
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Dataset
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, *in, out)
}

func TestLidarConfig_2DOmitsVertical(t *testing.T) {
	l := LidarConfig{Mode: LidarInit2D, MaxRange: 100, HSamples: 1080, HLeftDeg: 90, HRightDeg: 270}
	data, err := json.Marshal(l)
	require.NoError(t, err)
	assert.JSONEq(t, `[1, false, 100, 1080, 90, 270]`, string(data))

	var back LidarConfig
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, l, back)
}
