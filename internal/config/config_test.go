package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgtav/vpilot-collector/pkg/drivingmode"
	"github.com/deepgtav/vpilot-collector/pkg/messages"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"port": 9000,
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	require.NoError(t, Load(dir, nil))

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, 9000, viper.GetInt("port"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`), nil))

	assert.Equal(t, "localhost", viper.GetString("host"))
	assert.Equal(t, 8000, viper.GetInt("port"))
	assert.Equal(t, 9, viper.GetInt("compressionLevel"))
	assert.Equal(t, "gzip", viper.GetString("compression"))
	assert.Equal(t, true, viper.GetBool("divideByTrip"))
	assert.Equal(t, 500, viper.GetInt("statusEvery"))
	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./vpilotlogs", viper.GetString("logsDir"))
	assert.Equal(t, []string{"stream"}, viper.GetStringSlice("storage.backends"))
	assert.Equal(t, "vpilot", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, 480, viper.GetInt("frame.width"))
	assert.Equal(t, 320, viper.GetInt("frame.height"))
	assert.True(t, filepath.IsAbs(viper.GetString("datasetPath")))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(t.TempDir(), nil))
	assert.Equal(t, 8000, viper.GetInt("port"))
}

func TestLoad_InvalidFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load(writeConfig(t, `{not json`), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoad_FlagsOverride(t *testing.T) {
	t.Cleanup(viper.Reset)

	fs := Flags()
	require.NoError(t, fs.Parse([]string{"-l", "10.1.1.1", "--port", "8123", "-d", "/tmp/ds/"}))
	require.NoError(t, Load(writeConfig(t, `{"host": "ignored"}`), fs))

	sc := GetSessionConfig()
	assert.Equal(t, "10.1.1.1", sc.Host)
	assert.Equal(t, 8123, sc.Port)
	assert.Equal(t, "/tmp/ds/", sc.DatasetPath)
	assert.Equal(t, 500, sc.StatusEvery)
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"datasetPath": "/data/"}`), nil))

	cfg := GetStorageConfig()
	assert.Equal(t, []string{"stream"}, cfg.Backends)
	assert.Equal(t, "/data/", cfg.Stream.Dir)
	assert.Equal(t, "gzip", cfg.Stream.Compression)
	assert.Equal(t, 9, cfg.Stream.Level)
	assert.True(t, cfg.Stream.DivideByTrip)
	assert.True(t, cfg.Stream.Append)
	assert.Equal(t, "vpilot.db", cfg.SQLite.Path)
	assert.Equal(t, 100, cfg.SQLite.BatchSize)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"compression": "zstd",
		"compressionLevel": 3,
		"divideByTrip": false,
		"appendDataset": false,
		"storage": {
			"backends": ["stream", "sqlite", "websocket"],
			"sqlite": { "path": "/tmp/idx.db", "batchSize": 10 }
		},
		"websocket": { "url": "ws://localhost:5000/ingest", "secret": "s3" }
	}`), nil))

	sc := GetStorageConfig()
	assert.Equal(t, []string{"stream", "sqlite", "websocket"}, sc.Backends)
	assert.Equal(t, "zstd", sc.Stream.Compression)
	assert.Equal(t, 3, sc.Stream.Level)
	assert.False(t, sc.Stream.DivideByTrip)
	assert.False(t, sc.Stream.Append)
	assert.Equal(t, "/tmp/idx.db", sc.SQLite.Path)
	assert.Equal(t, 10, sc.SQLite.BatchSize)
	assert.Equal(t, "ws://localhost:5000/ingest", sc.WebSocket.URL)
	assert.Equal(t, "s3", sc.WebSocket.Secret)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`), nil))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "vpilot-collector", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
}

func TestGetInfluxConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"influx": { "enabled": true, "host": "influx", "bucket": "ticks", "backupDir": "/tmp/bk" }
	}`), nil))

	ic := GetInfluxConfig()
	assert.True(t, ic.Enabled)
	assert.Equal(t, "influx", ic.Host)
	assert.Equal(t, "8086", ic.Port)
	assert.Equal(t, "ticks", ic.Bucket)
	assert.Equal(t, "/tmp/bk", ic.BackupDir)
}

func TestDataset_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`), nil))

	ds := Dataset()
	assert.Equal(t, 10, ds.Rate.OrElse(0))
	assert.Equal(t, messages.FrameSize{Width: 480, Height: 320}, ds.Frame.OrElse(messages.FrameSize{}))

	lidar, ok := ds.Lidar.Get()
	require.True(t, ok)
	assert.Equal(t, messages.LidarInit3DScaledCone, lidar.Mode)
	assert.Equal(t, 1000, lidar.HSamples)
	assert.Equal(t, 115.0, lidar.VDownDeg)

	frame, hasLidar := messages.ActivateBytesPresence(ds)
	assert.True(t, frame)
	assert.True(t, hasLidar)
}

func TestDataset_DisabledPayloads(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"dataset": { "frame": { "enabled": false } },
		"lidar": { "enabled": false }
	}`), nil))

	frame, lidar := messages.ActivateBytesPresence(Dataset())
	assert.False(t, frame)
	assert.False(t, lidar)
}

func TestScenario_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`), nil))

	sc, err := Scenario()
	require.NoError(t, err)
	assert.Equal(t, "blista", sc.Vehicle.OrElse(""))
	assert.False(t, sc.Weather.IsSet())
	assert.False(t, sc.Location.IsSet())
	assert.Equal(t, messages.ClockTime{Hour: 12, Minute: 0}, sc.Time.OrElse(messages.ClockTime{}))

	route, ok := sc.Route.Get()
	require.True(t, ok)
	assert.Len(t, route, 2)

	ego, ok := sc.DrivingMode.Get()
	require.True(t, ok)
	assert.Equal(t, messages.StyleManual, ego.Style)
	assert.Equal(t, 25.0, ego.Speed)
}

func TestScenario_Preset(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"scenario": {
			"weather": "CLEAR",
			"location": [-1989.0, -468.25, 10.5625],
			"drivingMode": { "preset": "strict_1" }
		}
	}`), nil))

	sc, err := Scenario()
	require.NoError(t, err)
	assert.Equal(t, "CLEAR", sc.Weather.OrElse(""))
	assert.Equal(t, []float64{-1989.0, -468.25, 10.5625}, sc.Location.OrElse(nil))
	assert.Equal(t, drivingmode.Strict1.Int(), sc.DrivingMode.OrElse(messages.EgoDriving{}).Style)
}

func TestScenario_Invalid(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"scenario": {"drivingMode": {"preset": "reckless"}}}`), nil))
	_, err := Scenario()
	assert.Error(t, err)

	viper.Set("scenario.drivingMode.preset", "")
	viper.Set("scenario.route", []float64{1, 2})
	_, err = Scenario()
	assert.Error(t, err)
}
