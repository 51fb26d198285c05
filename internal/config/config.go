package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/deepgtav/vpilot-collector/pkg/core"
	"github.com/deepgtav/vpilot-collector/pkg/drivingmode"
	"github.com/deepgtav/vpilot-collector/pkg/messages"
)

// FileName is the optional configuration file looked up in the config dir.
const FileName = "vpilot.cfg.json"

// StreamConfig holds compressed record stream settings
type StreamConfig struct {
	Dir          string `json:"dir" mapstructure:"dir"`
	Compression  string `json:"compression" mapstructure:"compression"`
	Level        int    `json:"level" mapstructure:"level"`
	DivideByTrip bool   `json:"divideByTrip" mapstructure:"divideByTrip"`
	// Append keeps data from earlier runs in the same directory: the
	// dataset file is extended and trip files continue the numbering.
	Append bool `json:"append" mapstructure:"append"`
}

// SQLiteConfig holds SQLite telemetry index settings
type SQLiteConfig struct {
	Path      string `json:"path" mapstructure:"path"`
	BatchSize int    `json:"batchSize" mapstructure:"batchSize"`
	Memory    bool   `json:"memory" mapstructure:"memory"`
}

// WebSocketConfig holds live feed settings
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the storage backends
type StorageConfig struct {
	Backends  []string        `json:"backends" mapstructure:"backends"`
	Stream    StreamConfig    `json:"stream" mapstructure:"stream"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	WebSocket WebSocketConfig `json:"websocket" mapstructure:"websocket"`
	Postgres  DBConfig        `json:"-" mapstructure:"-"`
}

// DBConfig holds Postgres connection settings
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// InfluxConfig holds InfluxDB settings
type InfluxConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Host      string `json:"host" mapstructure:"host"`
	Port      string `json:"port" mapstructure:"port"`
	Protocol  string `json:"protocol" mapstructure:"protocol"`
	Token     string `json:"token" mapstructure:"token"`
	Org       string `json:"org" mapstructure:"org"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	BackupDir string `json:"backupDir" mapstructure:"backupDir"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// SessionConfig holds the simulator connection and loop settings
type SessionConfig struct {
	Host        string
	Port        int
	DatasetPath string
	StatusEvery int
}

// Flags returns the command line flags understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("vpilot", pflag.ContinueOnError)
	fs.StringP("host", "l", "localhost", "The IP where DeepGTAV is running")
	fs.IntP("port", "p", 8000, "The port where DeepGTAV is running")
	fs.StringP("dataset_path", "d", defaultDatasetPath(), "Place to store the dataset")
	fs.String("config", "", "Directory containing "+FileName)
	fs.String("logLevel", "info", "Log level (debug, info, warn, error)")
	return fs
}

func defaultDatasetPath() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return filepath.Join(wd, "data") + string(filepath.Separator)
}

func setDefaults() {
	viper.SetDefault("host", "localhost")
	viper.SetDefault("port", 8000)
	viper.SetDefault("datasetPath", defaultDatasetPath())
	viper.SetDefault("compression", "gzip")
	viper.SetDefault("compressionLevel", 9)
	viper.SetDefault("divideByTrip", true)
	viper.SetDefault("appendDataset", true)
	viper.SetDefault("statusEvery", 500)
	viper.SetDefault("decodeErrors", "abort")

	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./vpilotlogs")

	viper.SetDefault("storage.backends", []string{"stream"})
	viper.SetDefault("storage.sqlite.path", "vpilot.db")
	viper.SetDefault("storage.sqlite.batchSize", 100)
	viper.SetDefault("storage.sqlite.memory", false)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "vpilot")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "vpilot")
	viper.SetDefault("influx.bucket", "telemetry")
	viper.SetDefault("influx.backupDir", "")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("websocket.url", "")
	viper.SetDefault("websocket.secret", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "vpilot-collector")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("dataset.rate", 10)
	viper.SetDefault("dataset.frame.enabled", true)
	viper.SetDefault("frame.width", 480)
	viper.SetDefault("frame.height", 320)
	viper.SetDefault("lidar.enabled", true)
	viper.SetDefault("lidar.mode", int(messages.LidarInit3DScaledCone))
	viper.SetDefault("lidar.visualize", true)
	viper.SetDefault("lidar.maxRange", 100.0)
	viper.SetDefault("lidar.hSamples", 1000)
	viper.SetDefault("lidar.hLeftDeg", 60.0)
	viper.SetDefault("lidar.hRightDeg", 300.0)
	viper.SetDefault("lidar.vSamples", 20)
	viper.SetDefault("lidar.vUpDeg", 85.0)
	viper.SetDefault("lidar.vDownDeg", 115.0)

	viper.SetDefault("scenario.vehicle", "blista")
	viper.SetDefault("scenario.weather", "")
	viper.SetDefault("scenario.time", []int{12, 0})
	viper.SetDefault("scenario.location", []float64{})
	viper.SetDefault("scenario.drivingMode.preset", "")
	viper.SetDefault("scenario.drivingMode.style", messages.StyleManual)
	viper.SetDefault("scenario.drivingMode.routeMode", int(messages.ToCoordOneWayTripCircle))
	viper.SetDefault("scenario.drivingMode.speed", 25.0)
	viper.SetDefault("scenario.drivingMode.aggressiveness", 1.0)
	viper.SetDefault("scenario.drivingMode.ability", 1.0)
	viper.SetDefault("scenario.route", []float64{
		-1989.000000, -468.250000, 10.562500,
		689.279053, 26.910444, 83.943283,
	})
}

// Load sets default values, binds the given flags and reads the optional
// configuration file from configDir. A missing file is not an error.
func Load(configDir string, flags *pflag.FlagSet) error {
	setDefaults()

	if flags != nil {
		for key, flag := range map[string]string{
			"host":        "host",
			"port":        "port",
			"datasetPath": "dataset_path",
			"logLevel":    "logLevel",
		} {
			if f := flags.Lookup(flag); f != nil {
				if err := viper.BindPFlag(key, f); err != nil {
					return fmt.Errorf("error binding flag %s: %w", flag, err)
				}
			}
		}
	}

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetSessionConfig returns the simulator connection settings.
func GetSessionConfig() SessionConfig {
	return SessionConfig{
		Host:        viper.GetString("host"),
		Port:        viper.GetInt("port"),
		DatasetPath: viper.GetString("datasetPath"),
		StatusEvery: viper.GetInt("statusEvery"),
	}
}

// GetStorageConfig returns the storage backend settings. Stream settings
// come from the top-level compression keys and the dataset path.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Backends: viper.GetStringSlice("storage.backends"),
		Stream: StreamConfig{
			Dir:          viper.GetString("datasetPath"),
			Compression:  viper.GetString("compression"),
			Level:        viper.GetInt("compressionLevel"),
			DivideByTrip: viper.GetBool("divideByTrip"),
			Append:       viper.GetBool("appendDataset"),
		},
		SQLite: SQLiteConfig{
			Path:      viper.GetString("storage.sqlite.path"),
			BatchSize: viper.GetInt("storage.sqlite.batchSize"),
			Memory:    viper.GetBool("storage.sqlite.memory"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("websocket.url"),
			Secret: viper.GetString("websocket.secret"),
		},
		Postgres: GetDBConfig(),
	}
}

// GetDBConfig returns the Postgres connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:   viper.GetBool("influx.enabled"),
		Host:      viper.GetString("influx.host"),
		Port:      viper.GetString("influx.port"),
		Protocol:  viper.GetString("influx.protocol"),
		Token:     viper.GetString("influx.token"),
		Org:       viper.GetString("influx.org"),
		Bucket:    viper.GetString("influx.bucket"),
		BackupDir: viper.GetString("influx.backupDir"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// Dataset builds the dataset request from the dataset.*, frame.* and
// lidar.* keys.
func Dataset() *messages.Dataset {
	ds := &messages.Dataset{
		Rate:           core.Some(viper.GetInt("dataset.rate")),
		Throttle:       core.Some(true),
		Brake:          core.Some(true),
		Steering:       core.Some(true),
		Speed:          core.Some(true),
		Acceleration:   core.Some(true),
		Yaw:            core.Some(true),
		YawRate:        core.Some(true),
		IsCollide:      core.Some(true),
		Location:       core.Some(true),
		DrivingModeMsg: core.Some(true),
		Vehicles:       core.Some(true),
		Peds:           core.Some(true),
	}
	if viper.GetBool("dataset.frame.enabled") {
		ds.Frame = core.Some(messages.FrameSize{
			Width:  viper.GetInt("frame.width"),
			Height: viper.GetInt("frame.height"),
		})
	}
	if viper.GetBool("lidar.enabled") {
		ds.Lidar = core.Some(messages.LidarConfig{
			Mode:      messages.LidarMode(viper.GetInt("lidar.mode")),
			Visualize: viper.GetBool("lidar.visualize"),
			MaxRange:  viper.GetFloat64("lidar.maxRange"),
			HSamples:  viper.GetInt("lidar.hSamples"),
			HLeftDeg:  viper.GetFloat64("lidar.hLeftDeg"),
			HRightDeg: viper.GetFloat64("lidar.hRightDeg"),
			VSamples:  viper.GetInt("lidar.vSamples"),
			VUpDeg:    viper.GetFloat64("lidar.vUpDeg"),
			VDownDeg:  viper.GetFloat64("lidar.vDownDeg"),
		})
	}
	return ds
}

// Scenario builds the scenario request from the scenario.* keys. Empty
// values are left unset so the simulator uses its defaults.
func Scenario() (*messages.Scenario, error) {
	sc := &messages.Scenario{}
	if v := viper.GetString("scenario.vehicle"); v != "" {
		sc.Vehicle = core.Some(v)
	}
	if w := viper.GetString("scenario.weather"); w != "" {
		sc.Weather = core.Some(w)
	}
	if t := viper.GetIntSlice("scenario.time"); len(t) > 0 {
		if len(t) != 2 {
			return nil, fmt.Errorf("scenario.time: want [hour, minute], got %d values", len(t))
		}
		sc.Time = core.Some(messages.ClockTime{Hour: t[0], Minute: t[1]})
	}
	if loc := getFloatSlice("scenario.location"); len(loc) > 0 {
		if len(loc) != 3 {
			return nil, fmt.Errorf("scenario.location: want [x, y, z], got %d values", len(loc))
		}
		sc.Location = core.Some(loc)
	}
	if flat := getFloatSlice("scenario.route"); len(flat) > 0 {
		route, err := messages.RouteFromFlat(flat)
		if err != nil {
			return nil, fmt.Errorf("scenario.route: %w", err)
		}
		sc.Route = core.Some(route)
	}

	ego := messages.EgoDriving{
		Style:          viper.GetInt("scenario.drivingMode.style"),
		RouteMode:      messages.RouteMode(viper.GetInt("scenario.drivingMode.routeMode")),
		Speed:          viper.GetFloat64("scenario.drivingMode.speed"),
		Aggressiveness: viper.GetFloat64("scenario.drivingMode.aggressiveness"),
		Ability:        viper.GetFloat64("scenario.drivingMode.ability"),
	}
	if name := viper.GetString("scenario.drivingMode.preset"); name != "" {
		b, ok := drivingmode.Preset(name)
		if !ok {
			return nil, fmt.Errorf("scenario.drivingMode.preset: unknown preset %q", name)
		}
		ego.Style = b.Int()
	}
	sc.DrivingMode = core.Some(ego)
	return sc, nil
}

// getFloatSlice reads a numeric list. Viper has no float slice getter, and
// JSON files decode lists as []any.
func getFloatSlice(key string) []float64 {
	switch v := viper.Get(key).(type) {
	case []float64:
		return v
	case []any:
		out := make([]float64, 0, len(v))
		for _, e := range v {
			switch n := e.(type) {
			case float64:
				out = append(out, n)
			case int:
				out = append(out, float64(n))
			}
		}
		return out
	}
	return nil
}
