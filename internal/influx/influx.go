package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"

	"github.com/deepgtav/vpilot-collector/internal/config"
	"github.com/deepgtav/vpilot-collector/internal/record"
	"github.com/deepgtav/vpilot-collector/pkg/core"
)

// Measurement is the name of the per-tick point.
const Measurement = "tick"

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       *slog.Logger
	BackupPath   string

	cfg        config.InfluxConfig
	backupFile *os.File
	mu         sync.Mutex
}

// NewManager creates a new InfluxDB manager. Points are written to a
// gzipped line-protocol file under cfg.BackupDir when the server is
// unreachable.
func NewManager(log *slog.Logger, cfg config.InfluxConfig) *Manager {
	if log == nil {
		log = slog.Default()
	}
	dir := cfg.BackupDir
	if dir == "" {
		dir = "."
	}
	return &Manager{
		Logger:     log,
		BackupPath: filepath.Join(dir, fmt.Sprintf("influx_backup.%s.lp.gz", time.Now().Format("20060102_150405"))),
		cfg:        cfg,
	}
}

// Connect establishes a connection to InfluxDB.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return errors.New("influx.enabled is false")
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		m.Logger.Warn("InfluxDB unreachable, writing to backup file", "backupPath", m.BackupPath, "error", err)
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.createWriter()
	m.IsValid = true
	m.Logger.Info("InfluxDB client initialized", "bucket", m.cfg.Bucket)
	return nil
}

func (m *Manager) openBackup() error {
	if m.BackupWriter != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.BackupPath), 0755); err != nil {
		return fmt.Errorf("error creating backup directory: %w", err)
	}
	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgName := m.cfg.Org

	// ensure org exists
	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info("Organization not found, creating", "org", orgName)
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			return fmt.Errorf("error creating organization %s: %w", orgName, err)
		}
	}

	// ensure bucket exists with 90 day retention
	if _, err := m.Client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.Logger.Info("Bucket not found, creating", "bucket", m.cfg.Bucket)
		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 90, // 90 days
		})
		if err != nil {
			return fmt.Errorf("error creating bucket %s: %w", m.cfg.Bucket, err)
		}
	}
	return nil
}

func (m *Manager) createWriter() {
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	errorsCh := m.Writer.Errors()
	go func() {
		for writeErr := range errorsCh {
			m.Logger.Error("Error sending data to InfluxDB", "bucket", m.cfg.Bucket, "error", writeErr)
		}
	}()
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}
	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// WriteTick writes the telemetry of rec as one point.
func (m *Manager) WriteTick(sessionID string, rec *core.Record) error {
	point, err := TickPoint(sessionID, rec)
	if err != nil {
		return err
	}
	return m.WritePoint(point)
}

// Close flushes pending points and releases the client and backup file.
func (m *Manager) Close() error {
	var errs []error
	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	return errors.Join(errs...)
}

// TickPoint builds the point for one tick. Telemetry fields the simulator
// did not send are left out.
func TickPoint(sessionID string, rec *core.Record) (*influxdb2_write.Point, error) {
	tel, err := record.Telemetry(rec)
	if err != nil {
		return nil, fmt.Errorf("tick %d: %w", rec.Tick, err)
	}

	ts := rec.ReceivedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	point := influxdb2_write.NewPointWithMeasurement(Measurement).
		AddTag("session", sessionID).
		AddTag("trip", strconv.Itoa(rec.Trip)).
		AddField("tick", int64(rec.Tick)).
		AddField("frameBytes", len(rec.Frame)).
		AddField("lidarBytes", len(rec.Lidar)).
		SetTime(ts)

	addFloat := func(name string, v core.Optional[float64]) {
		if f, ok := v.Get(); ok {
			point.AddField(name, f)
		}
	}
	addFloat("throttle", tel.Throttle)
	addFloat("brake", tel.Brake)
	addFloat("steering", tel.Steering)
	addFloat("speed", tel.Speed)
	addFloat("yaw", tel.Yaw)
	addFloat("yawRate", tel.YawRate)

	if pos, ok := tel.Position(); ok {
		point.AddField("x", pos.X).AddField("y", pos.Y).AddField("z", pos.Z)
	}
	if mode, ok := tel.DrivingModeIndex(); ok {
		point.AddField("drivingMode", mode)
	}
	if collide, ok := tel.IsCollide.Get(); ok {
		point.AddField("isCollide", collide)
	}
	return point, nil
}
