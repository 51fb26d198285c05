// Package convert converts core types into GORM models
package convert

import (
	"database/sql"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/deepgtav/vpilot-collector/internal/model"
	"github.com/deepgtav/vpilot-collector/internal/record"
	"github.com/deepgtav/vpilot-collector/pkg/core"
)

// position3DToPoint converts a core.Position3D to an XYZ geom.Point
func position3DToPoint(p core.Position3D) (geom.Point, error) {
	coords := geom.Coordinates{XY: geom.XY{X: p.X, Y: p.Y}, Z: p.Z, Type: geom.DimXYZ}
	pt, err := geom.NewPoint(coords)
	if err != nil {
		return geom.Point{}, fmt.Errorf("invalid position: %w", err)
	}
	return pt, nil
}

// routeToLineString converts waypoints to an XYZ geom.LineString
func routeToLineString(route []core.Position3D) (geom.LineString, error) {
	if len(route) == 0 {
		return geom.LineString{}, nil
	}
	coords := make([]float64, 0, len(route)*3)
	for _, p := range route {
		coords = append(coords, p.X, p.Y, p.Z)
	}
	seq := geom.NewSequence(coords, geom.DimXYZ)
	ls, err := geom.NewLineString(seq)
	if err != nil {
		return geom.LineString{}, fmt.Errorf("invalid route: %w", err)
	}
	return ls, nil
}

func nullFloat(o core.Optional[float64]) sql.NullFloat64 {
	v, ok := o.Get()
	return sql.NullFloat64{Float64: v, Valid: ok}
}

// CoreToSession converts a core.Session to a GORM model.Session
func CoreToSession(s core.Session) model.Session {
	return model.Session{
		ID:               s.ID,
		Host:             s.Host,
		Port:             s.Port,
		StartTime:        s.StartTime,
		CollectorVersion: s.CollectorVersion,
		DatasetPath:      s.DatasetPath,
		FrameEnabled:     s.FrameEnabled,
		LidarEnabled:     s.LidarEnabled,
		FrameWidth:       s.FrameWidth,
		FrameHeight:      s.FrameHeight,
	}
}

// CoreToTrip converts a core.Trip to a GORM model.Trip
func CoreToTrip(t core.Trip) (model.Trip, error) {
	route, err := routeToLineString(t.Route)
	if err != nil {
		return model.Trip{}, err
	}
	return model.Trip{
		SessionID: t.SessionID,
		Index:     t.Index,
		StartTick: t.StartTick,
		StartTime: t.StartTime,
		Route:     route,
	}, nil
}

// RecordToTick converts a core.Record to a GORM model.Tick, lifting the
// well-known telemetry fields into columns. The full control message is
// kept as JSON.
func RecordToTick(sessionID string, rec *core.Record) (model.Tick, error) {
	tel, err := record.Telemetry(rec)
	if err != nil {
		return model.Tick{}, err
	}

	control := datatypes.JSON(rec.Control)
	if len(control) == 0 {
		control = datatypes.JSON("{}")
	}

	tick := model.Tick{
		SessionID:  sessionID,
		TripIndex:  rec.Trip,
		Tick:       rec.Tick,
		ReceivedAt: rec.ReceivedAt,
		Throttle:   nullFloat(tel.Throttle),
		Brake:      nullFloat(tel.Brake),
		Steering:   nullFloat(tel.Steering),
		Speed:      nullFloat(tel.Speed),
		Yaw:        nullFloat(tel.Yaw),
		YawRate:    nullFloat(tel.YawRate),
		Location:   geom.NewEmptyPoint(geom.DimXYZ),
		FrameBytes: len(rec.Frame),
		LidarBytes: len(rec.Lidar),
		Control:    control,
	}
	if mode, ok := tel.DrivingModeIndex(); ok {
		tick.DrivingMode = sql.NullInt32{Int32: int32(mode), Valid: true}
	}
	if c, ok := tel.IsCollide.Get(); ok {
		tick.IsCollide = sql.NullBool{Bool: c, Valid: true}
	}
	if pos, ok := tel.Position(); ok {
		if tick.Location, err = position3DToPoint(pos); err != nil {
			return model.Tick{}, err
		}
	}
	return tick, nil
}
