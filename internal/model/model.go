package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&Trip{},
	&Tick{},
}

// Session is one collection run against a simulator
type Session struct {
	ID               string    `json:"id" gorm:"primaryKey;size:36"`
	Host             string    `json:"host" gorm:"size:255"`
	Port             int       `json:"port"`
	StartTime        time.Time `json:"startTime" gorm:"index:idx_session_start_time"`
	EndTime          sql.NullTime
	CollectorVersion string `json:"collectorVersion" gorm:"size:64"`
	DatasetPath      string `json:"datasetPath" gorm:"size:1024"`
	FrameEnabled     bool   `json:"frameEnabled"`
	LidarEnabled     bool   `json:"lidarEnabled"`
	FrameWidth       int    `json:"frameWidth"`
	FrameHeight      int    `json:"frameHeight"`
	Trips            []Trip `gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (*Session) TableName() string {
	return "sessions"
}

// Trip is a contiguous run of ticks within a session
type Trip struct {
	ID        uint            `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID string          `json:"sessionId" gorm:"size:36;uniqueIndex:idx_trip_session_index"`
	Index     int             `json:"index" gorm:"column:trip_index;uniqueIndex:idx_trip_session_index"`
	StartTick uint64          `json:"startTick"`
	EndTick   sql.NullInt64   `json:"endTick"`
	StartTime time.Time       `json:"startTime"`
	Route     geom.LineString `json:"route"` // XYZ waypoints requested by the scenario
}

func (*Trip) TableName() string {
	return "trips"
}

// Tick is one received control message. Binary payloads are not stored;
// the row points at them through SessionID, TripIndex and Tick.
type Tick struct {
	ID          uint            `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID   string          `json:"sessionId" gorm:"size:36;index:idx_tick_session_tick,priority:1"`
	TripIndex   int             `json:"trip" gorm:"index:idx_tick_trip"`
	Tick        uint64          `json:"tick" gorm:"index:idx_tick_session_tick,priority:2"`
	ReceivedAt  time.Time       `json:"receivedAt"`
	Throttle    sql.NullFloat64 `json:"throttle"`
	Brake       sql.NullFloat64 `json:"brake"`
	Steering    sql.NullFloat64 `json:"steering"`
	Speed       sql.NullFloat64 `json:"speed"`
	Yaw         sql.NullFloat64 `json:"yaw"`
	YawRate     sql.NullFloat64 `json:"yawRate"`
	DrivingMode sql.NullInt32   `json:"drivingMode"`
	IsCollide   sql.NullBool    `json:"isCollide"`
	Location    geom.Point      `json:"location"` // XYZ, empty when not requested
	FrameBytes  int             `json:"frameBytes"`
	LidarBytes  int             `json:"lidarBytes"`
	Control     datatypes.JSON  `json:"control"`
}

func (*Tick) TableName() string {
	return "ticks"
}
