// pkg/core/record.go
package core

import (
	"encoding/json"
	"time"
)

// Record is one simulation tick as received from the simulator.
// Control holds the JSON control message verbatim; Frame and Lidar carry the
// optional binary payloads that arrive alongside it and are never embedded
// in Control.
type Record struct {
	Tick       uint64
	Trip       int
	ReceivedAt time.Time
	Control    json.RawMessage
	Frame      []byte
	Lidar      []byte
}

// HasFrame reports whether the record carries a bitmap payload.
func (r *Record) HasFrame() bool {
	return len(r.Frame) > 0
}

// HasLidar reports whether the record carries a point cloud payload.
func (r *Record) HasLidar() bool {
	return len(r.Lidar) > 0
}

// PointSample is a single lidar return.
type PointSample struct {
	X          float32 `json:"x"`
	Y          float32 `json:"y"`
	Z          float32 `json:"z"`
	EntityType int32   `json:"entityType"`
	RayResult  int32   `json:"rayResult"`
	Range      float32 `json:"range"`
}
