package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/deepgtav/vpilot-collector/internal/frame"
	"github.com/deepgtav/vpilot-collector/internal/pointcloud"
	"github.com/deepgtav/vpilot-collector/internal/record"
	"github.com/deepgtav/vpilot-collector/internal/storage/stream"
	"github.com/deepgtav/vpilot-collector/pkg/core"
)

type readOptions struct {
	Width, Height int
	ExportDir     string
	Flip          bool
	Quiet         bool
}

type summary struct {
	Records   int
	Trips     int
	Frames    int
	Points    int
	Hits      int
	Entities  entityTally
	Malformed int
}

func (s summary) String() string {
	return fmt.Sprintf("%d records, %d trips, %d frames, %d lidar points (%d hits: %s), %d malformed",
		s.Records, s.Trips, s.Frames, s.Points, s.Hits, s.Entities, s.Malformed)
}

// entityTally counts lidar hits per entity type.
type entityTally struct {
	Ped, Vehicle, Object int
}

func (e *entityTally) add(counts map[int32]int) {
	e.Ped += counts[pointcloud.EntityPed]
	e.Vehicle += counts[pointcloud.EntityVehicle]
	e.Object += counts[pointcloud.EntityObject]
}

func (e entityTally) String() string {
	return fmt.Sprintf("ped=%d vehicle=%d object=%d", e.Ped, e.Vehicle, e.Object)
}

// readStream prints one line per record of the stream at path. Records
// whose payloads fail to decode are counted and reported but do not stop
// the read; a corrupt stream does.
func readStream(path string, opts readOptions, out io.Writer) (summary, error) {
	var sum summary
	r, err := stream.Open(path)
	if err != nil {
		return sum, err
	}
	defer r.Close()

	if opts.ExportDir != "" {
		if err := os.MkdirAll(opts.ExportDir, 0755); err != nil {
			return sum, fmt.Errorf("failed to create export dir: %w", err)
		}
	}

	trips := map[int]struct{}{}
	for {
		rec, err := r.ReadNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, err
		}
		sum.Records++
		trips[rec.Trip] = struct{}{}

		if err := readRecord(rec, opts, out, &sum); err != nil {
			sum.Malformed++
			fmt.Fprintf(out, "tick %d: %v\n", rec.Tick, err)
		}
	}
	sum.Trips = len(trips)
	return sum, nil
}

func readRecord(rec *core.Record, opts readOptions, out io.Writer, sum *summary) error {
	tel, err := record.Telemetry(rec)
	if err != nil {
		return err
	}

	if rec.HasFrame() {
		g, err := frame.View(rec.Frame, opts.Width, opts.Height)
		if err != nil {
			return err
		}
		sum.Frames++
		if opts.ExportDir != "" {
			if err := exportFrame(g, rec, opts); err != nil {
				return err
			}
		}
	}

	var points, hits int
	var entities entityTally
	if rec.HasLidar() {
		samples, err := pointcloud.Decode(rec.Lidar)
		if err != nil {
			return err
		}
		hit := pointcloud.Hits(samples)
		points, hits = len(samples), len(hit)
		counts := pointcloud.CountByEntity(hit)
		entities.add(counts)
		sum.Points += points
		sum.Hits += hits
		sum.Entities.add(counts)
	}

	if opts.Quiet {
		return nil
	}
	pos, _ := tel.Position()
	fmt.Fprintf(out, "tick %d trip %d: throttle=%s brake=%s steering=%s location=[%.2f %.2f %.2f] speed=%s yawRate=%s points=%d hits=%d %s\n",
		rec.Tick, rec.Trip,
		optFloat(tel.Throttle), optFloat(tel.Brake), optFloat(tel.Steering),
		pos.X, pos.Y, pos.Z,
		optFloat(tel.Speed), optFloat(tel.YawRate), points, hits, entities)
	return nil
}

func exportFrame(g *frame.Grid, rec *core.Record, opts readOptions) error {
	name := filepath.Join(opts.ExportDir, fmt.Sprintf("trip%d_tick%06d.bmp", rec.Trip, rec.Tick))
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if err := frame.WriteBMP(f, g, frame.ExportOptions{FlipVertical: opts.Flip}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func optFloat(v core.Optional[float64]) string {
	if f, ok := v.Get(); ok {
		return fmt.Sprintf("%.3f", f)
	}
	return "-"
}
