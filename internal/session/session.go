// Package session drives one collection run: it starts the simulator,
// receives a record per tick, checks its binary payloads and hands it to the
// registered sinks, splitting the run into trips as the route restarts.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/deepgtav/vpilot-collector/internal/dispatcher"
	"github.com/deepgtav/vpilot-collector/internal/frame"
	"github.com/deepgtav/vpilot-collector/internal/pointcloud"
	"github.com/deepgtav/vpilot-collector/internal/record"
	"github.com/deepgtav/vpilot-collector/internal/transport"
	"github.com/deepgtav/vpilot-collector/pkg/core"
	"github.com/deepgtav/vpilot-collector/pkg/messages"
)

// Transport is the simulator connection.
type Transport interface {
	Send(m messages.Message) error
	Receive(frame, lidar bool) (*transport.Message, error)
	Close() error
}

// DecodeErrorPolicy decides what happens when a tick's payload fails to
// decode. Returning nil skips the tick; returning an error aborts the run.
type DecodeErrorPolicy func(tick uint64, err error) error

// AbortOnDecodeError is the default policy.
func AbortOnDecodeError(_ uint64, err error) error {
	return err
}

// Options configures a Controller.
type Options struct {
	Scenario *messages.Scenario
	Dataset  *messages.Dataset

	Host             string
	Port             int
	DatasetPath      string
	CollectorVersion string

	Logger        *slog.Logger
	Prompter      Prompter
	OnDecodeError DecodeErrorPolicy
}

// Controller runs a session against one simulator connection.
type Controller struct {
	conn Transport
	d    *dispatcher.Dispatcher
	opts Options
	log  *slog.Logger

	mu      sync.Mutex // guards dataset and the byte presence
	dataset *messages.Dataset
	frame   bool
	lidar   bool
	width   int
	height  int

	session   *core.Session
	started   bool // Start reached the simulator
	trip      *core.Trip
	tripTicks int

	tick    atomic.Uint64
	tripIdx atomic.Int64
	paused  atomic.Bool
}

// New creates a controller. conn is closed when Run returns.
func New(conn Transport, d *dispatcher.Dispatcher, opts Options) (*Controller, error) {
	if conn == nil {
		return nil, errors.New("session: nil transport")
	}
	if d == nil {
		return nil, errors.New("session: nil dispatcher")
	}
	if opts.Dataset == nil {
		return nil, errors.New("session: dataset is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.OnDecodeError == nil {
		opts.OnDecodeError = AbortOnDecodeError
	}
	c := &Controller{conn: conn, d: d, opts: opts, log: opts.Logger}
	if err := c.setDataset(opts.Dataset); err != nil {
		return nil, err
	}
	c.tripIdx.Store(-1)
	return c, nil
}

func (c *Controller) setDataset(ds *messages.Dataset) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	frameOn, lidarOn := messages.ActivateBytesPresence(ds)
	if size, ok := ds.Frame.Get(); ok {
		if size.Width <= 0 || size.Height <= 0 {
			return fmt.Errorf("%w: %dx%d", core.ErrInvalidDimensions, size.Width, size.Height)
		}
		c.width, c.height = size.Width, size.Height
	}
	c.dataset = ds
	c.frame, c.lidar = frameOn, lidarOn
	return nil
}

func (c *Controller) presence() (frameOn, lidarOn bool, width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame, c.lidar, c.width, c.height
}

// Session returns the running session, or nil before Run.
func (c *Controller) Session() *core.Session {
	return c.session
}

// Ticks returns the number of records processed so far.
func (c *Controller) Ticks() uint64 {
	return c.tick.Load()
}

// Pause asks the controller to prompt once the current record is done.
func (c *Controller) Pause() {
	c.paused.Store(true)
}

// LogContext returns the session, trip and tick attributes for log records.
func (c *Controller) LogContext() []slog.Attr {
	if c.session == nil {
		return nil
	}
	attrs := []slog.Attr{slog.String("session", c.session.ID)}
	if trip := c.tripIdx.Load(); trip >= 0 {
		attrs = append(attrs, slog.Int64("trip", trip))
	}
	return append(attrs, slog.Uint64("tick", c.tick.Load()))
}

// Reconfigure sends a Config message. A nil dataset keeps the current one
// and its byte presence.
func (c *Controller) Reconfigure(scenario *messages.Scenario, dataset *messages.Dataset) error {
	if err := c.conn.Send(messages.Config{Scenario: scenario, Dataset: dataset}); err != nil {
		return err
	}
	if dataset == nil {
		return nil
	}
	return c.setDataset(dataset)
}

// SendCommands drives the ego vehicle directly.
func (c *Controller) SendCommands(throttle, brake, steering float64) error {
	return c.conn.Send(messages.Commands{Throttle: throttle, Brake: brake, Steering: steering})
}

// Run sends Start, then handles one record per tick until ctx is done, the
// operator quits from the pause prompt, or an error occurs. Stop is sent if
// Start was, and the connection is closed before Run returns. A transport
// closed after ctx is done ends the session cleanly.
func (c *Controller) Run(ctx context.Context) (err error) {
	frameOn, lidarOn, width, height := c.presence()
	c.session = &core.Session{
		ID:               uuid.NewString(),
		Host:             c.opts.Host,
		Port:             c.opts.Port,
		StartTime:        time.Now(),
		CollectorVersion: c.opts.CollectorVersion,
		DatasetPath:      c.opts.DatasetPath,
		FrameEnabled:     frameOn,
		LidarEnabled:     lidarOn,
		FrameWidth:       width,
		FrameHeight:      height,
	}

	defer func() {
		err = errors.Join(err, c.finish())
	}()

	if err := c.dispatch(dispatcher.Event{Kind: dispatcher.KindSessionStart, Session: c.session}); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	if err := c.conn.Send(messages.Start{Scenario: c.opts.Scenario, Dataset: c.dataset}); err != nil {
		return fmt.Errorf("send start: %w", err)
	}
	c.started = true
	c.log.Info("Session started",
		"session", c.session.ID, "host", c.opts.Host, "port", c.opts.Port,
		"frame", frameOn, "lidar", lidarOn)

	if err := c.startTrip(0); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			c.log.Info("Session interrupted", "ticks", c.tick.Load())
			return nil
		default:
		}

		if c.paused.Swap(false) {
			quit, err := c.pause()
			if err != nil {
				return err
			}
			if quit {
				c.log.Info("Session stopped by operator", "ticks", c.tick.Load())
				return nil
			}
		}

		if err := c.step(); err != nil {
			if ctx.Err() != nil && errors.Is(err, core.ErrTransportClosed) {
				c.log.Info("Session interrupted", "ticks", c.tick.Load())
				return nil
			}
			return err
		}
	}
}

// step receives and handles one tick.
func (c *Controller) step() error {
	frameOn, lidarOn, width, height := c.presence()
	tick := c.tick.Load()

	msg, err := c.conn.Receive(frameOn, lidarOn)
	if err != nil {
		return &core.TickError{Tick: tick, Err: err}
	}
	if rej, ok := record.Rejection(msg.Control); ok {
		return &core.TickError{Tick: tick, Err: rej}
	}

	if err := validate(msg, frameOn, lidarOn, width, height); err != nil {
		if perr := c.opts.OnDecodeError(tick, &core.TickError{Tick: tick, Err: err}); perr != nil {
			return perr
		}
		c.log.Warn("Skipping undecodable tick", "tick", tick, "error", err)
		c.tick.Add(1)
		return nil
	}

	rec := &core.Record{
		Tick:       tick,
		ReceivedAt: time.Now().UTC(),
		Control:    msg.Control,
		Frame:      msg.Frame,
		Lidar:      msg.Lidar,
	}

	tel, err := record.Telemetry(rec)
	if err != nil {
		if perr := c.opts.OnDecodeError(tick, &core.TickError{Tick: tick, Err: err}); perr != nil {
			return perr
		}
		c.log.Warn("Skipping tick with unreadable control message", "tick", tick, "error", err)
		c.tick.Add(1)
		return nil
	}
	if mode, ok := tel.DrivingModeIndex(); ok && mode == 0 && c.tripTicks > 0 {
		if err := c.startTrip(tick); err != nil {
			return err
		}
	}

	rec.Trip = c.trip.Index
	if err := c.dispatch(dispatcher.Event{Kind: dispatcher.KindTick, Session: c.session, Record: rec}); err != nil {
		return &core.TickError{Tick: tick, Err: err}
	}
	c.tripTicks++
	c.tick.Add(1)
	return nil
}

func validate(msg *transport.Message, frameOn, lidarOn bool, width, height int) error {
	if frameOn {
		if _, err := frame.View(msg.Frame, width, height); err != nil {
			return fmt.Errorf("frame: %w", err)
		}
	}
	if lidarOn {
		if _, err := pointcloud.Count(msg.Lidar); err != nil {
			return fmt.Errorf("lidar: %w", err)
		}
	}
	return nil
}

// startTrip ends the open trip, if any, and starts the next one at tick.
func (c *Controller) startTrip(tick uint64) error {
	next := 0
	if c.trip != nil {
		if err := c.endTrip(); err != nil {
			return err
		}
		next = c.trip.Index + 1
	}
	var route []core.Position3D
	if c.opts.Scenario != nil {
		if r, ok := c.opts.Scenario.Route.Get(); ok {
			route = r
		}
	}
	c.trip = &core.Trip{
		Index:     next,
		SessionID: c.session.ID,
		StartTick: tick,
		StartTime: time.Now(),
		Route:     route,
	}
	c.tripTicks = 0
	c.tripIdx.Store(int64(next))
	if err := c.dispatch(dispatcher.Event{Kind: dispatcher.KindTripStart, Session: c.session, Trip: c.trip}); err != nil {
		return fmt.Errorf("start trip %d: %w", next, err)
	}
	c.log.Info("Trip started", "trip", next, "tick", tick)
	return nil
}

func (c *Controller) endTrip() error {
	if err := c.dispatch(dispatcher.Event{Kind: dispatcher.KindTripEnd, Session: c.session, Trip: c.trip}); err != nil {
		return fmt.Errorf("end trip %d: %w", c.trip.Index, err)
	}
	c.log.Info("Trip ended", "trip", c.trip.Index, "ticks", c.tripTicks)
	return nil
}

// finish closes the open trip, sends Stop and closes the connection.
func (c *Controller) finish() error {
	var errs []error
	if c.trip != nil {
		errs = append(errs, c.endTrip())
		c.trip = nil
		c.tripIdx.Store(-1)
	}
	if c.started {
		err := c.conn.Send(messages.Stop{})
		if err != nil && !errors.Is(err, core.ErrTransportClosed) {
			errs = append(errs, fmt.Errorf("send stop: %w", err))
		}
	}
	if err := c.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transport: %w", err))
	}
	c.log.Info("Session finished", "ticks", c.tick.Load())
	return errors.Join(errs...)
}

// dispatch skips kinds nothing listens to.
func (c *Controller) dispatch(e dispatcher.Event) error {
	if !c.d.HasHandler(e.Kind) {
		return nil
	}
	return c.d.Dispatch(e)
}
