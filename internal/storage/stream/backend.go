package stream

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/deepgtav/vpilot-collector/internal/config"
	"github.com/deepgtav/vpilot-collector/pkg/core"
)

// DatasetFile is the stream file used when trips are not divided.
const DatasetFile = "dataset.pz"

// TripFile returns the stream file name of trip index.
func TripFile(index int) string {
	return fmt.Sprintf("trip%d.pz", index)
}

// Backend writes the session's records to stream files under cfg.Dir:
// one file per trip when DivideByTrip is set, otherwise a single
// dataset file. With cfg.Append an earlier run's files are kept: the
// dataset file is extended and trip files are numbered after the
// highest existing one.
type Backend struct {
	cfg      config.StreamConfig
	codec    Codec
	session  *core.Session
	writer   *Writer
	paths    []string
	tripBase int
	mu       sync.Mutex
}

// New creates a stream backend
func New(cfg config.StreamConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init validates the codec and creates the output directory
func (b *Backend) Init() error {
	codec, err := ParseCodec(b.cfg.Compression)
	if err != nil {
		return err
	}
	b.codec = codec
	if err := os.MkdirAll(b.cfg.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create dataset directory: %w", err)
	}
	if b.cfg.Append && b.cfg.DivideByTrip {
		next, err := nextTripIndex(b.cfg.Dir)
		if err != nil {
			return err
		}
		b.tripBase = next
	}
	return nil
}

// nextTripIndex returns one past the highest trip<N>.pz index in dir.
func nextTripIndex(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list dataset directory: %w", err)
	}
	next := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "trip") || !strings.HasSuffix(name, ".pz") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "trip"), ".pz"))
		if err != nil || n < 0 {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return next, nil
}

// Close finishes the open stream, if any
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeWriter()
}

// StartSession records the session being collected
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = s
	return nil
}

// StartTrip opens the trip's stream file when trips are divided
func (b *Backend) StartTrip(t *core.Trip) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.cfg.DivideByTrip {
		return nil
	}
	if err := b.closeWriter(); err != nil {
		return err
	}
	return b.openWriter(TripFile(b.tripBase + t.Index))
}

// EndTrip closes the trip's stream file, or flushes the dataset file
func (b *Backend) EndTrip() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writer == nil {
		return nil
	}
	if b.cfg.DivideByTrip {
		return b.closeWriter()
	}
	return b.writer.Flush()
}

// Append writes rec to the current stream. A failure here is fatal to the
// session.
func (b *Backend) Append(rec *core.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writer == nil {
		name := DatasetFile
		if b.cfg.DivideByTrip {
			name = TripFile(b.tripBase + rec.Trip)
		}
		if err := b.openWriter(name); err != nil {
			return err
		}
	}
	return b.writer.Append(rec)
}

// Paths returns the stream files written so far, in creation order
func (b *Backend) Paths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.paths...)
}

func (b *Backend) openWriter(name string) error {
	path := filepath.Join(b.cfg.Dir, name)
	w, err := Create(path, Options{Codec: b.codec, Level: b.cfg.Level, Append: b.cfg.Append})
	if err != nil {
		return err
	}
	b.writer = w
	b.paths = append(b.paths, path)
	return nil
}

func (b *Backend) closeWriter() error {
	if b.writer == nil {
		return nil
	}
	err := b.writer.Close()
	b.writer = nil
	return err
}
