// Package stream persists Records as a compressed, self-delimiting sequence.
//
// Each record is one CBOR item. The whole sequence is wrapped in gzip or
// zstd; readers detect the codec from the magic bytes. Appending to an
// existing file starts a new compression member, which reads back as a
// continuation of the same stream.
package stream

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/deepgtav/vpilot-collector/pkg/core"
)

// Codec is the compression wrapped around a stream.
type Codec string

const (
	CodecGzip Codec = "gzip"
	CodecZstd Codec = "zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// ParseCodec maps a configuration name to a Codec. Empty means gzip.
func ParseCodec(name string) (Codec, error) {
	switch Codec(name) {
	case "", CodecGzip:
		return CodecGzip, nil
	case CodecZstd:
		return CodecZstd, nil
	default:
		return "", fmt.Errorf("unknown stream compression: %s", name)
	}
}

// Options configure a Writer.
type Options struct {
	Codec Codec
	// Level is the codec's compression level. Zero selects the codec
	// default; gzip accepts 1-9 and zstd 1-22.
	Level int
	// Append adds to an existing file instead of truncating it.
	Append bool
}

// unit is the serialized form of one record.
type unit struct {
	Tick       uint64 `cbor:"tick"`
	Trip       int    `cbor:"trip"`
	ReceivedAt int64  `cbor:"receivedAt,omitempty"` // unix nanoseconds
	Control    []byte `cbor:"control"`
	Frame      []byte `cbor:"frame,omitempty"`
	Lidar      []byte `cbor:"lidar,omitempty"`
}

func toUnit(rec *core.Record) unit {
	u := unit{
		Tick:    rec.Tick,
		Trip:    rec.Trip,
		Control: rec.Control,
		Frame:   rec.Frame,
		Lidar:   rec.Lidar,
	}
	if !rec.ReceivedAt.IsZero() {
		u.ReceivedAt = rec.ReceivedAt.UnixNano()
	}
	return u
}

func (u *unit) record() *core.Record {
	rec := &core.Record{
		Tick:    u.Tick,
		Trip:    u.Trip,
		Control: u.Control,
		Frame:   u.Frame,
		Lidar:   u.Lidar,
	}
	if u.ReceivedAt != 0 {
		rec.ReceivedAt = time.Unix(0, u.ReceivedAt).UTC()
	}
	return rec
}

// Writer appends records to a stream. It is not safe for concurrent use.
type Writer struct {
	file   io.Closer
	comp   io.WriteCloser
	enc    *cbor.Encoder
	count  int
	closed bool
}

// Create opens path for writing, creating parent directories as needed.
func Create(path string, opts Options) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create stream directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if opts.Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		existing, err := sniffFile(path)
		if err != nil {
			return nil, err
		}
		if existing != "" && opts.Codec != "" && existing != opts.Codec {
			return nil, fmt.Errorf("cannot append %s records to %s stream %s", opts.Codec, existing, path)
		}
		if existing != "" {
			opts.Codec = existing
		}
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	w, err := NewWriter(f, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.file = f
	return w, nil
}

// NewWriter starts a stream on w. Closing the Writer does not close w.
func NewWriter(w io.Writer, opts Options) (*Writer, error) {
	codec, err := ParseCodec(string(opts.Codec))
	if err != nil {
		return nil, err
	}

	var comp io.WriteCloser
	switch codec {
	case CodecGzip:
		level := opts.Level
		if level == 0 {
			level = gzip.DefaultCompression
		}
		gz, err := gzip.NewWriterLevel(w, level)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		comp = gz
	case CodecZstd:
		zopts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
		if opts.Level != 0 {
			zopts = append(zopts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.Level)))
		}
		zw, err := zstd.NewWriter(w, zopts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		comp = zw
	}

	return &Writer{comp: comp, enc: cbor.NewEncoder(comp)}, nil
}

// Append writes rec as the next unit of the stream.
func (w *Writer) Append(rec *core.Record) error {
	if w.closed {
		return fmt.Errorf("append to stream: %w", os.ErrClosed)
	}
	if err := w.enc.Encode(toUnit(rec)); err != nil {
		return fmt.Errorf("failed to write record %d: %w", w.count, err)
	}
	w.count++
	return nil
}

// Count returns the number of records written by this Writer.
func (w *Writer) Count() int {
	return w.count
}

// Flush pushes buffered records through the compressor so that a reader
// of the underlying file sees them.
func (w *Writer) Flush() error {
	if w.closed {
		return nil
	}
	type flusher interface{ Flush() error }
	if f, ok := w.comp.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// Close finishes the compression member and closes the file if the Writer
// opened it. Calling Close more than once is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.comp.Close()
	if w.file != nil {
		if cerr := w.file.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	return nil
}

// Reader reads records back from a stream.
type Reader struct {
	file   io.Closer
	comp   io.ReadCloser
	dec    *cbor.Decoder
	index  int
	err    error
	closed bool
}

// Open opens the stream stored at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// NewReader reads a stream from r. An empty input is a stream of zero
// records. Closing the Reader does not close r.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read stream header: %w", err)
	}
	if len(head) == 0 {
		return &Reader{err: io.EOF}, nil
	}

	var comp io.ReadCloser
	switch sniff(head) {
	case CodecGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, &core.StreamError{Index: 0, Err: err}
		}
		comp = gz
	case CodecZstd:
		zr, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, &core.StreamError{Index: 0, Err: err}
		}
		comp = zr.IOReadCloser()
	default:
		return nil, &core.StreamError{Index: 0, Err: fmt.Errorf("unknown compression header % x", head)}
	}

	return &Reader{comp: comp, dec: cbor.NewDecoder(comp)}, nil
}

// ReadNext returns the next record, or io.EOF once the stream is exhausted.
// A stream that ends inside a record, or whose compression is corrupt,
// yields a *core.StreamError.
func (r *Reader) ReadNext() (*core.Record, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.closed {
		return nil, fmt.Errorf("read from stream: %w", os.ErrClosed)
	}

	var u unit
	if err := r.dec.Decode(&u); err != nil {
		if errors.Is(err, io.EOF) {
			r.err = io.EOF
		} else {
			r.err = &core.StreamError{Index: r.index, Err: err}
		}
		return nil, r.err
	}
	r.index++
	return u.record(), nil
}

// Close releases the decompressor and the file if the Reader opened it.
// Calling Close more than once is a no-op.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.comp != nil {
		err = r.comp.Close()
	}
	if r.file != nil {
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func sniff(head []byte) Codec {
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return CodecGzip
	case bytes.HasPrefix(head, zstdMagic):
		return CodecZstd
	}
	return ""
}

// sniffFile returns the codec of an existing stream file, or "" if the file
// is missing or empty.
func sniffFile(path string) (Codec, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to open stream: %w", err)
	}
	defer f.Close()

	head := make([]byte, len(zstdMagic))
	n, err := io.ReadFull(f, head)
	if n == 0 {
		return "", nil
	}
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("failed to read stream header: %w", err)
	}
	codec := sniff(head[:n])
	if codec == "" {
		return "", &core.StreamError{Index: 0, Err: fmt.Errorf("unknown compression header % x", head[:n])}
	}
	return codec, nil
}
