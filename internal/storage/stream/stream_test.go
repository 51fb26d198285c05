package stream

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgtav/vpilot-collector/internal/config"
	"github.com/deepgtav/vpilot-collector/pkg/core"
)

func sampleRecords(n int) []*core.Record {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := make([]*core.Record, n)
	for i := range out {
		rec := &core.Record{
			Tick:       uint64(i),
			Trip:       i / 3,
			ReceivedAt: base.Add(time.Duration(i) * 100 * time.Millisecond),
			Control:    []byte(`{"throttle":0.5,"brake":0,"steering":-0.25,"drivingMode":[1]}`),
		}
		if i%2 == 0 {
			rec.Frame = bytes.Repeat([]byte{byte(i)}, 1440)
		}
		if i%3 == 0 {
			rec.Lidar = bytes.Repeat([]byte{0xab}, 72)
		}
		out[i] = rec
	}
	return out
}

func readAll(t *testing.T, r *Reader) []*core.Record {
	t.Helper()
	var out []*core.Record
	for {
		rec, err := r.ReadNext()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, codec := range []Codec{CodecGzip, CodecZstd} {
		t.Run(string(codec), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "dataset.pz")
			want := sampleRecords(7)

			w, err := Create(path, Options{Codec: codec, Level: 9})
			require.NoError(t, err)
			for _, rec := range want {
				require.NoError(t, w.Append(rec))
			}
			assert.Equal(t, 7, w.Count())
			require.NoError(t, w.Close())

			r, err := Open(path)
			require.NoError(t, err)
			defer r.Close()

			got := readAll(t, r)
			if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRoundTrip_ZeroTime(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, Options{})
	require.NoError(t, err)
	require.NoError(t, w.Append(&core.Record{Tick: 3, Control: []byte(`{}`)}))
	require.NoError(t, w.Close())

	r, err := NewReader(&buf)
	require.NoError(t, err)
	rec, err := r.ReadNext()
	require.NoError(t, err)
	assert.True(t, rec.ReceivedAt.IsZero())
	assert.Equal(t, uint64(3), rec.Tick)
	assert.False(t, rec.HasFrame())
	assert.False(t, rec.HasLidar())
}

func TestZeroRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.pz")
	w, err := Create(path, Options{})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.ReadNext()
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, io.EOF)

	// stays at end
	_, err = r.ReadNext()
	assert.ErrorIs(t, err, io.EOF)
}

func TestEmptyInput(t *testing.T) {
	r, err := NewReader(bytes.NewReader(nil))
	require.NoError(t, err)
	_, err = r.ReadNext()
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, r.Close())
}

func TestTruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, Options{Codec: CodecGzip})
	require.NoError(t, err)
	for _, rec := range sampleRecords(4) {
		require.NoError(t, w.Append(rec))
	}
	require.NoError(t, w.Close())

	data := buf.Bytes()
	r, err := NewReader(bytes.NewReader(data[:len(data)-len(data)/3]))
	require.NoError(t, err)

	var readErr error
	n := 0
	for {
		_, err := r.ReadNext()
		if err != nil {
			readErr = err
			break
		}
		n++
	}
	require.Error(t, readErr)
	assert.NotErrorIs(t, readErr, io.EOF)
	assert.ErrorIs(t, readErr, core.ErrMalformedStream)

	var se *core.StreamError
	require.ErrorAs(t, readErr, &se)
	assert.Equal(t, n, se.Index)
	assert.Less(t, n, 4)
}

func TestCorruptCompression(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, Options{Codec: CodecZstd})
	require.NoError(t, err)
	for _, rec := range sampleRecords(3) {
		require.NoError(t, w.Append(rec))
	}
	require.NoError(t, w.Close())

	data := append([]byte(nil), buf.Bytes()...)
	for i := 8; i < len(data); i++ {
		data[i] ^= 0x5a
	}

	r, err := NewReader(bytes.NewReader(data))
	if err != nil {
		assert.ErrorIs(t, err, core.ErrMalformedStream)
		return
	}
	for i := 0; i < 10 && err == nil; i++ {
		_, err = r.ReadNext()
	}
	assert.ErrorIs(t, err, core.ErrMalformedStream)
}

func TestUnknownHeader(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("not a stream")))
	assert.ErrorIs(t, err, core.ErrMalformedStream)
}

func TestAppendMode(t *testing.T) {
	for _, codec := range []Codec{CodecGzip, CodecZstd} {
		t.Run(string(codec), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "trip0.pz")
			recs := sampleRecords(6)

			w, err := Create(path, Options{Codec: codec})
			require.NoError(t, err)
			for _, rec := range recs[:2] {
				require.NoError(t, w.Append(rec))
			}
			require.NoError(t, w.Close())

			w, err = Create(path, Options{Append: true})
			require.NoError(t, err)
			for _, rec := range recs[2:] {
				require.NoError(t, w.Append(rec))
			}
			require.NoError(t, w.Close())

			r, err := Open(path)
			require.NoError(t, err)
			defer r.Close()
			got := readAll(t, r)
			if diff := cmp.Diff(recs, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAppendMode_CodecMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trip0.pz")
	w, err := Create(path, Options{Codec: CodecGzip})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = Create(path, Options{Codec: CodecZstd, Append: true})
	assert.Error(t, err)
}

func TestWriter_Close(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "a", "b.pz"), Options{})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())

	err = w.Append(&core.Record{})
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestReader_Close(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.pz")
	w, err := Create(path, Options{})
	require.NoError(t, err)
	require.NoError(t, w.Append(sampleRecords(1)[0]))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.NoError(t, r.Close())

	_, err = r.ReadNext()
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestFlush(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, Options{Codec: CodecGzip})
	require.NoError(t, err)
	require.NoError(t, w.Append(sampleRecords(1)[0]))
	require.NoError(t, w.Flush())

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	rec, err := r.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rec.Tick)
	require.NoError(t, w.Close())
}

func TestParseCodec(t *testing.T) {
	c, err := ParseCodec("")
	require.NoError(t, err)
	assert.Equal(t, CodecGzip, c)

	c, err = ParseCodec("zstd")
	require.NoError(t, err)
	assert.Equal(t, CodecZstd, c)

	_, err = ParseCodec("lz4")
	assert.Error(t, err)

	_, err = NewWriter(io.Discard, Options{Codec: "bz2"})
	assert.Error(t, err)
}

func TestBackend_DivideByTrip(t *testing.T) {
	dir := t.TempDir()
	b := New(config.StreamConfig{Dir: dir, Compression: "gzip", Level: 9, DivideByTrip: true})
	require.NoError(t, b.Init())
	require.NoError(t, b.StartSession(&core.Session{ID: "s1"}))

	recs := sampleRecords(6)
	for trip := 0; trip < 2; trip++ {
		require.NoError(t, b.StartTrip(&core.Trip{Index: trip}))
		for _, rec := range recs[trip*3 : trip*3+3] {
			require.NoError(t, b.Append(rec))
		}
		require.NoError(t, b.EndTrip())
	}
	require.NoError(t, b.Close())

	paths := b.Paths()
	require.Equal(t, []string{filepath.Join(dir, "trip0.pz"), filepath.Join(dir, "trip1.pz")}, paths)

	for trip, path := range paths {
		r, err := Open(path)
		require.NoError(t, err)
		got := readAll(t, r)
		require.NoError(t, r.Close())
		if diff := cmp.Diff(recs[trip*3:trip*3+3], got, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("trip %d mismatch (-want +got):\n%s", trip, diff)
		}
	}
}

func TestBackend_SingleDataset(t *testing.T) {
	dir := t.TempDir()
	b := New(config.StreamConfig{Dir: dir, Compression: "zstd", DivideByTrip: false})
	require.NoError(t, b.Init())

	recs := sampleRecords(5)
	require.NoError(t, b.StartTrip(&core.Trip{Index: 0}))
	for _, rec := range recs {
		require.NoError(t, b.Append(rec))
	}
	require.NoError(t, b.EndTrip())
	require.NoError(t, b.StartTrip(&core.Trip{Index: 1}))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	require.Equal(t, []string{filepath.Join(dir, DatasetFile)}, b.Paths())

	r, err := Open(filepath.Join(dir, DatasetFile))
	require.NoError(t, err)
	defer r.Close()
	assert.Len(t, readAll(t, r), 5)
}

func TestBackend_InvalidCompression(t *testing.T) {
	b := New(config.StreamConfig{Dir: t.TempDir(), Compression: "brotli"})
	assert.Error(t, b.Init())
}

func runBackend(t *testing.T, cfg config.StreamConfig, trips [][]*core.Record) *Backend {
	t.Helper()
	b := New(cfg)
	require.NoError(t, b.Init())
	require.NoError(t, b.StartSession(&core.Session{ID: "s"}))
	for i, recs := range trips {
		require.NoError(t, b.StartTrip(&core.Trip{Index: i}))
		for _, rec := range recs {
			rec.Trip = i
			require.NoError(t, b.Append(rec))
		}
		require.NoError(t, b.EndTrip())
	}
	require.NoError(t, b.Close())
	return b
}

func TestBackend_RerunAppendsDataset(t *testing.T) {
	dir := t.TempDir()
	cfg := config.StreamConfig{Dir: dir, Compression: "gzip", Append: true}

	runBackend(t, cfg, [][]*core.Record{sampleRecords(5)})
	runBackend(t, cfg, [][]*core.Record{sampleRecords(2)})

	r, err := Open(filepath.Join(dir, DatasetFile))
	require.NoError(t, err)
	defer r.Close()
	assert.Len(t, readAll(t, r), 7)
}

func TestBackend_RerunWithoutAppendTruncates(t *testing.T) {
	dir := t.TempDir()
	cfg := config.StreamConfig{Dir: dir, Compression: "zstd"}

	runBackend(t, cfg, [][]*core.Record{sampleRecords(5)})
	runBackend(t, cfg, [][]*core.Record{sampleRecords(2)})

	r, err := Open(filepath.Join(dir, DatasetFile))
	require.NoError(t, err)
	defer r.Close()
	assert.Len(t, readAll(t, r), 2)
}

func TestBackend_RerunContinuesTripNumbering(t *testing.T) {
	dir := t.TempDir()
	cfg := config.StreamConfig{Dir: dir, Compression: "gzip", DivideByTrip: true, Append: true}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tripnotes.pz"), nil, 0644))

	first := runBackend(t, cfg, [][]*core.Record{sampleRecords(3), sampleRecords(2)})
	require.Equal(t, []string{filepath.Join(dir, "trip0.pz"), filepath.Join(dir, "trip1.pz")}, first.Paths())

	second := runBackend(t, cfg, [][]*core.Record{sampleRecords(4)})
	require.Equal(t, []string{filepath.Join(dir, "trip2.pz")}, second.Paths())

	for path, want := range map[string]int{"trip0.pz": 3, "trip1.pz": 2, "trip2.pz": 4} {
		r, err := Open(filepath.Join(dir, path))
		require.NoError(t, err)
		assert.Len(t, readAll(t, r), want, path)
		require.NoError(t, r.Close())
	}
}

func TestBackend_RerunCodecMismatch(t *testing.T) {
	dir := t.TempDir()
	runBackend(t, config.StreamConfig{Dir: dir, Compression: "gzip", Append: true}, [][]*core.Record{sampleRecords(1)})

	b := New(config.StreamConfig{Dir: dir, Compression: "zstd", Append: true})
	require.NoError(t, b.Init())
	assert.Error(t, b.Append(sampleRecords(1)[0]))
}
