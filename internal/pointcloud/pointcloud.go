// Package pointcloud decodes the lidar payload sent with each tick.
//
// The payload is a flat sequence of fixed-size little-endian records, one
// per ray, in the order the sensor swept them:
//
//	offset  size  field
//	0       4     x           float32
//	4       4     y           float32
//	8       4     z           float32
//	12      4     entityType  int32
//	16      4     rayResult   int32
//	20      4     range       float32
package pointcloud

import (
	"encoding/binary"
	"math"

	"github.com/deepgtav/vpilot-collector/pkg/core"
)

// SampleSize is the encoded size of one PointSample in bytes.
const SampleSize = 24

// Count returns the number of samples in buf, or an error when buf is not a
// whole number of samples.
func Count(buf []byte) (int, error) {
	if rem := len(buf) % SampleSize; rem != 0 {
		return 0, &core.LengthError{
			Kind: core.ErrMalformedPointCloud,
			Want: len(buf) - rem + SampleSize,
			Got:  len(buf),
		}
	}
	return len(buf) / SampleSize, nil
}

// Decode splits buf into samples. Each sample is decoded from its own
// 24-byte chunk only.
func Decode(buf []byte) ([]core.PointSample, error) {
	n, err := Count(buf)
	if err != nil {
		return nil, err
	}
	out := make([]core.PointSample, n)
	for i := range out {
		out[i] = decodeSample(buf[i*SampleSize : (i+1)*SampleSize])
	}
	return out, nil
}

func decodeSample(b []byte) core.PointSample {
	return core.PointSample{
		X:          math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
		Y:          math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
		Z:          math.Float32frombits(binary.LittleEndian.Uint32(b[8:12])),
		EntityType: int32(binary.LittleEndian.Uint32(b[12:16])),
		RayResult:  int32(binary.LittleEndian.Uint32(b[16:20])),
		Range:      math.Float32frombits(binary.LittleEndian.Uint32(b[20:24])),
	}
}

// Encode is the inverse of Decode.
func Encode(samples []core.PointSample) []byte {
	buf := make([]byte, len(samples)*SampleSize)
	for i, s := range samples {
		b := buf[i*SampleSize:]
		binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(s.X))
		binary.LittleEndian.PutUint32(b[4:8], math.Float32bits(s.Y))
		binary.LittleEndian.PutUint32(b[8:12], math.Float32bits(s.Z))
		binary.LittleEndian.PutUint32(b[12:16], uint32(s.EntityType))
		binary.LittleEndian.PutUint32(b[16:20], uint32(s.RayResult))
		binary.LittleEndian.PutUint32(b[20:24], math.Float32bits(s.Range))
	}
	return buf
}
