package tape

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxSamples is the largest sample count a record may carry. It matches the
// 181-beam telemeter the shared-memory layout was sized for.
const MaxSamples = 181

// headerSize is timestamp (u64) + time range (i32) + sample count (i32).
const headerSize = 8 + 4 + 4

var ErrTooManySamples = fmt.Errorf("record exceeds %d samples", MaxSamples)

// Record is one timestamped sample vector. Its contents are opaque to the
// replay core.
type Record struct {
	Timestamp int64
	TimeRange int32
	Samples   []float32
}

func (r *Record) SampleCount() int {
	return len(r.Samples)
}

// MarshalBinary encodes the record little-endian as
// [timestamp][timeRange][sampleCount][samples...].
func (r *Record) MarshalBinary() ([]byte, error) {
	if len(r.Samples) > MaxSamples {
		return nil, ErrTooManySamples
	}
	buf := make([]byte, headerSize+4*len(r.Samples))
	binary.LittleEndian.PutUint64(buf[0:], uint64(r.Timestamp))
	binary.LittleEndian.PutUint32(buf[8:], uint32(r.TimeRange))
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(r.Samples)))
	for i, v := range r.Samples {
		binary.LittleEndian.PutUint32(buf[headerSize+4*i:], math.Float32bits(v))
	}
	return buf, nil
}

func (r *Record) UnmarshalBinary(data []byte) error {
	rec, err := ReadRecord(bytes.NewReader(data))
	if err != nil {
		return err
	}
	*r = *rec
	return nil
}

// ReadRecord decodes the next record from rd. It returns io.EOF only when
// rd is exhausted exactly at a record boundary.
func ReadRecord(rd io.Reader) (*Record, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(rd, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("read header: %w", err)
		}
		return nil, err
	}
	count := int32(binary.LittleEndian.Uint32(hdr[12:]))
	if count < 0 || count > MaxSamples {
		return nil, fmt.Errorf("invalid sample count %d: %w", count, ErrTooManySamples)
	}
	rec := &Record{
		Timestamp: int64(binary.LittleEndian.Uint64(hdr[0:])),
		TimeRange: int32(binary.LittleEndian.Uint32(hdr[8:])),
		Samples:   make([]float32, count),
	}
	if err := binary.Read(rd, binary.LittleEndian, rec.Samples); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read samples: %w", err)
	}
	return rec, nil
}
