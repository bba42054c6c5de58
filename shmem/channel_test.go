package shmem

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progrium/tapedeck/tape"
)

func newTestPair(t *testing.T) (writer, reader *Channel) {
	t.Helper()
	dir := t.TempDir()

	writer, err := Create(dir, "telemeter")
	require.NoError(t, err)
	t.Cleanup(func() { writer.Close() })

	reader, err = Open(dir, "telemeter")
	require.NoError(t, err)
	t.Cleanup(func() { reader.Close() })
	return writer, reader
}

func TestSize(t *testing.T) {
	assert.Equal(t, 740, Size)
}

func TestWriteRead(t *testing.T) {
	w, r := newTestPair(t)

	require.NoError(t, w.Write(&tape.Record{Timestamp: 42, TimeRange: 7, Samples: []float32{1, 2, 3}}))

	got, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Timestamp)
	assert.Equal(t, int32(7), got.TimeRange)
	assert.Equal(t, []float32{1, 2, 3}, got.Samples)

	// a shorter record replaces the count, not just the prefix
	require.NoError(t, w.Write(&tape.Record{Timestamp: 43, Samples: []float32{9}}))
	got, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, []float32{9}, got.Samples)
}

func TestWriteTooManySamples(t *testing.T) {
	w, r := newTestPair(t)

	err := w.Write(&tape.Record{Timestamp: 1, Samples: make([]float32, tape.MaxSamples+1)})
	assert.ErrorIs(t, err, tape.ErrTooManySamples)

	require.NoError(t, w.Write(&tape.Record{Timestamp: 2, Samples: make([]float32, tape.MaxSamples)}))
	got, err := r.Read()
	require.NoError(t, err)
	assert.Len(t, got.Samples, tape.MaxSamples)
}

func TestReaderCannotWrite(t *testing.T) {
	_, r := newTestPair(t)
	assert.ErrorIs(t, r.Write(&tape.Record{}), ErrReadOnly)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(t.TempDir(), "nothing")
	assert.Error(t, err)
}

func TestInvalidName(t *testing.T) {
	_, err := Create(t.TempDir(), "a/b")
	assert.Error(t, err)
	_, err = Open(t.TempDir(), "")
	assert.Error(t, err)
}

func TestCloseRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := Create(dir, "scan")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = Open(dir, "scan")
	assert.Error(t, err)
	assert.ErrorIs(t, w.Write(&tape.Record{}), ErrClosed)
}

func TestSingleWriter(t *testing.T) {
	w, r := newTestPair(t)

	_, err := Create(w.dir, "telemeter")
	assert.ErrorIs(t, err, ErrInUse)

	// the live region is untouched
	require.NoError(t, w.Write(&tape.Record{Timestamp: 9, Samples: []float32{4}}))
	rec, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, int64(9), rec.Timestamp)
	assert.Equal(t, []float32{4}, rec.Samples)

	require.NoError(t, w.Close())
	next, err := Create(w.dir, "telemeter")
	require.NoError(t, err)
	require.NoError(t, next.Close())
}

func TestWait(t *testing.T) {
	w, r := newTestPair(t)
	ctx := context.Background()

	go func() {
		time.Sleep(20 * time.Millisecond)
		w.Write(&tape.Record{Timestamp: 5})
	}()
	require.NoError(t, r.Wait(ctx, time.Second))

	got, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Timestamp)
}

func TestWaitTimeout(t *testing.T) {
	w, r := newTestPair(t)

	assert.ErrorIs(t, r.Wait(context.Background(), 20*time.Millisecond), ErrTimeout)
	assert.ErrorIs(t, w.Wait(context.Background(), 0), ErrNoWatch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Wait(ctx, 0), context.Canceled)
}

func TestNoTornReads(t *testing.T) {
	w, r := newTestPair(t)

	// every record has count = ts%MaxSamples+1 samples all equal to ts
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ts := int64(1); ts <= 2000; ts++ {
			n := int(ts%tape.MaxSamples) + 1
			samples := make([]float32, n)
			for i := range samples {
				samples[i] = float32(ts)
			}
			w.Write(&tape.Record{Timestamp: ts, TimeRange: int32(ts), Samples: samples})
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			return
		default:
		}
		rec, err := r.Read()
		require.NoError(t, err)
		if rec.Timestamp == 0 {
			continue
		}
		require.Equal(t, int32(rec.Timestamp), rec.TimeRange)
		require.Len(t, rec.Samples, int(rec.Timestamp%tape.MaxSamples)+1)
		for _, s := range rec.Samples {
			require.Equal(t, float32(rec.Timestamp), s)
		}
	}
}
