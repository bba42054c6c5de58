package tape

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T, stream string) *SQLiteSource {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
	})
	s := NewSQLiteSource(db, stream)
	require.NoError(t, s.CreateSchema())
	return s
}

func TestSQLiteSource(t *testing.T) {
	s := newTestSQLite(t, "telemeter")
	other := NewSQLiteSource(s.db, "other")

	require.NoError(t, s.Insert(&Record{Timestamp: 100, TimeRange: 3, Samples: []float32{1.5, 2.5}}))
	require.NoError(t, s.Insert(&Record{Timestamp: 200, Samples: []float32{4}}))
	require.NoError(t, other.Insert(&Record{Timestamp: 10}))

	r := &boundsRecorder{}
	require.NoError(t, s.Attach(r))
	assert.Equal(t, [][2]int64{{100, 200}}, r.calls)

	rec, ok := s.RecordAt(150)
	require.True(t, ok)
	assert.Equal(t, &Record{Timestamp: 100, TimeRange: 3, Samples: []float32{1.5, 2.5}}, rec)

	_, ok = s.RecordAt(50)
	assert.False(t, ok)
}

func TestSQLiteSource_EmptyStream(t *testing.T) {
	s := newTestSQLite(t, "empty")
	r := &boundsRecorder{}

	require.NoError(t, s.Attach(r))
	assert.Empty(t, r.calls)
}

func TestDecodeSamples(t *testing.T) {
	_, err := DecodeSamples([]byte{1, 2, 3})
	assert.Error(t, err)

	got, err := DecodeSamples(EncodeSamples([]float32{-1, 0.25}))
	require.NoError(t, err)
	assert.Equal(t, []float32{-1, 0.25}, got)
}
