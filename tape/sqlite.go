package tape

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"

	_ "modernc.org/sqlite"
)

// Schema is the table layout SQLiteSource reads from. Each row is one
// record of one stream; samples are little-endian float32.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	stream     TEXT    NOT NULL,
	ts         INTEGER NOT NULL,
	time_range INTEGER NOT NULL DEFAULT 0,
	samples    BLOB,
	PRIMARY KEY (stream, ts)
);`

// SQLiteSource replays one stream stored in a sqlite database.
type SQLiteSource struct {
	db     *sql.DB
	stream string
}

func OpenSQLite(path, stream string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return NewSQLiteSource(db, stream), nil
}

func NewSQLiteSource(db *sql.DB, stream string) *SQLiteSource {
	return &SQLiteSource{db: db, stream: stream}
}

func (s *SQLiteSource) Name() string { return s.stream }

// CreateSchema creates the records table if it does not exist yet.
func (s *SQLiteSource) CreateSchema() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteSource) Close() error { return s.db.Close() }

func (s *SQLiteSource) Attach(r BoundsReporter) error {
	var min, max sql.NullInt64
	err := s.db.QueryRow(`SELECT MIN(ts), MAX(ts) FROM records WHERE stream = ?`, s.stream).Scan(&min, &max)
	if err != nil {
		return fmt.Errorf("%s: query bounds: %w", s.stream, err)
	}
	if !min.Valid || !max.Valid {
		slog.Warn("stream has no records", "stream", s.stream)
		return nil
	}
	return r.ReportBounds(min.Int64, max.Int64)
}

func (s *SQLiteSource) RecordAt(t int64) (*Record, bool) {
	var (
		rec     Record
		samples []byte
	)
	err := s.db.QueryRow(`
		SELECT ts, time_range, samples
		FROM records
		WHERE stream = ? AND ts <= ?
		ORDER BY ts DESC
		LIMIT 1
	`, s.stream, t).Scan(&rec.Timestamp, &rec.TimeRange, &samples)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		slog.Error("record lookup failed", "stream", s.stream, "t", t, "err", err)
		return nil, false
	}
	rec.Samples, err = DecodeSamples(samples)
	if err != nil {
		slog.Error("bad samples", "stream", s.stream, "ts", rec.Timestamp, "err", err)
		return nil, false
	}
	return &rec, true
}

// Insert stores rec under the source's stream, replacing any record with
// the same timestamp.
func (s *SQLiteSource) Insert(rec *Record) error {
	if len(rec.Samples) > MaxSamples {
		return ErrTooManySamples
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO records (stream, ts, time_range, samples)
		VALUES (?, ?, ?, ?)
	`, s.stream, rec.Timestamp, rec.TimeRange, EncodeSamples(rec.Samples))
	return err
}

func EncodeSamples(samples []float32) []byte {
	b := make([]byte, 4*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func DecodeSamples(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("sample blob length %d not a multiple of 4", len(b))
	}
	if len(b)/4 > MaxSamples {
		return nil, ErrTooManySamples
	}
	samples := make([]float32, len(b)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return samples, nil
}
