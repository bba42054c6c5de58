package tape

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Ext is the extension of recorded tape files.
const Ext = ".tape"

// FileSource replays a .tape file: a plain concatenation of records in
// MarshalBinary encoding. The whole file is decoded on Load.
type FileSource struct {
	*MemSource
	Path string
}

func NewFileSource(path string) *FileSource {
	name := strings.TrimSuffix(filepath.Base(path), Ext)
	return &FileSource{MemSource: NewMemSource(name), Path: path}
}

// OpenFile loads path and returns a ready source.
func OpenFile(path string) (*FileSource, error) {
	s := NewFileSource(path)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSource) Load() error {
	if _, err := os.Stat(s.Path); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", s.Path)
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := ReadAll(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("%s: %w", s.Path, err)
	}
	return s.Append(records...)
}

// ReadAll decodes records until rd is exhausted.
func ReadAll(rd io.Reader) ([]*Record, error) {
	var records []*Record
	for {
		rec, err := ReadRecord(rd)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
}

// WriteFile writes records to path in .tape format.
func WriteFile(path string, records []*Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for i, rec := range records {
		b, err := rec.MarshalBinary()
		if err != nil {
			f.Close()
			return fmt.Errorf("record %d: %w", i, err)
		}
		if _, err := w.Write(b); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
