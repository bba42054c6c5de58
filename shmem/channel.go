package shmem

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sys/unix"

	"github.com/progrium/tapedeck/tape"
)

// DefaultDir is where regions live unless configured otherwise. On Linux it
// is a tmpfs, so the mapping never touches disk.
const DefaultDir = "/dev/shm"

// Region layout, little-endian.
const (
	offTimestamp = 0
	offTimeRange = 8
	offCount     = 12
	offSamples   = 16

	Size = offSamples + 4*tape.MaxSamples
)

var (
	ErrClosed   = errors.New("shmem: channel closed")
	ErrTimeout  = errors.New("shmem: wait timed out")
	ErrReadOnly = errors.New("shmem: channel opened read-only")
	ErrNoWatch  = errors.New("shmem: only readers can wait")
	ErrInUse    = errors.New("shmem: region already has a writer")
)

// Channel is a fixed-size shared-memory region holding the latest record,
// guarded by a file lock and paired with an event file that changes after
// every write.
//
// A region created with Create belongs to the writer, which removes its
// files on Close. There is at most one writer per region, held by an
// exclusive lock on the claim file. Readers attach with Open.
type Channel struct {
	dir   string
	name  string
	owner bool
	log   *slog.Logger

	mu      sync.Mutex
	data    []byte
	claim   *os.File
	lock    *os.File
	evt     *os.File
	watcher *fsnotify.Watcher
	seq     uint64
}

func (c *Channel) regionPath() string { return filepath.Join(c.dir, c.name) }
func (c *Channel) lockPath() string   { return filepath.Join(c.dir, c.name+".lock") }
func (c *Channel) evtPath() string    { return filepath.Join(c.dir, c.name+".evt") }
func (c *Channel) claimPath() string  { return filepath.Join(c.dir, c.name+".owner") }

func validName(name string) error {
	if name == "" || strings.ContainsRune(name, '/') {
		return fmt.Errorf("shmem: invalid channel name %q", name)
	}
	return nil
}

// Create makes (or resets) the region name under dir and maps it for
// writing. It fails with ErrInUse while another writer holds the region.
func Create(dir, name string) (_ *Channel, err error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if dir == "" {
		dir = DefaultDir
	}
	c := &Channel{
		dir:   dir,
		name:  name,
		owner: true,
		log:   slog.Default().With("component", "shmem", "channel", name),
	}
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			c.removeFiles()
			c.release()
		}
	}()

	c.lock, err = os.OpenFile(c.lockPath(), os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("shmem: lock: %w", err)
	}
	c.evt, err = os.OpenFile(c.evtPath(), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return nil, fmt.Errorf("shmem: event: %w", err)
	}

	f, err := os.OpenFile(c.regionPath(), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return nil, fmt.Errorf("shmem: region: %w", err)
	}
	defer f.Close()
	if err := f.Truncate(Size); err != nil {
		return nil, fmt.Errorf("shmem: region: %w", err)
	}
	c.data, err = unix.Mmap(int(f.Fd()), 0, Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shmem: mmap: %w", err)
	}

	c.log.Info("created", "path", c.regionPath(), "size", Size)
	return c, nil
}

// acquire takes the writer claim. The claim file is never removed, so every
// writer locks the same inode.
func (c *Channel) acquire() error {
	f, err := os.OpenFile(c.claimPath(), os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return fmt.Errorf("shmem: claim: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return ErrInUse
		}
		return fmt.Errorf("shmem: claim: %w", err)
	}
	c.claim = f
	return nil
}

// Open attaches to an existing region for reading.
func Open(dir, name string) (_ *Channel, err error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if dir == "" {
		dir = DefaultDir
	}
	c := &Channel{
		dir:  dir,
		name: name,
		log:  slog.Default().With("component", "shmem", "channel", name),
	}
	defer func() {
		if err != nil {
			c.release()
		}
	}()

	f, err := os.Open(c.regionPath())
	if err != nil {
		return nil, fmt.Errorf("shmem: region: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("shmem: region: %w", err)
	}
	if fi.Size() < Size {
		return nil, fmt.Errorf("shmem: region %s is %d bytes, want %d", c.regionPath(), fi.Size(), Size)
	}

	c.lock, err = os.Open(c.lockPath())
	if err != nil {
		return nil, fmt.Errorf("shmem: lock: %w", err)
	}
	c.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("shmem: watch: %w", err)
	}
	if err := c.watcher.Add(c.evtPath()); err != nil {
		return nil, fmt.Errorf("shmem: watch: %w", err)
	}
	c.data, err = unix.Mmap(int(f.Fd()), 0, Size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shmem: mmap: %w", err)
	}
	return c, nil
}

func (c *Channel) Name() string { return c.name }

// Write copies rec into the region under the lock, then signals readers.
func (c *Channel) Write(rec *tape.Record) error {
	n := len(rec.Samples)
	if n > tape.MaxSamples {
		return tape.ErrTooManySamples
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		return ErrClosed
	}
	if !c.owner {
		return ErrReadOnly
	}

	if err := unix.Flock(int(c.lock.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("shmem: lock: %w", err)
	}
	binary.LittleEndian.PutUint64(c.data[offTimestamp:], uint64(rec.Timestamp))
	binary.LittleEndian.PutUint32(c.data[offTimeRange:], uint32(rec.TimeRange))
	binary.LittleEndian.PutUint32(c.data[offCount:], uint32(n))
	for i, s := range rec.Samples {
		binary.LittleEndian.PutUint32(c.data[offSamples+4*i:], math.Float32bits(s))
	}
	if err := unix.Flock(int(c.lock.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("shmem: unlock: %w", err)
	}

	c.notify()
	return nil
}

// notify bumps the event file. Readers that are not waiting miss it, which
// is fine: the region always holds the latest record.
func (c *Channel) notify() {
	c.seq++
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], c.seq)
	if _, err := c.evt.WriteAt(buf[:], 0); err != nil {
		c.log.Warn("notify failed", "err", err)
	}
}

// Publish makes the channel usable as an engine sink.
func (c *Channel) Publish(rec *tape.Record) error {
	return c.Write(rec)
}

// Read returns a copy of the record currently in the region.
func (c *Channel) Read() (*tape.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		return nil, ErrClosed
	}

	if err := unix.Flock(int(c.lock.Fd()), unix.LOCK_SH); err != nil {
		return nil, fmt.Errorf("shmem: lock: %w", err)
	}
	defer unix.Flock(int(c.lock.Fd()), unix.LOCK_UN)

	n := binary.LittleEndian.Uint32(c.data[offCount:])
	if n > tape.MaxSamples {
		return nil, fmt.Errorf("shmem: corrupt sample count %d", n)
	}
	rec := &tape.Record{
		Timestamp: int64(binary.LittleEndian.Uint64(c.data[offTimestamp:])),
		TimeRange: int32(binary.LittleEndian.Uint32(c.data[offTimeRange:])),
		Samples:   make([]float32, n),
	}
	for i := range rec.Samples {
		rec.Samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(c.data[offSamples+4*i:]))
	}
	return rec, nil
}

// Wait blocks until the writer signals, ctx is done or timeout elapses.
// A zero timeout waits forever.
func (c *Channel) Wait(ctx context.Context, timeout time.Duration) error {
	c.mu.Lock()
	w := c.watcher
	c.mu.Unlock()
	if w == nil {
		if c.owner {
			return ErrNoWatch
		}
		return ErrClosed
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return ErrClosed
			}
			if ev.Has(fsnotify.Write) {
				return nil
			}
			if ev.Has(fsnotify.Remove) {
				return ErrClosed
			}
		case err, ok := <-w.Errors:
			if !ok {
				return ErrClosed
			}
			return fmt.Errorf("shmem: watch: %w", err)
		case <-expired:
			return ErrTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close unmaps the region. The writer also removes the region files.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		return nil
	}
	if c.owner {
		c.removeFiles()
		c.log.Info("removed", "path", c.regionPath())
	}
	return c.release()
}

// release frees whatever has been acquired so far.
func (c *Channel) release() error {
	var errs []error
	if c.data != nil {
		errs = append(errs, unix.Munmap(c.data))
		c.data = nil
	}
	if c.watcher != nil {
		errs = append(errs, c.watcher.Close())
		c.watcher = nil
	}
	if c.evt != nil {
		errs = append(errs, c.evt.Close())
		c.evt = nil
	}
	if c.lock != nil {
		errs = append(errs, c.lock.Close())
		c.lock = nil
	}
	// last, so the files are gone before another writer can claim them
	if c.claim != nil {
		errs = append(errs, c.claim.Close())
		c.claim = nil
	}
	return errors.Join(errs...)
}

func (c *Channel) removeFiles() {
	for _, p := range []string{c.regionPath(), c.lockPath(), c.evtPath()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.log.Warn("remove failed", "path", p, "err", err)
		}
	}
}
