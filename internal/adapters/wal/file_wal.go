package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
)

// entry format: [8 bytes id][4 bytes len][len bytes msgpack observation]
const recordHeaderLen = 12

// ErrClosed is returned by operations on a closed WAL.
var ErrClosed = errors.New("wal: closed")

// FileWAL is an append-only log of observations waiting to be forwarded.
// The id of the last forwarded entry lives next to it in wal.meta. Values are
// encoded with msgpack so unavailable (NaN) fields survive a restart.
type FileWAL struct {
	mu        sync.Mutex
	dir       string
	path      string
	metaPath  string
	file      *os.File
	writer    *bufio.Writer
	nextID    ports.WALEntryID
	committed ports.WALEntryID
	sizeBytes int64
	closed    bool
}

func NewFileWAL(dir string) (*FileWAL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}
	w := &FileWAL{
		dir:      dir,
		path:     filepath.Join(dir, "wal.log"),
		metaPath: filepath.Join(dir, "wal.meta"),
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	if err := w.bootstrap(); err != nil {
		_ = w.file.Close()
		return nil, err
	}
	return w, nil
}

func (w *FileWAL) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("wal: open: %w", err)
	}
	w.file = f
	w.writer = bufio.NewWriterSize(f, 1<<20)
	return nil
}

func (w *FileWAL) bootstrap() error {
	if err := w.scanExisting(); err != nil {
		return err
	}
	if err := w.loadCommitted(); err != nil {
		return err
	}
	if w.nextID < w.committed {
		w.nextID = w.committed
	}
	return nil
}

// scanExisting finds the last complete entry and cuts off a torn tail left by a crash.
func (w *FileWAL) scanExisting() error {
	var (
		offset int64
		lastID ports.WALEntryID
	)
	err := readEntries(w.path, func(id ports.WALEntryID, body []byte) error {
		offset += recordHeaderLen + int64(len(body))
		lastID = id
		return nil
	})
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("wal: scan: %w", err)
	}
	if err := w.file.Truncate(offset); err != nil {
		return fmt.Errorf("wal: truncate torn tail: %w", err)
	}
	w.sizeBytes = offset
	w.nextID = lastID
	return nil
}

func (w *FileWAL) loadCommitted() error {
	data, err := os.ReadFile(w.metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("wal: read meta: %w", err)
	}
	val := strings.TrimSpace(string(data))
	if val == "" {
		return nil
	}
	u, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return fmt.Errorf("wal: parse meta: %w", err)
	}
	w.committed = ports.WALEntryID(u)
	return nil
}

func (w *FileWAL) Append(o *domain.Observation) (ports.WALEntryID, error) {
	b, err := msgpack.Marshal(o)
	if err != nil {
		return 0, fmt.Errorf("wal: encode: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrClosed
	}

	id := w.nextID + 1
	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(b)))

	if _, err := w.writer.Write(hdr[:]); err != nil {
		return 0, fmt.Errorf("wal: append: %w", err)
	}
	if _, err := w.writer.Write(b); err != nil {
		return 0, fmt.Errorf("wal: append: %w", err)
	}

	// group commit: the buffer is flushed by Iterate, Commit and Close
	w.nextID = id
	w.sizeBytes += int64(len(b) + len(hdr))
	return id, nil
}

// Iterate calls fn for every entry with an id >= from, in append order.
func (w *FileWAL) Iterate(from ports.WALEntryID, fn func(id ports.WALEntryID, o *domain.Observation) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("wal: flush: %w", err)
	}

	err := readEntries(w.path, func(id ports.WALEntryID, body []byte) error {
		if id < from {
			return nil
		}
		var o domain.Observation
		if err := msgpack.Unmarshal(body, &o); err != nil {
			return fmt.Errorf("wal: corrupt entry %d: %w", id, err)
		}
		return fn(id, &o)
	})
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("wal: corrupt log: %w", err)
	}
	return err
}

// Commit marks every entry up to upto as forwarded.
func (w *FileWAL) Commit(upto ports.WALEntryID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if upto > w.committed {
		w.committed = upto
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("wal: flush: %w", err)
	}
	return w.persistMetaLocked()
}

// TruncateCommitted rewrites the log without the committed entries.
func (w *FileWAL) TruncateCommitted() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("wal: flush: %w", err)
	}

	tmpPath := w.path + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("wal: compact: %w", err)
	}
	bw := bufio.NewWriter(tmp)
	var size int64
	err = readEntries(w.path, func(id ports.WALEntryID, body []byte) error {
		if id <= w.committed {
			return nil
		}
		var hdr [recordHeaderLen]byte
		binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
		binary.BigEndian.PutUint32(hdr[8:12], uint32(len(body)))
		if _, err := bw.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := bw.Write(body); err != nil {
			return err
		}
		size += recordHeaderLen + int64(len(body))
		return nil
	})
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("wal: compact: %w", err)
	}

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("wal: compact: %w", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return fmt.Errorf("wal: compact: %w", err)
	}
	if err := w.open(); err != nil {
		return err
	}
	w.sizeBytes = size
	return nil
}

func (w *FileWAL) Stats() ports.WALStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ports.WALStats{
		OldestUncommitted: w.committed + 1,
		LatestAppended:    w.nextID,
		SizeBytes:         w.sizeBytes,
	}
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	ferr := w.writer.Flush()
	serr := w.file.Sync()
	cerr := w.file.Close()
	return errors.Join(ferr, serr, cerr)
}

func (w *FileWAL) persistMetaLocked() error {
	data := []byte(fmt.Sprintf("%d\n", w.committed))
	if err := os.WriteFile(w.metaPath, data, 0o644); err != nil {
		return fmt.Errorf("wal: write meta: %w", err)
	}
	return nil
}

// readEntries walks the log at path. A torn trailing entry yields io.ErrUnexpectedEOF.
func readEntries(path string, fn func(id ports.WALEntryID, body []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		id := ports.WALEntryID(binary.BigEndian.Uint64(hdr[0:8]))
		body := make([]byte, binary.BigEndian.Uint32(hdr[8:12]))
		if _, err := io.ReadFull(r, body); err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if err := fn(id, body); err != nil {
			return err
		}
	}
}

var _ ports.WAL = (*FileWAL)(nil)
