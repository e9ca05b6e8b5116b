package wal

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
)

func observation(seq uint64, hd float64) *domain.Observation {
	return &domain.Observation{
		ModuleID:  "rangefinder",
		Channel:   "rangeData",
		Seq:       seq,
		Timestamp: time.Date(2024, 5, 1, 12, 0, int(seq), 0, time.UTC),
		Fields:    []string{"horizDistance", "azimuth"},
		Values:    []float64{hd, math.NaN()},
	}
}

func TestFileWALAppendIterateAndReplay(t *testing.T) {
	dir := t.TempDir()

	w, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("new wal: %v", err)
	}

	id1, err := w.Append(observation(1, 36.72))
	if err != nil || id1 == 0 {
		t.Fatalf("append observation 1: %v id=%d", err, id1)
	}
	id2, err := w.Append(observation(2, 39.68))
	if err != nil || id2 == 0 {
		t.Fatalf("append observation 2: %v id=%d", err, id2)
	}

	var iterated []*domain.Observation
	if err := w.Iterate(1, func(id ports.WALEntryID, o *domain.Observation) error {
		iterated = append(iterated, o)
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(iterated) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(iterated))
	}
	if iterated[1].Seq != 2 || iterated[1].Values[0] != 39.68 {
		t.Fatalf("unexpected second observation %+v", iterated[1])
	}
	if !math.IsNaN(iterated[0].Values[1]) {
		t.Fatalf("expected unavailable azimuth to survive as NaN, got %v", iterated[0].Values[1])
	}
	if !iterated[0].Timestamp.Equal(observation(1, 0).Timestamp) {
		t.Fatalf("timestamp changed in the log: %v", iterated[0].Timestamp)
	}

	if err := w.Commit(id2); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close wal: %v", err)
	}
	if _, err := w.Append(observation(3, 1)); err != ErrClosed {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}

	// Reopen and ensure committed metadata was persisted.
	w2, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("reopen wal: %v", err)
	}

	stats := w2.Stats()
	if stats.LatestAppended != id2 {
		t.Fatalf("expected latest appended %d, got %d", id2, stats.LatestAppended)
	}
	if stats.OldestUncommitted != id2+1 {
		t.Fatalf("expected oldest uncommitted %d, got %d", id2+1, stats.OldestUncommitted)
	}

	// A torn entry from a crash is cut off on the next open.
	if err := w2.Close(); err != nil {
		t.Fatalf("close wal2: %v", err)
	}
	path := filepath.Join(dir, "wal.log")
	before, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if err := appendGarbage(path); err != nil {
		t.Fatalf("append garbage: %v", err)
	}

	w3, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("reopen after garbage: %v", err)
	}
	defer w3.Close()
	if got := w3.Stats().SizeBytes; got != before.Size() {
		t.Fatalf("expected torn tail to be truncated to %d bytes, got %d", before.Size(), got)
	}
	id3, err := w3.Append(observation(3, 1))
	if err != nil || id3 != id2+1 {
		t.Fatalf("append after recovery: %v id=%d", err, id3)
	}
}

func TestFileWALTruncateCommitted(t *testing.T) {
	w, err := NewFileWAL(t.TempDir())
	if err != nil {
		t.Fatalf("new wal: %v", err)
	}
	defer w.Close()

	var last ports.WALEntryID
	for i := uint64(1); i <= 4; i++ {
		if last, err = w.Append(observation(i, float64(i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := w.Commit(2); err != nil {
		t.Fatalf("commit: %v", err)
	}
	sizeBefore := w.Stats().SizeBytes
	if err := w.TruncateCommitted(); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if w.Stats().SizeBytes >= sizeBefore {
		t.Fatalf("expected log to shrink from %d bytes, got %d", sizeBefore, w.Stats().SizeBytes)
	}

	var ids []ports.WALEntryID
	if err := w.Iterate(0, func(id ports.WALEntryID, o *domain.Observation) error {
		ids = append(ids, id)
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != last {
		t.Fatalf("expected entries 3 and %d to remain, got %v", last, ids)
	}

	if next, err := w.Append(observation(5, 5)); err != nil || next != last+1 {
		t.Fatalf("append after truncate: %v id=%d", err, next)
	}
}

func appendGarbage(path string) error {
	f, err := openAppend(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write([]byte{0xFF, 0xAA}); err != nil {
		return err
	}
	return nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
}
