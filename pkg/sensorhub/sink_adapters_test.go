package sensorhub

import (
	"errors"
	"math"
	"testing"
	"time"
)

func testObservation(seq uint64) *Observation {
	return &Observation{
		ModuleID:  "mod-1",
		Channel:   "rangeData",
		Seq:       seq,
		Timestamp: time.Unix(1, 0),
		Fields:    []string{"horizDistance", "slopeDistance"},
		Values:    []float64{36.7, math.NaN()},
	}
}

func TestNewCallbackSink(t *testing.T) {
	var received []Observation
	sink := NewCallbackSink("cb", func(batch []Observation) error {
		received = append(received, batch...)
		return nil
	})

	input := testObservation(42)
	if err := sink.WriteBatch([]*Observation{input}); err != nil {
		t.Fatalf("WriteBatch returned error: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("expected 1 batch entry, got %d", len(received))
	}
	got := received[0]
	if got.Channel != input.Channel || got.Seq != input.Seq {
		t.Fatalf("mismatched observation payload: %+v vs %+v", got, input)
	}

	input.Values[0] = 0
	if got.Values[0] != 36.7 {
		t.Fatalf("expected values to be copied, got %v", got.Values[0])
	}
	if !math.IsNaN(got.Values[1]) {
		t.Fatalf("expected unavailable value to stay NaN, got %v", got.Values[1])
	}
	if sink.Name() != "cb" {
		t.Fatalf("unexpected name %q", sink.Name())
	}
}

func TestNewCallbackSinkNilHandler(t *testing.T) {
	sink := NewCallbackSink("", nil)
	err := sink.WriteBatch([]*Observation{testObservation(1)})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected when callback is nil, got %v", err)
	}
	if sink.Name() != "callback" {
		t.Fatalf("expected default name, got %q", sink.Name())
	}
}

func TestNewChannelSink(t *testing.T) {
	sink, ch, closeFn := NewChannelSink("chan", 1)
	defer closeFn()

	errCh := make(chan error, 1)
	go func() {
		errCh <- sink.WriteBatch([]*Observation{testObservation(7)})
	}()

	var batch []Observation
	select {
	case batch = <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel batch")
	}

	if err := <-errCh; err != nil {
		t.Fatalf("WriteBatch returned error: %v", err)
	}
	if len(batch) != 1 || batch[0].Seq != 7 {
		t.Fatalf("unexpected batch data: %+v", batch)
	}

	closeFn()
	if err := sink.WriteBatch([]*Observation{testObservation(8)}); !errors.Is(err, ErrChannelSinkClosed) {
		t.Fatalf("expected ErrChannelSinkClosed, got %v", err)
	}
	if _, open := <-ch; open {
		t.Fatalf("expected batch channel to be closed")
	}
}

func TestChannelSinkCloseUnblocksWriter(t *testing.T) {
	sink, _, closeFn := NewChannelSink("", 0)

	errCh := make(chan error, 1)
	go func() {
		errCh <- sink.WriteBatch([]*Observation{testObservation(1)})
	}()

	time.Sleep(10 * time.Millisecond)
	closeFn()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrChannelSinkClosed) {
			t.Fatalf("expected ErrChannelSinkClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("writer still blocked after close")
	}
}
