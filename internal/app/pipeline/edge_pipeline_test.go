package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ghalamif/SensorHub/internal/adapters/eventbus"
	"github.com/ghalamif/SensorHub/internal/adapters/queue"
	"github.com/ghalamif/SensorHub/internal/adapters/wal"
	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
)

func TestWaitForWALCapacityBlockThenSucceed(t *testing.T) {
	w := &mockWAL{
		sizes: []int64{150, 50},
	}
	pol := ports.Policy{
		MaxWALSizeBytes: 100,
		OnWALFull:       "block",
		IdleSleep:       time.Millisecond,
	}
	obs := &mockObs{}

	if ok := waitForWALCapacity(nil, w, pol, obs); !ok {
		t.Fatalf("expected waitForWALCapacity to eventually succeed")
	}
	if w.calls < 2 {
		t.Fatalf("expected multiple stats calls, got %d", w.calls)
	}
}

func TestWaitForWALCapacityDrop(t *testing.T) {
	w := &mockWAL{
		sizes: []int64{200, 200},
	}
	pol := ports.Policy{
		MaxWALSizeBytes: 100,
		OnWALFull:       "drop",
	}
	obs := &mockObs{}

	if ok := waitForWALCapacity(nil, w, pol, obs); ok {
		t.Fatalf("expected waitForWALCapacity to drop and return false")
	}
	if len(obs.errorList()) == 0 {
		t.Fatalf("expected error to be logged")
	}
}

func TestWaitForWALCapacityStopsBlocking(t *testing.T) {
	w := &mockWAL{sizes: []int64{200}}
	pol := ports.Policy{MaxWALSizeBytes: 100, OnWALFull: "block", IdleSleep: time.Hour}
	stop := make(chan struct{})
	close(stop)

	if ok := waitForWALCapacity(stop, w, pol, &mockObs{}); ok {
		t.Fatalf("expected a closed stop channel to end the wait")
	}
}

func TestEnqueueWithPolicyBlock(t *testing.T) {
	q := &mockQueue{}
	q.failures = 1

	pol := ports.Policy{
		OnQueueFull: "block",
		IdleSleep:   time.Millisecond,
	}
	obs := &mockObs{}

	if ok := enqueueWithPolicy(nil, q, 1, &domain.Observation{}, pol, obs); !ok {
		t.Fatalf("expected enqueue to eventually succeed")
	}
	if q.calls != 2 {
		t.Fatalf("expected two enqueue attempts, got %d", q.calls)
	}
}

func TestEnqueueWithPolicyDrop(t *testing.T) {
	q := &mockQueue{failAlways: true}
	pol := ports.Policy{
		OnQueueFull: "drop",
	}
	obs := &mockObs{}

	if ok := enqueueWithPolicy(nil, q, 1, &domain.Observation{}, pol, obs); ok {
		t.Fatalf("expected enqueueWithPolicy to fail")
	}
	if len(obs.errorList()) == 0 {
		t.Fatalf("expected drop to log an error")
	}
}

func TestRunEdgePipelineForwardsDataEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := wal.NewFileWAL(t.TempDir())
	if err != nil {
		t.Fatalf("new wal: %v", err)
	}
	defer w.Close()
	q := queue.NewMemQueue(8)
	bus := eventbus.New(nil)
	pol := ports.Policy{MaxQueueLen: 8, OnQueueFull: "drop", OnWALFull: "block"}

	if err := RunEdgePipeline(ctx, bus, w, q, pol, &mockObs{}); err != nil {
		t.Fatalf("run edge pipeline: %v", err)
	}

	bus.Publish(dataEvent(t, 1))
	bus.Publish(domain.Event{Channel: "rangeData", Kind: domain.EventFailure, Err: domain.ErrTransport})
	bus.Publish(dataEvent(t, 2))

	deadline := time.Now().Add(time.Second)
	for q.Len() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	batch := q.DequeueBatch(0)
	if len(batch) != 2 {
		t.Fatalf("expected 2 queued observations, got %d", len(batch))
	}
	if batch[0].ID != 1 || batch[1].Observation.Seq != 2 || batch[1].Observation.Values[0] != 2 {
		t.Fatalf("unexpected batch %+v", batch)
	}
	if got := w.Stats().LatestAppended; got != 2 {
		t.Fatalf("expected 2 WAL entries, got %d", got)
	}

	cancel()
	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := bus.Stats().Subscribers[ForwarderID]; !ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("forwarder still subscribed after cancel")
}

func TestReplayWALQueuesUncommitted(t *testing.T) {
	w, err := wal.NewFileWAL(t.TempDir())
	if err != nil {
		t.Fatalf("new wal: %v", err)
	}
	defer w.Close()
	for i := 1; i <= 3; i++ {
		if _, err := w.Append(&domain.Observation{Channel: "rangeData", Seq: uint64(i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := w.Commit(1); err != nil {
		t.Fatalf("commit: %v", err)
	}

	q := queue.NewMemQueue(1)
	obs := &mockObs{}
	pol := ports.Policy{OnQueueFull: "drop"}
	if err := ReplayWAL(context.Background(), w, q, pol, obs); err != nil {
		t.Fatalf("replay: %v", err)
	}
	batch := q.DequeueBatch(0)
	if len(batch) != 1 || batch[0].ID != 2 {
		t.Fatalf("expected entry 2 to be replayed, got %+v", batch)
	}
	if obs.counter("sensorhub_forward_dropped_total") != 1 {
		t.Fatalf("expected the overflow to be counted as dropped")
	}
}

func dataEvent(t *testing.T, seq uint64) domain.Event {
	t.Helper()
	schema := domain.NewSchema("rangeData", "", domain.FieldDescriptor{Name: "horizDistance", Unit: "m"})
	rec, err := domain.NewRecord(schema, seq, time.Now(), []float64{float64(seq)})
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	return domain.Event{ModuleID: "m1", Channel: "rangeData", Kind: domain.EventData, Record: rec}
}

type mockWAL struct {
	ports.WAL
	sizes []int64
	calls int
}

func (m *mockWAL) Stats() ports.WALStats {
	idx := m.calls
	if idx >= len(m.sizes) {
		idx = len(m.sizes) - 1
	}
	m.calls++
	return ports.WALStats{
		SizeBytes: m.sizes[idx],
	}
}

type mockQueue struct {
	failures   int32
	failAlways bool
	calls      int
}

func (m *mockQueue) Enqueue(id ports.WALEntryID, o *domain.Observation) bool {
	m.calls++
	if m.failAlways {
		return false
	}
	if atomic.LoadInt32(&m.failures) > 0 {
		atomic.AddInt32(&m.failures, -1)
		return false
	}
	return true
}

func (m *mockQueue) DequeueBatch(int) []ports.QueuedObservation { return nil }
func (m *mockQueue) Len() int                                   { return 0 }
func (m *mockQueue) Ready() <-chan struct{}                     { return nil }

type mockObs struct {
	mu       sync.Mutex
	errors   []error
	counters map[string]float64
	dlq      []ports.WALEntryID
}

func (m *mockObs) LogInfo(string, ...ports.Field)            {}
func (m *mockObs) LogWarn(string, error, ...ports.Field)     {}
func (m *mockObs) LogCritical(string, error, ...ports.Field) {}
func (m *mockObs) ObserveLatency(string, float64)            {}
func (m *mockObs) SetGauge(string, float64)                  {}
func (m *mockObs) With(...ports.Field) ports.Observability   { return m }

func (m *mockObs) LogError(_ string, err error, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, err)
}

func (m *mockObs) IncCounter(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]float64)
	}
	m.counters[name] += v
}

func (m *mockObs) RecordDLQ(id ports.WALEntryID, _ *domain.Observation, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlq = append(m.dlq, id)
}

func (m *mockObs) counter(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func (m *mockObs) errorList() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]error(nil), m.errors...)
}

func (m *mockObs) dlqIDs() []ports.WALEntryID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.WALEntryID(nil), m.dlq...)
}
