package eventbus

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/SensorHub/internal/domain"
)

func dataEvent(channel string) domain.Event {
	return domain.Event{ModuleID: "m1", Channel: channel, Kind: domain.EventData}
}

func TestSubscribeReceivesInOrder(t *testing.T) {
	bus := New(nil)
	sub, err := bus.Subscribe("a", 8, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ev := dataEvent("rangeData")
		ev.Published = time.Unix(int64(i), 0)
		bus.Publish(ev)
	}
	for i := 0; i < 3; i++ {
		ev := <-sub.Events()
		assert.Equal(t, int64(i), ev.Published.Unix())
	}
}

func TestDuplicateAndUnknownSubscriber(t *testing.T) {
	bus := New(nil)
	_, err := bus.Subscribe("a", 1, nil)
	require.NoError(t, err)

	_, err = bus.Subscribe("a", 1, nil)
	assert.ErrorIs(t, err, ErrSubscriberExists)
	assert.ErrorIs(t, bus.Unsubscribe("missing"), ErrSubscriberNotFound)
}

func TestSlowSubscriberDropsWithoutBlocking(t *testing.T) {
	bus := New(nil)
	slow, err := bus.Subscribe("slow", 1, nil)
	require.NoError(t, err)
	fast, err := bus.Subscribe("fast", 16, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(dataEvent("rangeData"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	st := bus.Stats()
	assert.Equal(t, uint64(10), st.Published)
	assert.Equal(t, SubscriberStats{Sent: 1, Dropped: 9}, st.Subscribers["slow"])
	assert.Equal(t, SubscriberStats{Sent: 10}, st.Subscribers["fast"])
	assert.Len(t, slow.Events(), 1)
	assert.Len(t, fast.Events(), 10)
}

func TestChannelFilter(t *testing.T) {
	bus := New(nil)
	sub, err := bus.Subscribe("a", 4, ChannelFilter("rangeData"))
	require.NoError(t, err)

	bus.Publish(dataEvent("orientation"))
	bus.Publish(dataEvent("rangeData"))

	ev := <-sub.Events()
	assert.Equal(t, "rangeData", ev.Channel)
	assert.Len(t, sub.Events(), 0)
}

func TestSubscribeFuncUnsubscribeWaitsForHandler(t *testing.T) {
	bus := New(nil)
	var (
		mu  sync.Mutex
		got []string
	)
	err := bus.SubscribeFunc("fn", 4, nil, func(ev domain.Event) {
		mu.Lock()
		got = append(got, ev.Channel)
		mu.Unlock()
	})
	require.NoError(t, err)

	bus.Publish(dataEvent("a"))
	bus.Publish(dataEvent("b"))
	require.NoError(t, bus.Unsubscribe("fn"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestCloseClosesSubscriptions(t *testing.T) {
	bus := New(nil)
	sub, err := bus.Subscribe("a", 1, nil)
	require.NoError(t, err)

	bus.Close()
	_, open := <-sub.Events()
	assert.False(t, open)

	bus.Publish(dataEvent("x"))
	_, err = bus.Subscribe("b", 1, nil)
	assert.ErrorIs(t, err, ErrBusClosed)
	bus.Close()
}

func TestSubscribeAndUnsubscribeWhilePublishing(t *testing.T) {
	bus := New(nil)

	lastSeen := int64(-1)
	outOfOrder := 0
	require.NoError(t, bus.SubscribeFunc("steady", 16, nil, func(ev domain.Event) {
		n := ev.Published.UnixNano()
		if n <= lastSeen {
			outOfOrder++
		}
		lastSeen = n
	}))

	stop := make(chan struct{})
	published := make(chan int64, 1)
	go func() {
		var n int64
		defer func() { published <- n }()
		for {
			select {
			case <-stop:
				return
			default:
			}
			ev := dataEvent("rangeData")
			ev.Published = time.Unix(0, n)
			bus.Publish(ev)
			n++
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("churn-%d-%d", w, i)
				if i%2 == 1 {
					assert.NoError(t, bus.SubscribeFunc(id, 4, nil, func(domain.Event) {}))
					assert.NoError(t, bus.Unsubscribe(id))
					continue
				}
				sub, err := bus.Subscribe(id, 4, ChannelFilter("rangeData"))
				if !assert.NoError(t, err) {
					return
				}
				select {
				case <-sub.Events():
				default:
				}
				assert.NoError(t, bus.Unsubscribe(id))
				for range sub.Events() {
				}
			}
		}(w)
	}
	wg.Wait()
	close(stop)
	n := <-published

	// Unsubscribe waits for the handler, so its counters are safe to read after.
	require.NoError(t, bus.Unsubscribe("steady"))
	assert.Zero(t, outOfOrder)
	st := bus.Stats()
	assert.Equal(t, uint64(n), st.Published)
	assert.Empty(t, st.Subscribers)
}
