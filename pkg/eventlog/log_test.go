package eventlog

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAssignsMonotonicSequences(t *testing.T) {
	l := New()
	s1, err := l.Append(TypeMessageAdded, nil)
	require.NoError(t, err)
	s2, err := l.Append(TypeMessageUpdated, nil)
	require.NoError(t, err)
	assert.Less(t, s1, s2)
}

func TestSubscribersSeeEventsInAppendOrder(t *testing.T) {
	l := New()
	var got []string
	l.SubscribeAll(func(e Event) { got = append(got, e.Type) })

	l.Append(TypeScanStarted, nil)
	l.Append(TypeScanCompleted, nil)
	l.Append(TypeChangeDetected, nil)

	assert.Equal(t, []string{TypeScanStarted, TypeScanCompleted, TypeChangeDetected}, got)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	l := New()
	count := 0
	unsubscribe := l.SubscribeAll(func(Event) { count++ })

	l.Append(TypeScanStarted, nil)
	unsubscribe()
	l.Append(TypeScanCompleted, nil)

	assert.Equal(t, 1, count)
}

func TestPanickingSubscriberDoesNotBreakAppend(t *testing.T) {
	l := New()
	l.SubscribeAll(func(Event) { panic("bad subscriber") })
	delivered := false
	l.SubscribeAll(func(Event) { delivered = true })

	_, err := l.Append(TypeErrorOccurred, nil)
	require.NoError(t, err)
	assert.True(t, delivered)
}

func TestFilterByType(t *testing.T) {
	l := New()
	l.Append(TypeScanStarted, nil)
	l.Append(TypeChangeDetected, map[string]any{"rule_id": "r1"})
	l.Append(TypeScanCompleted, nil)

	got := l.Filter(Filter{Type: TypeChangeDetected})
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].Payload["rule_id"])
}

func TestFilterSince(t *testing.T) {
	l := New()
	l.Append(TypeScanStarted, nil)
	cut := time.Now().Add(time.Millisecond)
	time.Sleep(2 * time.Millisecond)
	l.Append(TypeScanCompleted, nil)

	got := l.Filter(Filter{Since: cut})
	require.Len(t, got, 1)
	assert.Equal(t, TypeScanCompleted, got[0].Type)
}

func TestConcurrentAppendsKeepUniqueSequences(t *testing.T) {
	l := New()
	var mu sync.Mutex
	seen := map[uint64]bool{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := l.Append(TypeScanStarted, nil)
			require.NoError(t, err)
			mu.Lock()
			assert.False(t, seen[seq])
			seen[seq] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, l.Filter(Filter{}), 50)
}
