package configstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netassist/core/pkg/eventlog"
)

func TestSetThenGetVisibleImmediately(t *testing.T) {
	s, err := New("", nil)
	require.NoError(t, err)

	_, ok := s.Get("scope.active")
	require.False(t, ok)

	require.NoError(t, s.Set("scope.active", "local"))

	v, ok := s.Get("scope.active")
	require.True(t, ok)
	require.Equal(t, "local", v)
}

func TestSetEmitsSettingsChangedBeforeNewValueIsReadable(t *testing.T) {
	log := eventlog.New()
	s, err := New("", log)
	require.NoError(t, err)

	var sawDuringEvent any
	sawPresent := false
	unsub := log.SubscribeAll(func(e eventlog.Event) {
		if e.Type != eventlog.TypeSettingsChanged {
			return
		}
		sawDuringEvent, sawPresent = s.Get("watch.max_concurrent")
	})
	defer unsub()

	require.NoError(t, s.Set("watch.max_concurrent", 50))

	// The subscriber observed the store strictly before Set installed the
	// new value: it must NOT have seen the new value yet.
	require.False(t, sawPresent, "subscriber must not see new value before commit, got %v", sawDuringEvent)

	v, _ := s.Get("watch.max_concurrent")
	require.Equal(t, 50, v)
}

func TestSubscribePrefixFiltering(t *testing.T) {
	s, err := New("", nil)
	require.NoError(t, err)

	var got []string
	unsub := s.Subscribe("watch.", func(key string, value any) {
		got = append(got, key)
	})
	defer unsub()

	require.NoError(t, s.Set("watch.default_poll_interval_ms", 30000))
	require.NoError(t, s.Set("mic_enabled", true))

	require.Equal(t, []string{"watch.default_poll_interval_ms"}, got)
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	s1, err := New(path, nil)
	require.NoError(t, err)
	require.NoError(t, s1.Set("llm.model", "gpt-4"))

	s2, err := New(path, nil)
	require.NoError(t, err)
	v, ok := s2.Get("llm.model")
	require.True(t, ok)
	require.Equal(t, "gpt-4", v)
}

func TestGetNeverFailsOnMissingKey(t *testing.T) {
	s, err := New("", nil)
	require.NoError(t, err)
	require.Equal(t, "fallback", s.GetString("nope", "fallback"))
	require.Equal(t, 7, s.GetInt("nope", 7))
	require.Equal(t, true, s.GetBool("nope", true))
}

func TestSetKeepsPriorValueWhenPersistFails(t *testing.T) {
	log := eventlog.New()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "settings.yaml"), log)
	require.NoError(t, err)
	require.NoError(t, s.Set("scope.active", "local"))

	// Point the backing file into a directory that does not exist so the
	// next write fails.
	s.path = filepath.Join(dir, "missing", "settings.yaml")

	notified := false
	unsub := s.Subscribe("scope.", func(string, any) { notified = true })
	defer unsub()

	err = s.Set("scope.active", "internet")
	require.Error(t, err)
	var ioErr *ConfigIOError
	require.ErrorAs(t, err, &ioErr)

	// The prior in-memory value stays authoritative.
	v, ok := s.Get("scope.active")
	require.True(t, ok)
	require.Equal(t, "local", v)

	// No event and no subscriber callback for the failed write.
	events := log.Filter(eventlog.Filter{Type: eventlog.TypeSettingsChanged})
	require.Len(t, events, 1)
	require.False(t, notified)
}
