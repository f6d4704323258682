package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_SnapshotOrderAndEviction(t *testing.T) {
	r := NewRing()
	for i := 0; i < ringCapacity+10; i++ {
		r.Push(Entry{Time: time.Now(), Level: "info", Message: fmt.Sprintf("line %d", i)})
	}
	snap := r.Snapshot()
	require.Len(t, snap, ringCapacity)
	// The 10 oldest entries were evicted; the rest come back oldest-first.
	assert.Equal(t, "line 10", snap[0].Message)
	assert.Equal(t, fmt.Sprintf("line %d", ringCapacity+9), snap[ringCapacity-1].Message)
}

func TestRing_SubscribeReceivesPushes(t *testing.T) {
	r := NewRing()
	ch, unsubscribe := r.Subscribe()
	defer unsubscribe()

	r.Push(Entry{Message: "hello"})

	select {
	case e := <-ch:
		assert.Equal(t, "hello", e.Message)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber push")
	}
}

func TestRing_SlowSubscriberDoesNotBlock(t *testing.T) {
	r := NewRing()
	ch, unsubscribe := r.Subscribe()
	defer unsubscribe()

	for i := 0; i < 1000; i++ {
		r.Push(Entry{Message: "spam"})
	}
	_ = ch

	done := make(chan struct{})
	go func() {
		r.Push(Entry{Message: "final"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push blocked on a full subscriber channel")
	}
}

func TestInit_WritesToLogsDir(t *testing.T) {
	dir := t.TempDir()
	ring, err := Init("info", "json", dir)
	require.NoError(t, err)
	require.NotNil(t, ring)

	slog.Info("hello from test")
	data, err := os.ReadFile(filepath.Join(dir, "app.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "] [INFO] hello from test\n")
}
