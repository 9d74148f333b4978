// cmd/archiver/archiver_test.go
package main

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rallyline/rally/internal/cache"
)

// flushRecorder captures drained batches in place of the DB persister.
type flushRecorder struct {
	mu      sync.Mutex
	flushes [][]cache.RoomLifecycleRecord
}

func (fr *flushRecorder) persist(batch []cache.RoomLifecycleRecord) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.flushes = append(fr.flushes, batch)
}

func (fr *flushRecorder) count() int {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return len(fr.flushes)
}

func testArchiver(batchSize int) (*ArchiverService, *flushRecorder) {
	fr := &flushRecorder{}
	as := &ArchiverService{
		batchSize: batchSize,
		batch:     make([]cache.RoomLifecycleRecord, 0, batchSize),
	}
	as.persist = fr.persist
	return as, fr
}

func testRecord() cache.RoomLifecycleRecord {
	return cache.RoomLifecycleRecord{
		RoomID:    uuid.New(),
		Event:     "finished",
		Mode:      "casual",
		Timestamp: time.Now().Unix(),
	}
}

// A full batch must flush from inside appendToBatch and return; the
// size-triggered path and the timer path share the same mutex, so this
// guards against the append path wedging on its own flush.
func TestAppendFlushesWhenBatchFills(t *testing.T) {
	as, fr := testArchiver(2)

	done := make(chan struct{})
	go func() {
		as.appendToBatch(testRecord())
		as.appendToBatch(testRecord())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("appendToBatch did not return after filling the batch")
	}

	require.Equal(t, 1, fr.count())
	assert.Len(t, fr.flushes[0], 2)
}

func TestTimerFlushDrainsPartialBatch(t *testing.T) {
	as, fr := testArchiver(10)

	as.appendToBatch(testRecord())
	assert.Equal(t, 0, fr.count(), "below the threshold nothing flushes")

	as.flushBatchToDB()
	require.Equal(t, 1, fr.count())
	assert.Len(t, fr.flushes[0], 1)

	as.flushBatchToDB()
	assert.Equal(t, 1, fr.count(), "an empty batch must not produce a flush")
}

func TestSizeAndTimerFlushesInterleave(t *testing.T) {
	as, fr := testArchiver(3)

	for i := 0; i < 4; i++ {
		as.appendToBatch(testRecord())
	}
	as.flushBatchToDB()

	require.Equal(t, 2, fr.count())
	assert.Len(t, fr.flushes[0], 3, "size-triggered flush takes the full batch")
	assert.Len(t, fr.flushes[1], 1, "timer flush drains the remainder")
}
