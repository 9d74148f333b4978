// cmd/archiver/archiver.go is an asynchronous service that pops room
// lifecycle events from a Redis queue and persists them to PostgreSQL. It
// also sweeps for matches stuck in 'ongoing' (e.g. after a server crash)
// and marks them abandoned so their players can queue again.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rallyline/rally/internal/cache"
	"github.com/rallyline/rally/internal/database"
)

// ArchiverService encapsulates the Redis + DB logic for capturing room
// lifecycle events and reaping stale matches.
type ArchiverService struct {
	redisClient *redis.Client
	batchSize   int
	flushDelay  time.Duration
	staleAfter  time.Duration // how long an 'ongoing' match may go without events

	batchMu  sync.Mutex
	batch    []cache.RoomLifecycleRecord
	persist  func([]cache.RoomLifecycleRecord)
	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewArchiverService constructs an ArchiverService from environment
// variables or defaults.
func NewArchiverService() *ArchiverService {
	batchSize := getEnvInt("ARCHIVER_BATCH_SIZE", 20)
	flushMs := getEnvInt("ARCHIVER_FLUSH_MS", 500)
	staleSec := getEnvInt("MATCH_STALE_TIMEOUT_SEC", 600) // default 10 min

	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	as := &ArchiverService{
		redisClient: rdb,
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		staleAfter:  time.Duration(staleSec) * time.Second,
		batch:       make([]cache.RoomLifecycleRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
	as.persist = as.persistBatch
	return as
}

// Run starts the two main loops: the Redis queue reader with batched DB
// flushes, and the periodic stale-match sweep.
func (as *ArchiverService) Run() {
	database.ConnectDB()

	go as.readRedisLoop()
	go as.staleSweepLoop()

	log.Println("rally-archiver service started.")
	<-as.ctx.Done()
	log.Println("rally-archiver shutting down.")
}

// readRedisLoop continuously uses BLPop to retrieve lifecycle events.
func (as *ArchiverService) readRedisLoop() {
	ticker := time.NewTicker(as.flushDelay)
	defer ticker.Stop()

	queueName := getEnv("ROOM_EVENTS_QUEUE_NAME", cache.DefaultQueueName)

	for {
		select {
		case <-as.ctx.Done():
			return

		case <-ticker.C:
			as.flushBatchToDB()

		default:
			// BLPop with a short timeout so context cancellation is handled.
			res, err := as.redisClient.BLPop(as.ctx, 3*time.Second, queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			var record cache.RoomLifecycleRecord
			if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
				log.Printf("invalid lifecycle record: %v\n", err)
				continue
			}
			as.appendToBatch(record)
		}
	}
}

// appendToBatch adds a record to the in-memory batch and flushes if the
// threshold is reached.
func (as *ArchiverService) appendToBatch(record cache.RoomLifecycleRecord) {
	as.batchMu.Lock()
	defer as.batchMu.Unlock()

	as.batch = append(as.batch, record)
	if len(as.batch) >= as.batchSize {
		as.flushLocked()
	}
}

// flushBatchToDB flushes whatever is pending; called from the timer loop.
func (as *ArchiverService) flushBatchToDB() {
	as.batchMu.Lock()
	defer as.batchMu.Unlock()
	as.flushLocked()
}

// flushLocked drains the batch and hands it to the persister. Callers must
// hold batchMu; the size-triggered path in appendToBatch already does, so
// flushing must not re-lock.
func (as *ArchiverService) flushLocked() {
	if len(as.batch) == 0 {
		return
	}
	batchCopy := make([]cache.RoomLifecycleRecord, len(as.batch))
	copy(batchCopy, as.batch)
	as.batch = as.batch[:0]

	as.persist(batchCopy)
}

// persistBatch writes one drained batch in a single transaction.
func (as *ArchiverService) persistBatch(batchCopy []cache.RoomLifecycleRecord) {
	ctx := context.Background()
	err := beginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batchCopy {
			if err := insertRoomEventTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertRoomEventTx: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] flushBatchToDB: %v\n", err)
	} else {
		log.Printf("Flushed %d room events to DB.\n", len(batchCopy))
	}
}

// staleSweepLoop periodically marks matches abandoned whose 'ongoing'
// status outlived the staleness threshold without reaching a terminal
// event. This covers matches orphaned by a crashed engine process.
func (as *ArchiverService) staleSweepLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-as.ctx.Done():
			return

		case <-ticker.C:
			ctx := context.Background()
			err := beginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
				q := `
					UPDATE matches
					SET status = 'abandoned', forfeit = true, ended_at = NOW()
					WHERE status = 'ongoing' AND created_at < NOW() - $1::interval
				`
				ct, e := tx.Exec(ctx, q, as.staleAfter.String())
				if e == nil && ct.RowsAffected() > 0 {
					log.Printf("Marked %d stale matches as abandoned.\n", ct.RowsAffected())
				}
				return e
			})
			if err != nil {
				log.Printf("failed stale-match sweep: %v", err)
			}
		}
	}
}

// insertRoomEventTx inserts a single lifecycle event into room_events.
func insertRoomEventTx(ctx context.Context, tx pgx.Tx, rec cache.RoomLifecycleRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	q := `
		INSERT INTO room_events (room_id, event, mode, payload, recorded_at)
		VALUES ($1, $2, $3, $4, to_timestamp($5))
	`
	_, err = tx.Exec(ctx, q, rec.RoomID, rec.Event, rec.Mode, payload, rec.Timestamp)
	return err
}

// beginTxFunc starts a transaction on the pool, calls f, and commits or
// rolls back as needed.
func beginTxFunc(ctx context.Context, pool *pgxpool.Pool, txOptions pgx.TxOptions, f func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, txOptions)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx rollback error: %v; original error: %w", rbErr, err)
		}
		return err
	}
	return tx.Commit(ctx)
}

// Stop gracefully stops the archiver service.
func (as *ArchiverService) Stop() {
	as.cancelFn()
}

func main() {
	as := NewArchiverService()
	go as.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	as.Stop()
	log.Println("Archiver shutdown complete.")
}

// getEnv retrieves an environment variable's value or returns a default.
func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

// getEnvInt retrieves an integer value from an environment variable or returns a default value.
func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}
