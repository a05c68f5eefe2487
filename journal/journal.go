// Package journal records the outcome of every dispatched chunk in a bbolt
// file so a run can be reconciled after the fact.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mezonai/balances-maintenance/jsonx"
	"github.com/mezonai/balances-maintenance/types"
	bolt "go.etcd.io/bbolt"
)

var (
	runsBucket = []byte("runs")
	metaKey    = []byte("meta")
	chunksKey  = []byte("chunks")
)

var ErrClosed = errors.New("journal: closed")

// RunMeta describes one maintenance run.
type RunMeta struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Endpoint  string    `json:"endpoint"`
	Mode      string    `json:"mode"`
	DryRun    bool      `json:"dry_run"`
}

// Journal stores runs as nested buckets: runs/<run id>/{meta, chunks/<seq>}.
type Journal struct {
	mu     sync.Mutex
	once   sync.Once
	db     *bolt.DB
	runID  string
	closed bool
}

func Open(path string, meta RunMeta) (*Journal, error) {
	if meta.RunID == "" {
		return nil, fmt.Errorf("journal: empty run id")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		runs, err := tx.CreateBucketIfNotExists(runsBucket)
		if err != nil {
			return err
		}
		run, err := runs.CreateBucketIfNotExists([]byte(meta.RunID))
		if err != nil {
			return err
		}
		if _, err := run.CreateBucketIfNotExists(chunksKey); err != nil {
			return err
		}
		raw, err := jsonx.Marshal(&meta)
		if err != nil {
			return err
		}
		return run.Put(metaKey, raw)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise journal: %w", err)
	}
	return &Journal{db: db, runID: meta.RunID}, nil
}

func seqKey(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}

// Record appends a chunk outcome to the current run.
func (j *Journal) Record(outcome types.ChunkOutcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}

	raw, err := jsonx.Marshal(&outcome)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		chunks := tx.Bucket(runsBucket).Bucket([]byte(j.runID)).Bucket(chunksKey)
		seq, err := chunks.NextSequence()
		if err != nil {
			return err
		}
		return chunks.Put(seqKey(seq), raw)
	})
}

// Runs lists the recorded runs in run id order.
func (j *Journal) Runs() ([]RunMeta, error) {
	var out []RunMeta
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(runsBucket).ForEachBucket(func(k []byte) error {
			raw := tx.Bucket(runsBucket).Bucket(k).Get(metaKey)
			var meta RunMeta
			if err := jsonx.Unmarshal(raw, &meta); err != nil {
				return fmt.Errorf("run %s meta: %w", k, err)
			}
			out = append(out, meta)
			return nil
		})
	})
	return out, err
}

// Entries returns the outcomes of runID in recording order.
func (j *Journal) Entries(runID string) ([]types.ChunkOutcome, error) {
	var out []types.ChunkOutcome
	err := j.db.View(func(tx *bolt.Tx) error {
		run := tx.Bucket(runsBucket).Bucket([]byte(runID))
		if run == nil {
			return fmt.Errorf("journal: unknown run %q", runID)
		}
		return run.Bucket(chunksKey).ForEach(func(_, v []byte) error {
			var o types.ChunkOutcome
			if err := jsonx.Unmarshal(v, &o); err != nil {
				return err
			}
			out = append(out, o)
			return nil
		})
	})
	return out, err
}

func (j *Journal) RunID() string {
	return j.runID
}

func (j *Journal) Close() error {
	var err error
	j.once.Do(func() {
		j.mu.Lock()
		j.closed = true
		j.mu.Unlock()
		err = j.db.Close()
	})
	return err
}
