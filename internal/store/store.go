// Package store keeps the history of finished runs in LevelDB so that runs
// can be listed, served and compared later.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"

	"github.com/fxnlabs/perfsuite/internal/suite"
)

// ErrNotFound is returned when no run has the requested ID.
var ErrNotFound = errors.New("run not found")

var (
	runPrefix   = []byte("run/")
	baselineKey = []byte("meta/baseline")
)

// idLayout sorts lexically in start order.
const idLayout = "20060102T150405.000000000Z"

// Entry describes a stored run without its results.
type Entry struct {
	ID       string    `json:"id"`
	Started  time.Time `json:"started"`
	Kernels  int       `json:"kernels"`
	Failures int       `json:"failures"`
	Valid    bool      `json:"valid"`
}

// Store is a run history. LevelDB handles its own synchronization.
type Store struct {
	db     *leveldb.DB
	logger *zap.Logger
}

// Open opens or creates the store at path. An empty path keeps the history
// in memory.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var db *leveldb.DB
	var err error
	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open run store at %s: %w", path, err)
	}
	return &Store{db: db, logger: logger.Named("store")}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ID returns the key a run started at t is stored under.
func ID(t time.Time) string {
	return t.UTC().Format(idLayout)
}

func runKey(id string) []byte {
	return append(append([]byte{}, runPrefix...), id...)
}

// Save stores sum and returns its ID. Saving a run with the same start
// time replaces it.
func (s *Store) Save(sum *suite.Summary) (string, error) {
	data, err := json.Marshal(sum)
	if err != nil {
		return "", fmt.Errorf("encode run: %w", err)
	}
	id := ID(sum.Started)
	if err := s.db.Put(runKey(id), data, nil); err != nil {
		return "", fmt.Errorf("save run %s: %w", id, err)
	}
	s.logger.Debug("run saved", zap.String("id", id), zap.Int("bytes", len(data)))
	return id, nil
}

// Get returns the run stored under id.
func (s *Store) Get(id string) (*suite.Summary, error) {
	data, err := s.db.Get(runKey(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	var sum suite.Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &sum, nil
}

// List returns every stored run, oldest first.
func (s *Store) List() ([]Entry, error) {
	iter := s.db.NewIterator(util.BytesPrefix(runPrefix), nil)
	defer iter.Release()

	var out []Entry
	for iter.Next() {
		var sum suite.Summary
		if err := json.Unmarshal(iter.Value(), &sum); err != nil {
			return nil, fmt.Errorf("decode run %s: %w", iter.Key(), err)
		}
		e := Entry{
			ID:       string(iter.Key()[len(runPrefix):]),
			Started:  sum.Started,
			Kernels:  len(sum.Kernels),
			Failures: sum.Failures,
			Valid:    true,
		}
		for _, k := range sum.Kernels {
			e.Valid = e.Valid && k.Valid
		}
		out = append(out, e)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// Latest returns the most recent run.
func (s *Store) Latest() (*suite.Summary, error) {
	iter := s.db.NewIterator(util.BytesPrefix(runPrefix), nil)
	defer iter.Release()
	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: store is empty", ErrNotFound)
	}
	return s.Get(string(iter.Key()[len(runPrefix):]))
}

// Delete removes a run. A baseline pointing at it is cleared too.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Get(runKey(id), nil); errors.Is(err, leveldb.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	batch := new(leveldb.Batch)
	batch.Delete(runKey(id))
	if base, err := s.db.Get(baselineKey, nil); err == nil && string(base) == id {
		batch.Delete(baselineKey)
	}
	return s.db.Write(batch, nil)
}

// SetBaseline marks id as the run others are compared with.
func (s *Store) SetBaseline(id string) error {
	if _, err := s.db.Get(runKey(id), nil); errors.Is(err, leveldb.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.db.Put(baselineKey, []byte(id), nil)
}

// Baseline returns the marked baseline run.
func (s *Store) Baseline() (*suite.Summary, error) {
	id, err := s.db.Get(baselineKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: no baseline set", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s.Get(string(id))
}
