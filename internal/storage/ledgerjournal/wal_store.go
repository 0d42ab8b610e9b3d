// Package ledgerjournal keeps the local budget history journal in a WAL so the
// in-memory history survives restarts while the backend store is unreachable.
package ledgerjournal

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/exgate/internal/domain"
	"github.com/vadiminshakov/gowal"
)

const (
	defaultJournalDir   = "./wal/ledger"
	journalSegmentLimit = 1000
	journalMaxSegments  = 100
	entryKeyPrefix      = "ledger_entry_"
)

// Journal persists budget history entries in a WAL.
type Journal struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// Open initializes a WAL-backed journal under the provided directory.
func Open(dir string) (*Journal, error) {
	if dir == "" {
		dir = defaultJournalDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "ledger_",
		SegmentThreshold: journalSegmentLimit,
		MaxSegments:      journalMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init ledger journal WAL")
	}

	return &Journal{wal: wal}, nil
}

// Append writes the entry to the WAL. Entries must carry a strategy id.
func (j *Journal) Append(entry domain.BudgetHistoryEntry) error {
	if j == nil || j.wal == nil {
		return errors.New("ledger journal is not initialized")
	}
	if entry.StrategyID == "" {
		return domain.Errorf(domain.ErrValidation, "journal entry strategy id is required")
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal ledger entry")
	}

	key := fmt.Sprintf("%s%s", entryKeyPrefix, entry.StrategyID)

	j.mu.Lock()
	defer j.mu.Unlock()

	nextIndex := j.wal.CurrentIndex() + 1
	return j.wal.Write(nextIndex, key, payload)
}

// Replay calls fn for every journaled entry in write order. Undecodable records
// are reported through the returned error after the replay completes.
func (j *Journal) Replay(fn func(domain.BudgetHistoryEntry)) error {
	if j == nil || j.wal == nil {
		return errors.New("ledger journal is not initialized")
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	var bad int
	for msg := range j.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, entryKeyPrefix) {
			continue
		}
		var entry domain.BudgetHistoryEntry
		if err := json.Unmarshal(msg.Value, &entry); err != nil {
			bad++
			continue
		}
		fn(entry)
	}
	if bad > 0 {
		return errors.Errorf("skipped %d undecodable ledger entries", bad)
	}

	return nil
}

// CurrentIndex returns the latest WAL index stored.
func (j *Journal) CurrentIndex() uint64 {
	if j == nil || j.wal == nil {
		return 0
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	return j.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (j *Journal) Close() error {
	if j == nil || j.wal == nil {
		return errors.New("ledger journal is not initialized")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	return j.wal.Close()
}
