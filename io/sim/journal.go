package sim

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/distnode/core/message"
	"github.com/vadiminshakov/gowal"
)

const journalPrefix = "journal_"

// Record is one routed line as the journal saw it.
type Record struct {
	Index   uint64
	Dropped bool
	Raw     *message.Raw
	Line    []byte
}

const (
	keyDelivered = "delivered"
	keyDropped   = "dropped"
)

// journal appends every routed line to a gowal log under an increasing index.
type journal struct {
	mu   sync.Mutex
	wal  *gowal.Wal
	next uint64
}

func journalConfig(dir string) gowal.Config {
	return gowal.Config{
		Dir:              dir,
		Prefix:           journalPrefix,
		SegmentThreshold: 1000,
		MaxSegments:      1000,
		IsInSyncDiskMode: false,
	}
}

func openJournal(dir string) (*journal, error) {
	w, err := gowal.NewWAL(journalConfig(dir))
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}
	return &journal{wal: w}, nil
}

func (j *journal) record(line []byte, dropped bool) error {
	if j == nil {
		return nil
	}

	key := keyDelivered
	if dropped {
		key = keyDropped
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.wal.Write(j.next, key, line); err != nil {
		return errors.Wrapf(err, "journal line %d", j.next)
	}
	j.next++
	return nil
}

func (j *journal) close() error {
	if j == nil {
		return nil
	}
	return j.wal.Close()
}

// ReadJournal loads the journal a stopped cluster left in dir, in routing order.
func ReadJournal(dir string) ([]Record, error) {
	w, err := gowal.NewWAL(journalConfig(dir))
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}
	defer w.Close()

	var records []Record
	for msg := range w.Iterator() {
		raw, err := message.Parse(msg.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "journal line %d", msg.Idx)
		}
		records = append(records, Record{
			Index:   msg.Idx,
			Dropped: msg.Key == keyDropped,
			Raw:     raw,
			Line:    msg.Value,
		})
	}
	sort.Slice(records, func(i, k int) bool { return records[i].Index < records[k].Index })
	return records, nil
}
