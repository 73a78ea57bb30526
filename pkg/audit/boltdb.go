package audit

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var bucketLog = []byte("sync_log")

// BoltLog implements Log using an embedded BoltDB file. One bucket,
// keyed by an auto-incrementing sequence number so records come back out
// in append order.
type BoltLog struct {
	db *bolt.DB
}

// NewBoltLog opens (creating if absent) the audit log at <dataDir>/audit.db.
func NewBoltLog(dataDir string) (*BoltLog, error) {
	dbPath := filepath.Join(dataDir, "audit.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLog)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltLog{db: db}, nil
}

// Close closes the underlying database.
func (l *BoltLog) Close() error {
	return l.db.Close()
}

// Append writes r under the next sequence number, which also becomes
// r.Seq in the stored record.
func (l *BoltLog) Append(r Record) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLog)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		r.Seq = seq
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
}

// Recent returns up to the last n records in append order, oldest first.
func (l *BoltLog) Recent(n int) ([]Record, error) {
	var all []Record
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLog)
		return b.ForEach(func(k, v []byte) error {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			all = append(all, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
