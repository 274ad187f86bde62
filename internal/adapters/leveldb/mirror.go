// Package leveldb stores mirrored bitmap words in a LevelDB database.
//
// Keys are the pool name, a zero separator and the word index encoded so
// that byte order equals numeric order; values are the 32-byte big-endian
// bitmap.
package leveldb

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/bft-labs/ticksync/internal/domain"
)

// Mirror implements ports.Mirror on top of LevelDB.
type Mirror struct {
	db *leveldb.DB
}

// Open opens (or creates) a mirror database in dir.
func Open(dir string) (*Mirror, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open mirror %s: %w", dir, err)
	}
	return &Mirror{db: db}, nil
}

// OpenMemory opens a mirror backed by memory storage.
func OpenMemory() (*Mirror, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Mirror{db: db}, nil
}

// Close releases the database.
func (m *Mirror) Close() error {
	return m.db.Close()
}

// Merge writes all words of one batch in a single LevelDB batch.
func (m *Mirror) Merge(ctx context.Context, pool string, words domain.Words) error {
	b := new(leveldb.Batch)
	for idx, v := range words {
		val := v.Bytes32()
		b.Put(wordKey(pool, idx), val[:])
	}
	if err := m.db.Write(b, nil); err != nil {
		return fmt.Errorf("write %d words: %w", len(words), err)
	}
	return nil
}

// Load returns the stored words of pool inside iv.
func (m *Mirror) Load(ctx context.Context, pool string, iv domain.WordInterval) (domain.Words, error) {
	out := make(domain.Words)
	if iv.Len() == 0 {
		return out, nil
	}
	rng := &util.Range{Start: wordKey(pool, iv.Min), Limit: wordKey(pool, iv.Max+1)}
	it := m.db.NewIterator(rng, nil)
	defer it.Release()

	for it.Next() {
		idx, ok := decodeWordKey(pool, it.Key())
		if !ok {
			continue
		}
		out[idx] = new(uint256.Int).SetBytes(it.Value())
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate %s %v: %w", pool, iv, err)
	}
	return out, nil
}

func wordKey(pool string, idx domain.WordIndex) []byte {
	key := make([]byte, len(pool)+1+4)
	copy(key, pool)
	binary.BigEndian.PutUint32(key[len(pool)+1:], uint32(idx)+0x80000000)
	return key
}

func decodeWordKey(pool string, key []byte) (domain.WordIndex, bool) {
	if len(key) != len(pool)+5 {
		return 0, false
	}
	return domain.WordIndex(binary.BigEndian.Uint32(key[len(pool)+1:]) - 0x80000000), true
}
