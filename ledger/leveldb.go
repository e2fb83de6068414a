package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	prefixAnchor = []byte("anchor/")
	prefixSeq    = []byte("seq/")
	keyHead      = []byte("meta/head")
)

type head struct {
	Sequence  uint64 `json:"sequence"`
	ChainHash string `json:"chainHash"`
}

// LevelDB is a ledger persisted in a goleveldb database. Appends are serialized by
// a mutex and written as a single synced batch.
type LevelDB struct {
	db   *leveldb.DB
	opts options

	mu     sync.Mutex
	head   head
	closed bool
}

// OpenLevelDB opens or creates a ledger at path.
func OpenLevelDB(path string, opts ...Option) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return newLevelDB(db, opts)
}

// OpenMemLevelDB opens a ledger on goleveldb's in-memory storage.
func OpenMemLevelDB(opts ...Option) (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return newLevelDB(db, opts)
}

func newLevelDB(db *leveldb.DB, opts []Option) (*LevelDB, error) {
	l := &LevelDB{db: db, opts: buildOptions(opts), head: head{ChainHash: GenesisHash}}
	raw, err := db.Get(keyHead, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
	case err != nil:
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	default:
		if err := json.Unmarshal(raw, &l.head); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: corrupt head: %v", ErrLedgerUnavailable, err)
		}
	}
	return l, nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, len(prefixSeq)+8)
	copy(k, prefixSeq)
	binary.BigEndian.PutUint64(k[len(prefixSeq):], seq)
	return k
}

func anchorKey(logID string) []byte {
	return append(append([]byte(nil), prefixAnchor...), logID...)
}

func (l *LevelDB) Append(_ context.Context, a Anchor) (Anchor, error) {
	if err := validate(a); err != nil {
		return Anchor{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return Anchor{}, ErrLedgerClosed
	}

	exists, err := l.db.Has(anchorKey(a.LogID), nil)
	if err != nil {
		return Anchor{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if exists {
		return Anchor{}, ErrAnchorExists
	}

	sealed := seal(a, l.head.Sequence+1, l.head.ChainHash, l.opts.now())
	body, err := json.Marshal(sealed)
	if err != nil {
		return Anchor{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	next := head{Sequence: sealed.Sequence, ChainHash: sealed.ChainHash}
	headBody, err := json.Marshal(next)
	if err != nil {
		return Anchor{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], sealed.Sequence)

	batch := new(leveldb.Batch)
	batch.Put(seqKey(sealed.Sequence), body)
	batch.Put(anchorKey(a.LogID), seqBuf[:])
	batch.Put(keyHead, headBody)
	if err := l.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return Anchor{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	l.head = next
	return sealed, nil
}

func (l *LevelDB) Get(_ context.Context, logID string) (Anchor, error) {
	if l.isClosed() {
		return Anchor{}, ErrLedgerClosed
	}
	seqRaw, err := l.db.Get(anchorKey(logID), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Anchor{}, ErrAnchorNotFound
	}
	if err != nil {
		return Anchor{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if len(seqRaw) != 8 {
		return Anchor{}, fmt.Errorf("%w: corrupt index for %s", ErrLedgerUnavailable, logID)
	}
	raw, err := l.db.Get(seqKey(binary.BigEndian.Uint64(seqRaw)), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Anchor{}, ErrAnchorNotFound
	}
	if err != nil {
		return Anchor{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	var a Anchor
	if err := json.Unmarshal(raw, &a); err != nil {
		return Anchor{}, fmt.Errorf("%w: corrupt anchor %s: %v", ErrLedgerUnavailable, logID, err)
	}
	return a, nil
}

// scan walks anchors in sequence order, stopping when fn returns false.
func (l *LevelDB) scan(fn func(Anchor) bool) error {
	iter := l.db.NewIterator(util.BytesPrefix(prefixSeq), nil)
	defer iter.Release()
	for iter.Next() {
		var a Anchor
		if err := json.Unmarshal(iter.Value(), &a); err != nil {
			return fmt.Errorf("%w: corrupt anchor at %x: %v", ErrLedgerUnavailable, iter.Key(), err)
		}
		if !fn(a) {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

func (l *LevelDB) List(_ context.Context, offset, limit int) ([]Anchor, error) {
	if l.isClosed() {
		return nil, ErrLedgerClosed
	}
	if offset < 0 {
		offset = 0
	}
	out := make([]Anchor, 0)
	i := 0
	err := l.scan(func(a Anchor) bool {
		if i >= offset {
			out = append(out, a)
		}
		i++
		return limit <= 0 || len(out) < limit
	})
	return out, err
}

func (l *LevelDB) Stats(_ context.Context) (Stats, error) {
	if l.isClosed() {
		return Stats{}, ErrLedgerClosed
	}
	l.mu.Lock()
	h := l.head
	l.mu.Unlock()

	s := Stats{Anchors: h.Sequence, HeadHash: h.ChainHash, ByType: make(map[string]uint64)}
	err := l.scan(func(a Anchor) bool {
		s.ByType[a.LogType]++
		s.LastAppend = a.BlockTimestamp
		return true
	})
	return s, err
}

func (l *LevelDB) VerifyChain(_ context.Context) (ChainReport, error) {
	if l.isClosed() {
		return ChainReport{}, ErrLedgerClosed
	}
	l.mu.Lock()
	h := l.head
	l.mu.Unlock()

	v := newChainVerifier()
	if err := l.scan(v.check); err != nil {
		return ChainReport{}, err
	}
	if v.report.Valid && (v.prev != h.ChainHash || v.next-1 != h.Sequence) {
		v.fail(h.Sequence, "head mismatch")
	}
	return v.report, nil
}

func (l *LevelDB) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

func (l *LevelDB) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
