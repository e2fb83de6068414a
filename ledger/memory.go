package ledger

import (
	"context"
	"sync"
)

// Memory is an in-process ledger. It is safe for concurrent use; appends are
// serialized.
type Memory struct {
	mu      sync.RWMutex
	opts    options
	anchors []Anchor
	index   map[string]int
	closed  bool
}

// NewMemory creates an empty in-memory ledger.
func NewMemory(opts ...Option) *Memory {
	return &Memory{opts: buildOptions(opts), index: make(map[string]int)}
}

func (m *Memory) Append(_ context.Context, a Anchor) (Anchor, error) {
	if err := validate(a); err != nil {
		return Anchor{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Anchor{}, ErrLedgerClosed
	}
	if _, ok := m.index[a.LogID]; ok {
		return Anchor{}, ErrAnchorExists
	}

	prev := GenesisHash
	if n := len(m.anchors); n > 0 {
		prev = m.anchors[n-1].ChainHash
	}
	sealed := seal(a, uint64(len(m.anchors))+1, prev, m.opts.now())
	m.index[a.LogID] = len(m.anchors)
	m.anchors = append(m.anchors, sealed)
	return sealed, nil
}

func (m *Memory) Get(_ context.Context, logID string) (Anchor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Anchor{}, ErrLedgerClosed
	}
	i, ok := m.index[logID]
	if !ok {
		return Anchor{}, ErrAnchorNotFound
	}
	return m.anchors[i], nil
}

func (m *Memory) List(_ context.Context, offset, limit int) ([]Anchor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrLedgerClosed
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(m.anchors) {
		return []Anchor{}, nil
	}
	end := len(m.anchors)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]Anchor, end-offset)
	copy(out, m.anchors[offset:end])
	return out, nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Stats{}, ErrLedgerClosed
	}
	s := Stats{Anchors: uint64(len(m.anchors)), HeadHash: GenesisHash, ByType: make(map[string]uint64)}
	for _, a := range m.anchors {
		s.ByType[a.LogType]++
	}
	if n := len(m.anchors); n > 0 {
		s.HeadHash = m.anchors[n-1].ChainHash
		s.LastAppend = m.anchors[n-1].BlockTimestamp
	}
	return s, nil
}

func (m *Memory) VerifyChain(_ context.Context) (ChainReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ChainReport{}, ErrLedgerClosed
	}
	v := newChainVerifier()
	for _, a := range m.anchors {
		if !v.check(a) {
			break
		}
	}
	return v.report, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
