package syncer

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/kslji/trackUserAddress/internal/chain"
	"github.com/kslji/trackUserAddress/internal/domain/model"
)

// memCheckpoints follows the postgres repo: reads normalize Both to From,
// writes keep the direction as given. Every write is kept in history.
type memCheckpoints struct {
	mu      sync.Mutex
	rows    map[string]int64
	history map[string][]int64
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{rows: map[string]int64{}, history: map[string][]int64{}}
}

func checkpointRowKey(address string, category model.Category, direction model.Direction) string {
	return address + "|" + category.String() + "|" + direction.String()
}

func (m *memCheckpoints) Get(_ context.Context, address string, category model.Category, direction model.Direction) (*model.SyncCheckpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := direction.CheckpointKey()
	block, ok := m.rows[checkpointRowKey(address, category, key)]
	if !ok {
		return nil, nil
	}
	return &model.SyncCheckpoint{Address: address, Category: category, Direction: key, LastBlockProcessed: block}, nil
}

func (m *memCheckpoints) Upsert(_ context.Context, address string, category model.Category, direction model.Direction, lastBlockProcessed int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := checkpointRowKey(address, category, direction)
	m.rows[key] = lastBlockProcessed
	m.history[key] = append(m.history[key], lastBlockProcessed)
	return nil
}

func (m *memCheckpoints) writes(address string, category model.Category, direction model.Direction) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.history[checkpointRowKey(address, category, direction)])
}

// memArchive applies the same wildcard and ordering rules as the postgres
// transfer query. upserts counts every record written, duplicates included.
type memArchive struct {
	mu      sync.Mutex
	byHash  map[string]model.TransferRecord
	upserts int
}

func newMemArchive() *memArchive {
	return &memArchive{byHash: map[string]model.TransferRecord{}}
}

func (m *memArchive) Query(_ context.Context, address string, category model.Category, maxBlock int64, direction model.Direction) ([]model.TransferRecord, error) {
	if !category.Valid() {
		return nil, model.ErrInvalidCategory
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	wildcard := category.IsWildcard() || direction.IsWildcard()
	var out []model.TransferRecord
	for _, r := range m.byHash {
		if r.Address != address || r.BlockNumber > maxBlock {
			continue
		}
		if !wildcard && (r.Category != category || r.Direction != direction) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].TxHash < out[j].TxHash
	})
	return out, nil
}

func (m *memArchive) UpsertBatch(_ context.Context, records []model.TransferRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.byHash[r.TxHash] = r
		m.upserts++
	}
	return nil
}

func (m *memArchive) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHash)
}

// memLedger serves a fixed event list through the paging contract. The page
// key is the offset into the filtered, block-ordered result.
type memLedger struct {
	mu       sync.Mutex
	events   []model.TransferEvent
	requests []chain.PageRequest
}

func (l *memLedger) FetchPage(_ context.Context, req chain.PageRequest) (*chain.Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, req)

	var matched []model.TransferEvent
	for _, e := range l.events {
		block, err := e.BlockNumber()
		if err != nil {
			return nil, err
		}
		if block < req.FromBlock || block > req.ToBlock || !slices.Contains(req.Categories, e.Category) {
			continue
		}
		side := e.From
		if req.Filter == model.FilterReceiver {
			side = e.To
		}
		if strings.EqualFold(side, req.Address) {
			matched = append(matched, e)
		}
	}

	offset := 0
	if req.PageKey != "" {
		n, err := strconv.Atoi(req.PageKey)
		if err != nil {
			return nil, fmt.Errorf("bad page key %q", req.PageKey)
		}
		offset = n
	}
	end := min(offset+req.PageSize, len(matched))
	page := &chain.Page{Transfers: slices.Clone(matched[offset:end])}
	if end < len(matched) {
		page.PageKey = strconv.Itoa(end)
	}
	return page, nil
}

func (l *memLedger) fetchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

func sent(hash string, block int64) model.TransferEvent {
	return model.TransferEvent{Hash: hash, BlockNum: fmt.Sprintf("0x%x", block), Category: model.CategoryERC20, From: testAddr, To: "0xdef"}
}

func received(hash string, block int64) model.TransferEvent {
	return model.TransferEvent{Hash: hash, BlockNum: fmt.Sprintf("0x%x", block), Category: model.CategoryERC20, From: "0xdef", To: testAddr}
}

func hashes(transfers []model.Transfer) []string {
	out := make([]string, len(transfers))
	for i, t := range transfers {
		out[i] = t.Hash()
	}
	return out
}
