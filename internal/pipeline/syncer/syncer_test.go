package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/kslji/trackUserAddress/internal/chain"
	chainmocks "github.com/kslji/trackUserAddress/internal/chain/mocks"
	"github.com/kslji/trackUserAddress/internal/domain/model"
	"github.com/kslji/trackUserAddress/internal/failure"
	storemocks "github.com/kslji/trackUserAddress/internal/store/mocks"
)

const testAddr = "0xabc"

type harness struct {
	checkpoints *storemocks.MockCheckpointRepository
	archive     *storemocks.MockTransferRepository
	fetcher     *chainmocks.MockLedgerFetcher
	head        *chainmocks.MockHeadSource
}

func newHarness(t *testing.T) *harness {
	ctrl := gomock.NewController(t)
	return &harness{
		checkpoints: storemocks.NewMockCheckpointRepository(ctrl),
		archive:     storemocks.NewMockTransferRepository(ctrl),
		fetcher:     chainmocks.NewMockLedgerFetcher(ctrl),
		head:        chainmocks.NewMockHeadSource(ctrl),
	}
}

func (h *harness) syncer(cfg Config, opts ...Option) *Syncer {
	return New(h.checkpoints, h.archive, h.fetcher, h.head, cfg, opts...)
}

func event(hash, blockNum string, category model.Category) model.TransferEvent {
	return model.TransferEvent{Hash: hash, BlockNum: blockNum, Category: category, From: testAddr, To: "0xdef"}
}

func record(hash string, block int64, category model.Category, direction model.Direction) model.TransferRecord {
	return model.TransferRecord{
		TxHash:      hash,
		Address:     testAddr,
		BlockNumber: block,
		Category:    category,
		Direction:   direction,
		Metadata:    []byte(`{}`),
	}
}

func TestSynchronize_ScenarioA_FirstSync(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.checkpoints.EXPECT().Get(gomock.Any(), testAddr, model.CategoryERC20, model.DirectionFrom).Return(nil, nil)
	h.archive.EXPECT().Query(gomock.Any(), testAddr, model.CategoryERC20, int64(-1), model.DirectionFrom).Return(nil, nil)
	h.fetcher.EXPECT().FetchPage(gomock.Any(), chain.PageRequest{
		Address:    testAddr,
		Filter:     model.FilterSender,
		Categories: []model.Category{model.CategoryERC20},
		FromBlock:  0,
		ToBlock:    100,
		PageSize:   1000,
	}).Return(&chain.Page{Transfers: []model.TransferEvent{event("0x01", "0x10", model.CategoryERC20)}}, nil)
	h.archive.EXPECT().UpsertBatch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, records []model.TransferRecord) error {
			require.Len(t, records, 1)
			assert.Equal(t, "0x01", records[0].TxHash)
			assert.Equal(t, testAddr, records[0].Address)
			assert.Equal(t, int64(16), records[0].BlockNumber)
			assert.Equal(t, model.CategoryERC20, records[0].Category)
			assert.Equal(t, model.DirectionFrom, records[0].Direction)
			assert.JSONEq(t, `"0x10"`, jsonField(t, records[0].Metadata, "blockNum"))
			return nil
		})
	h.checkpoints.EXPECT().Upsert(gomock.Any(), testAddr, model.CategoryERC20, model.DirectionFrom, int64(100)).Return(nil)

	got, err := h.syncer(Config{}).Synchronize(ctx, model.SyncRequest{
		Address:   "0xABC",
		Category:  model.CategoryERC20,
		Direction: model.DirectionFrom,
		FromBlock: 0,
		ToBlock:   100,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotNil(t, got[0].Event)
	assert.Equal(t, "0x01", got[0].Hash())
	assert.Equal(t, int64(16), got[0].BlockNumber())
}

func TestSynchronize_ScenarioB_CacheHit(t *testing.T) {
	h := newHarness(t)
	stored := []model.TransferRecord{record("0x01", 16, model.CategoryERC20, model.DirectionFrom)}

	h.checkpoints.EXPECT().Get(gomock.Any(), testAddr, model.CategoryERC20, model.DirectionFrom).
		Return(&model.SyncCheckpoint{LastBlockProcessed: 100}, nil)
	h.archive.EXPECT().Query(gomock.Any(), testAddr, model.CategoryERC20, int64(100), model.DirectionFrom).Return(stored, nil)

	got, err := h.syncer(Config{}).Synchronize(context.Background(), model.SyncRequest{
		Address:   testAddr,
		Category:  model.CategoryERC20,
		Direction: model.DirectionFrom,
		ToBlock:   100,
	})
	require.NoError(t, err)
	assert.Equal(t, model.FromRecords(stored), got)
}

func TestSynchronize_CacheHitWhenCheckpointAhead(t *testing.T) {
	h := newHarness(t)

	h.checkpoints.EXPECT().Get(gomock.Any(), testAddr, model.CategoryAll, model.DirectionBoth).
		Return(&model.SyncCheckpoint{LastBlockProcessed: 500}, nil)
	h.archive.EXPECT().Query(gomock.Any(), testAddr, model.CategoryAll, int64(120), model.DirectionBoth).Return(nil, nil)

	got, err := h.syncer(Config{}).Synchronize(context.Background(), model.SyncRequest{
		Address:   testAddr,
		Category:  model.CategoryAll,
		Direction: model.DirectionBoth,
		ToBlock:   120,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSynchronize_ScenarioC_BothWithEmptySeed(t *testing.T) {
	h := newHarness(t)

	h.checkpoints.EXPECT().Get(gomock.Any(), testAddr, model.CategoryAll, model.DirectionBoth).Return(nil, nil)
	h.archive.EXPECT().Query(gomock.Any(), testAddr, model.CategoryAll, int64(-1), model.DirectionBoth).Return(nil, nil)

	got, err := h.syncer(Config{}).Synchronize(context.Background(), model.SyncRequest{
		Address:   testAddr,
		Category:  model.CategoryAll,
		Direction: model.DirectionBoth,
		FromBlock: 0,
		ToBlock:   100,
	})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSynchronize_BothWithSeedFetchesReceiverSide(t *testing.T) {
	h := newHarness(t)
	seed := []model.TransferRecord{record("0xaa", 40, model.CategoryERC20, model.DirectionFrom)}

	h.checkpoints.EXPECT().Get(gomock.Any(), testAddr, model.CategoryERC20, model.DirectionBoth).
		Return(&model.SyncCheckpoint{LastBlockProcessed: 50}, nil)
	h.archive.EXPECT().Query(gomock.Any(), testAddr, model.CategoryERC20, int64(50), model.DirectionBoth).Return(seed, nil)
	h.fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req chain.PageRequest) (*chain.Page, error) {
			assert.Equal(t, model.FilterReceiver, req.Filter)
			assert.Equal(t, int64(51), req.FromBlock)
			assert.Equal(t, int64(90), req.ToBlock)
			return &chain.Page{Transfers: []model.TransferEvent{event("0xbb", "0x55", model.CategoryERC20)}}, nil
		})
	h.archive.EXPECT().UpsertBatch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, records []model.TransferRecord) error {
			require.Len(t, records, 1)
			assert.Equal(t, model.DirectionTo, records[0].Direction)
			return nil
		})
	h.checkpoints.EXPECT().Upsert(gomock.Any(), testAddr, model.CategoryERC20, model.DirectionBoth, int64(90)).Return(nil)

	got, err := h.syncer(Config{}).Synchronize(context.Background(), model.SyncRequest{
		Address:   testAddr,
		Category:  model.CategoryERC20,
		Direction: model.DirectionBoth,
		ToBlock:   90,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NotNil(t, got[0].Record, "seed comes first")
	assert.Equal(t, "0xaa", got[0].Hash())
	assert.NotNil(t, got[1].Event)
	assert.Equal(t, "0xbb", got[1].Hash())
}

func TestSynchronize_ResumesAfterCheckpoint(t *testing.T) {
	h := newHarness(t)

	h.checkpoints.EXPECT().Get(gomock.Any(), testAddr, model.CategoryExternal, model.DirectionTo).
		Return(&model.SyncCheckpoint{LastBlockProcessed: 100}, nil)
	h.archive.EXPECT().Query(gomock.Any(), testAddr, model.CategoryExternal, int64(100), model.DirectionTo).Return(nil, nil)
	h.fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req chain.PageRequest) (*chain.Page, error) {
			assert.Equal(t, int64(101), req.FromBlock)
			assert.Equal(t, int64(150), req.ToBlock)
			assert.Equal(t, model.FilterReceiver, req.Filter)
			return &chain.Page{}, nil
		})
	h.checkpoints.EXPECT().Upsert(gomock.Any(), testAddr, model.CategoryExternal, model.DirectionTo, int64(150)).Return(nil)

	got, err := h.syncer(Config{DefaultFromBlock: 7}).Synchronize(context.Background(), model.SyncRequest{
		Address:   testAddr,
		Category:  model.CategoryExternal,
		Direction: model.DirectionTo,
		FromBlock: 3,
		ToBlock:   150,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSynchronize_StartBlockDefaults(t *testing.T) {
	tests := []struct {
		name      string
		cfgFrom   int64
		reqFrom   int64
		wantStart int64
	}{
		{name: "request from block", cfgFrom: 10, reqFrom: 5, wantStart: 5},
		{name: "configured default", cfgFrom: 10, reqFrom: -1, wantStart: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.checkpoints.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
			h.archive.EXPECT().Query(gomock.Any(), testAddr, model.CategoryERC20, tt.wantStart-1, model.DirectionFrom).Return(nil, nil)
			h.fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, req chain.PageRequest) (*chain.Page, error) {
					assert.Equal(t, tt.wantStart, req.FromBlock)
					return &chain.Page{}, nil
				})
			h.checkpoints.EXPECT().Upsert(gomock.Any(), testAddr, model.CategoryERC20, model.DirectionFrom, int64(100)).Return(nil)

			_, err := h.syncer(Config{DefaultFromBlock: tt.cfgFrom}).Synchronize(context.Background(), model.SyncRequest{
				Address:   testAddr,
				Category:  model.CategoryERC20,
				Direction: model.DirectionFrom,
				FromBlock: tt.reqFrom,
				ToBlock:   100,
			})
			require.NoError(t, err)
		})
	}
}

func TestSynchronize_EmptyWindowSkipsFetch(t *testing.T) {
	h := newHarness(t)

	h.checkpoints.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	h.archive.EXPECT().Query(gomock.Any(), testAddr, model.CategoryERC20, int64(199), model.DirectionFrom).Return(nil, nil)

	got, err := h.syncer(Config{}).Synchronize(context.Background(), model.SyncRequest{
		Address:   testAddr,
		Category:  model.CategoryERC20,
		Direction: model.DirectionFrom,
		FromBlock: 200,
		ToBlock:   100,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSynchronize_PaginatesUntilNoPageKey(t *testing.T) {
	h := newHarness(t)

	h.checkpoints.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	h.archive.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

	base := chain.PageRequest{
		Address:    testAddr,
		Filter:     model.FilterSender,
		Categories: []model.Category{model.CategoryERC20},
		FromBlock:  0,
		ToBlock:    100,
		PageSize:   2,
	}
	second, third := base, base
	second.PageKey = "k1"
	third.PageKey = "k2"

	gomock.InOrder(
		h.fetcher.EXPECT().FetchPage(gomock.Any(), base).Return(&chain.Page{
			Transfers: []model.TransferEvent{event("0x01", "0x1", model.CategoryERC20), event("0x02", "0x2", model.CategoryERC20)},
			PageKey:   "k1",
		}, nil),
		h.fetcher.EXPECT().FetchPage(gomock.Any(), second).Return(&chain.Page{
			Transfers: []model.TransferEvent{event("0x03", "0x3", model.CategoryERC20)},
			PageKey:   "k2",
		}, nil),
		h.fetcher.EXPECT().FetchPage(gomock.Any(), third).Return(&chain.Page{}, nil),
	)
	h.archive.EXPECT().UpsertBatch(gomock.Any(), gomock.Len(2)).Return(nil)
	h.archive.EXPECT().UpsertBatch(gomock.Any(), gomock.Len(1)).Return(nil)
	h.checkpoints.EXPECT().Upsert(gomock.Any(), testAddr, model.CategoryERC20, model.DirectionFrom, int64(100)).Return(nil).Times(3)

	got, err := h.syncer(Config{PageSize: 2}).Synchronize(context.Background(), model.SyncRequest{
		Address:   testAddr,
		Category:  model.CategoryERC20,
		Direction: model.DirectionFrom,
		ToBlock:   100,
	})
	require.NoError(t, err)

	hashes := make([]string, 0, len(got))
	for _, tr := range got {
		hashes = append(hashes, tr.Hash())
	}
	assert.Equal(t, []string{"0x01", "0x02", "0x03"}, hashes)
}

func TestSynchronize_RequestPageSizeOverridesConfig(t *testing.T) {
	h := newHarness(t)

	h.checkpoints.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	h.archive.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	h.fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req chain.PageRequest) (*chain.Page, error) {
			assert.Equal(t, 25, req.PageSize)
			return &chain.Page{}, nil
		})
	h.checkpoints.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	_, err := h.syncer(Config{PageSize: 500}).Synchronize(context.Background(), model.SyncRequest{
		Address:   testAddr,
		Category:  model.CategoryERC20,
		Direction: model.DirectionFrom,
		ToBlock:   10,
		PageSize:  25,
	})
	require.NoError(t, err)
}

func TestSynchronize_AllExpandsCategories(t *testing.T) {
	h := newHarness(t)

	h.checkpoints.EXPECT().Get(gomock.Any(), testAddr, model.CategoryAll, model.DirectionFrom).Return(nil, nil)
	h.archive.EXPECT().Query(gomock.Any(), testAddr, model.CategoryAll, int64(-1), model.DirectionFrom).Return(nil, nil)
	h.fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req chain.PageRequest) (*chain.Page, error) {
			assert.Equal(t, []model.Category{
				model.CategoryERC20, model.CategoryERC721, model.CategoryExternal, model.CategoryInternal,
			}, req.Categories)
			return &chain.Page{Transfers: []model.TransferEvent{
				event("0x01", "0x5", model.CategoryExternal),
				event("0x02", "0x6", model.Category("specialnft")),
			}}, nil
		})
	h.archive.EXPECT().UpsertBatch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, records []model.TransferRecord) error {
			require.Len(t, records, 2)
			assert.Equal(t, model.CategoryExternal, records[0].Category, "record keeps the event category")
			assert.Equal(t, model.CategoryAll, records[1].Category, "unknown event category falls back to the request")
			return nil
		})
	h.checkpoints.EXPECT().Upsert(gomock.Any(), testAddr, model.CategoryAll, model.DirectionFrom, int64(10)).Return(nil)

	got, err := h.syncer(Config{}).Synchronize(context.Background(), model.SyncRequest{
		Address:   testAddr,
		Category:  model.CategoryAll,
		Direction: model.DirectionFrom,
		ToBlock:   10,
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSynchronize_InvalidInputFailsFast(t *testing.T) {
	tests := []struct {
		name string
		req  model.SyncRequest
		want error
	}{
		{
			name: "unknown category",
			req:  model.SyncRequest{Address: testAddr, Category: "nft", Direction: model.DirectionFrom, ToBlock: 1},
			want: model.ErrInvalidCategory,
		},
		{
			name: "empty category",
			req:  model.SyncRequest{Address: testAddr, Direction: model.DirectionFrom, ToBlock: 1},
			want: model.ErrInvalidCategory,
		},
		{
			name: "unknown direction",
			req:  model.SyncRequest{Address: testAddr, Category: model.CategoryERC20, Direction: "sideways", ToBlock: 1},
			want: model.ErrInvalidDirection,
		},
		{
			name: "negative to block",
			req:  model.SyncRequest{Address: testAddr, Category: model.CategoryERC20, Direction: model.DirectionFrom, ToBlock: -7},
			want: model.ErrInvalidBlockRange,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.syncer(Config{}).Synchronize(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, failure.ClassInvalidInput, failure.Classify(err))
		})
	}
}

func TestSynchronize_InvalidCategoryIsUnwrapped(t *testing.T) {
	h := newHarness(t)
	_, err := h.syncer(Config{}).Synchronize(context.Background(), model.SyncRequest{
		Address: testAddr, Category: "bogus", Direction: model.DirectionTo, ToBlock: 1,
	})
	assert.Equal(t, model.ErrInvalidCategory, err)
}

func TestSynchronize_ResolvesLatestFromHead(t *testing.T) {
	h := newHarness(t)

	h.head.EXPECT().GetHeadBlock(gomock.Any()).Return(int64(250), nil)
	h.checkpoints.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&model.SyncCheckpoint{LastBlockProcessed: 250}, nil)
	h.archive.EXPECT().Query(gomock.Any(), testAddr, model.CategoryERC20, int64(250), model.DirectionFrom).Return(nil, nil)

	_, err := h.syncer(Config{}).Synchronize(context.Background(), model.SyncRequest{
		Address:   testAddr,
		Category:  model.CategoryERC20,
		Direction: model.DirectionFrom,
		ToBlock:   model.BlockLatest,
	})
	require.NoError(t, err)
}

func TestSynchronize_HeadFailureIsRemote(t *testing.T) {
	h := newHarness(t)
	h.head.EXPECT().GetHeadBlock(gomock.Any()).Return(int64(0), errors.New("rpc down"))

	_, err := h.syncer(Config{}).Synchronize(context.Background(), model.SyncRequest{
		Address:   testAddr,
		Category:  model.CategoryERC20,
		Direction: model.DirectionFrom,
		ToBlock:   model.BlockLatest,
	})
	require.Error(t, err)
	assert.Equal(t, failure.ClassRemote, failure.Classify(err))
}

func TestSynchronize_LatestWithoutHeadSource(t *testing.T) {
	h := newHarness(t)
	s := New(h.checkpoints, h.archive, h.fetcher, nil, Config{})

	_, err := s.Synchronize(context.Background(), model.SyncRequest{
		Address:   testAddr,
		Category:  model.CategoryERC20,
		Direction: model.DirectionFrom,
		ToBlock:   model.BlockLatest,
	})
	require.ErrorIs(t, err, ErrNoHeadSource)
}

func TestSynchronize_CheckpointReadFailure(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("db down")
	h.checkpoints.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, boom)

	_, err := h.syncer(Config{}).Synchronize(context.Background(), model.SyncRequest{
		Address: testAddr, Category: model.CategoryERC20, Direction: model.DirectionFrom, ToBlock: 10,
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, failure.ClassPersistence, failure.Classify(err))
}

func TestSynchronize_FetchFailureAbortsWithoutWrites(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("provider 502")

	h.checkpoints.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	h.archive.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	h.fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any()).Return(nil, boom).Times(1)

	_, err := h.syncer(Config{}).Synchronize(context.Background(), model.SyncRequest{
		Address: testAddr, Category: model.CategoryERC20, Direction: model.DirectionFrom, ToBlock: 10,
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, failure.ClassRemote, failure.Classify(err))
}

func TestSynchronize_UndecodableBlockAborts(t *testing.T) {
	h := newHarness(t)

	h.checkpoints.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	h.archive.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	h.fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any()).Return(&chain.Page{
		Transfers: []model.TransferEvent{event("0x01", "not-hex", model.CategoryERC20)},
	}, nil)

	_, err := h.syncer(Config{}).Synchronize(context.Background(), model.SyncRequest{
		Address: testAddr, Category: model.CategoryERC20, Direction: model.DirectionFrom, ToBlock: 10,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0x01")
}

func TestSynchronize_ArchiveWriteFailureLeavesCheckpointWritten(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("archive unavailable")

	h.checkpoints.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	h.archive.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	h.fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any()).Return(&chain.Page{
		Transfers: []model.TransferEvent{event("0x01", "0x1", model.CategoryERC20)},
		PageKey:   "more",
	}, nil).Times(1)
	h.archive.EXPECT().UpsertBatch(gomock.Any(), gomock.Any()).Return(boom)
	h.checkpoints.EXPECT().Upsert(gomock.Any(), testAddr, model.CategoryERC20, model.DirectionFrom, int64(10)).Return(nil)

	_, err := h.syncer(Config{}).Synchronize(context.Background(), model.SyncRequest{
		Address: testAddr, Category: model.CategoryERC20, Direction: model.DirectionFrom, ToBlock: 10,
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, failure.ClassPersistence, failure.Classify(err))
}

func TestSynchronize_CheckpointWriteFailureLeavesArchiveWritten(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("checkpoint unavailable")

	h.checkpoints.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	h.archive.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	h.fetcher.EXPECT().FetchPage(gomock.Any(), gomock.Any()).Return(&chain.Page{
		Transfers: []model.TransferEvent{event("0x01", "0x1", model.CategoryERC20)},
		PageKey:   "more",
	}, nil).Times(1)
	h.archive.EXPECT().UpsertBatch(gomock.Any(), gomock.Len(1)).Return(nil)
	h.checkpoints.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(boom)

	_, err := h.syncer(Config{}).Synchronize(context.Background(), model.SyncRequest{
		Address: testAddr, Category: model.CategoryERC20, Direction: model.DirectionFrom, ToBlock: 10,
	})
	require.ErrorIs(t, err, boom)
}

type recordingLocker struct {
	keys     []string
	err      error
	lost     error
	unlocked int
}

func (l *recordingLocker) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return nil, nil, l.err
	}
	lockCtx, cancel := context.WithCancelCause(ctx)
	if l.lost != nil {
		cancel(l.lost)
	}
	return lockCtx, func() { l.unlocked++; cancel(nil) }, nil
}

func TestSynchronize_LocksOnWrittenCheckpointKey(t *testing.T) {
	h := newHarness(t)
	locker := &recordingLocker{}

	h.checkpoints.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&model.SyncCheckpoint{LastBlockProcessed: 10}, nil)
	h.archive.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

	_, err := h.syncer(Config{}, WithLocker(locker)).Synchronize(context.Background(), model.SyncRequest{
		Address: "0xABC", Category: model.CategoryERC20, Direction: model.DirectionBoth, ToBlock: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"0xabc|erc20|both"}, locker.keys)
	assert.Equal(t, 1, locker.unlocked)
}

func TestSynchronize_LockFailureSkipsStores(t *testing.T) {
	h := newHarness(t)
	locker := &recordingLocker{err: context.DeadlineExceeded}

	_, err := h.syncer(Config{}, WithLocker(locker)).Synchronize(context.Background(), model.SyncRequest{
		Address: testAddr, Category: model.CategoryERC20, Direction: model.DirectionFrom, ToBlock: 10,
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, failure.ClassCanceled, failure.Classify(err))
	assert.Zero(t, locker.unlocked)
}

func TestSynchronize_LostLockAbortsWithCause(t *testing.T) {
	h := newHarness(t)
	errLost := errors.New("lock lost")
	locker := &recordingLocker{lost: errLost}

	h.checkpoints.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, _ model.Category, _ model.Direction) (*model.SyncCheckpoint, error) {
			return nil, ctx.Err()
		})

	_, err := h.syncer(Config{}, WithLocker(locker)).Synchronize(context.Background(), model.SyncRequest{
		Address: testAddr, Category: model.CategoryERC20, Direction: model.DirectionFrom, ToBlock: 10,
	})
	require.ErrorIs(t, err, errLost)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, locker.unlocked)
}

func TestNew_AppliesConfigDefaults(t *testing.T) {
	h := newHarness(t)
	s := New(h.checkpoints, h.archive, h.fetcher, h.head, Config{DefaultFromBlock: -3}, nil)
	assert.Equal(t, defaultPageSize, s.cfg.PageSize)
	assert.Equal(t, int64(0), s.cfg.DefaultFromBlock)
}
