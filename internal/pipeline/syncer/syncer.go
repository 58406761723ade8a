// Package syncer mirrors ledger transfers for one address into the local
// archive and answers from it, fetching only blocks past the checkpoint.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kslji/trackUserAddress/internal/chain"
	"github.com/kslji/trackUserAddress/internal/domain/model"
	"github.com/kslji/trackUserAddress/internal/failure"
	"github.com/kslji/trackUserAddress/internal/metrics"
	"github.com/kslji/trackUserAddress/internal/store"
	"github.com/kslji/trackUserAddress/internal/tracing"
)

const (
	outcomeCacheHit    = "cache_hit"
	outcomeFetched     = "fetched"
	outcomeEmptyBoth   = "empty_both"
	outcomeEmptyWindow = "empty_window"

	defaultPageSize = 1000
)

// ErrNoHeadSource is returned when ToBlock is BlockLatest and no head source was configured.
var ErrNoHeadSource = errors.New("no head source configured for latest block")

// Config is fixed at construction.
type Config struct {
	DefaultFromBlock int64
	PageSize         int
}

type Option func(*Syncer)

// WithLocker serializes calls that share a checkpoint row. Without a locker,
// concurrent calls for one key may fetch overlapping windows and the last
// checkpoint write wins.
func WithLocker(l KeyLocker) Option {
	return func(s *Syncer) {
		s.locker = l
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type Syncer struct {
	checkpoints store.CheckpointRepository
	archive     store.TransferRepository
	fetcher     chain.LedgerFetcher
	head        chain.HeadSource
	cfg         Config
	locker      KeyLocker
	logger      *slog.Logger
	tracer      trace.Tracer
}

func New(
	checkpoints store.CheckpointRepository,
	archive store.TransferRepository,
	fetcher chain.LedgerFetcher,
	head chain.HeadSource,
	cfg Config,
	opts ...Option,
) *Syncer {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.DefaultFromBlock < 0 {
		cfg.DefaultFromBlock = 0
	}
	s := &Syncer{
		checkpoints: checkpoints,
		archive:     archive,
		fetcher:     fetcher,
		head:        head,
		cfg:         cfg,
		logger:      slog.Default(),
		tracer:      tracing.Tracer("syncer"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = s.logger.With("component", "syncer")
	return s
}

// Synchronize returns every archived or newly fetched transfer matching req
// up to req.ToBlock. Archived records come first, followed by fetched events
// in fetch order. Hashes are unique in the archive but the returned slice is
// not deduplicated. Any store or fetch error aborts the call without retry.
func (s *Syncer) Synchronize(ctx context.Context, req model.SyncRequest) (result []model.Transfer, err error) {
	if !req.Category.Valid() {
		return nil, model.ErrInvalidCategory
	}
	if !req.Direction.Valid() {
		return nil, model.ErrInvalidDirection
	}
	if req.ToBlock < 0 && req.ToBlock != model.BlockLatest {
		return nil, fmt.Errorf("%w: to block %d", model.ErrInvalidBlockRange, req.ToBlock)
	}
	address := strings.ToLower(strings.TrimSpace(req.Address))
	category, direction := req.Category.String(), req.Direction.String()

	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "syncer.Synchronize", trace.WithAttributes(tracing.SyncAttributes(address, category, direction)...))
	logger := s.logger.With("run_id", uuid.NewString(), "address", address, "category", category, "direction", direction)

	outcome := ""
	defer func() {
		metrics.SyncDuration.WithLabelValues(category, direction).Observe(time.Since(start).Seconds())
		if err != nil {
			class := failure.Classify(err)
			metrics.SyncErrorsTotal.WithLabelValues(category, direction, string(class)).Inc()
			logger.Error("synchronize failed", "class", class, "error", err)
		} else {
			metrics.SyncCallsTotal.WithLabelValues(category, direction, outcome).Inc()
			logger.Debug("synchronize completed", "outcome", outcome, "transfers", len(result), "elapsed", time.Since(start).String())
		}
		tracing.EndSpan(span, err)
	}()

	if s.locker != nil {
		lockCtx, unlock, lockErr := s.lock(ctx, address, req)
		if lockErr != nil {
			return nil, lockErr
		}
		defer unlock()
		parent := ctx
		defer func() {
			if err != nil && parent.Err() == nil && lockCtx.Err() != nil {
				err = fmt.Errorf("%w: %w", context.Cause(lockCtx), err)
			}
		}()
		ctx = lockCtx
	}

	toBlock, err := s.resolveToBlock(ctx, req.ToBlock)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracing.AttrToBlock.Int64(toBlock))

	cp, err := s.checkpoints.Get(ctx, address, req.Category, req.Direction)
	if err != nil {
		return nil, failure.Persistence(fmt.Errorf("get checkpoint: %w", err))
	}

	if cp.Covers(toBlock) {
		records, err := s.archive.Query(ctx, address, req.Category, toBlock, req.Direction)
		if err != nil {
			return nil, failure.Persistence(fmt.Errorf("query archive: %w", err))
		}
		outcome = outcomeCacheHit
		return model.FromRecords(records), nil
	}

	lastSynced := s.startBlock(req, cp)
	span.SetAttributes(tracing.AttrFromBlock.Int64(lastSynced))

	seed, err := s.archive.Query(ctx, address, req.Category, lastSynced-1, req.Direction)
	if err != nil {
		return nil, failure.Persistence(fmt.Errorf("query archive seed: %w", err))
	}
	metrics.SyncSeedRecords.WithLabelValues(category, direction).Observe(float64(len(seed)))
	result = model.FromRecords(seed)

	if req.Direction.IsWildcard() && len(seed) == 0 {
		outcome = outcomeEmptyBoth
		return result, nil
	}
	if lastSynced > toBlock {
		outcome = outcomeEmptyWindow
		return result, nil
	}

	fetched, err := s.fetchWindow(ctx, logger, address, req, lastSynced, toBlock)
	if err != nil {
		return nil, err
	}
	outcome = outcomeFetched
	return append(result, fetched...), nil
}

func (s *Syncer) lock(ctx context.Context, address string, req model.SyncRequest) (context.Context, func(), error) {
	waitStart := time.Now()
	lockCtx, unlock, err := s.locker.Lock(ctx, syncKey(address, req.Category, req.Direction))
	metrics.SyncLockWaitSeconds.Observe(time.Since(waitStart).Seconds())
	if err != nil {
		return nil, nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	return lockCtx, unlock, nil
}

// syncKey identifies the checkpoint row a request writes. Both reads the From
// row but writes its own, so it does not contend with From callers.
func syncKey(address string, category model.Category, direction model.Direction) string {
	return address + "|" + category.String() + "|" + direction.String()
}

func (s *Syncer) resolveToBlock(ctx context.Context, toBlock int64) (int64, error) {
	if toBlock != model.BlockLatest {
		return toBlock, nil
	}
	if s.head == nil {
		return 0, ErrNoHeadSource
	}
	head, err := s.head.GetHeadBlock(ctx)
	if err != nil {
		return 0, failure.Remote(fmt.Errorf("resolve latest block: %w", err))
	}
	return head, nil
}

func (s *Syncer) startBlock(req model.SyncRequest, cp *model.SyncCheckpoint) int64 {
	if cp != nil {
		return cp.LastBlockProcessed + 1
	}
	if req.FromBlock >= 0 {
		return req.FromBlock
	}
	return s.cfg.DefaultFromBlock
}

func (s *Syncer) fetchWindow(ctx context.Context, logger *slog.Logger, address string, req model.SyncRequest, fromBlock, toBlock int64) ([]model.Transfer, error) {
	category, direction := req.Category.String(), req.Direction.String()
	pageSize := s.cfg.PageSize
	if req.PageSize > 0 {
		pageSize = req.PageSize
	}
	pageReq := chain.PageRequest{
		Address:    address,
		Filter:     req.Direction.AddressFilter(),
		Categories: req.Category.Expand(),
		FromBlock:  fromBlock,
		ToBlock:    toBlock,
		PageSize:   pageSize,
	}

	var out []model.Transfer
	for pageNum := 1; ; pageNum++ {
		page, err := s.fetchPage(ctx, pageReq, pageNum)
		if err != nil {
			return nil, err
		}
		metrics.SyncPagesFetched.WithLabelValues(category, direction).Inc()
		metrics.SyncTransfersFetched.WithLabelValues(category, direction).Add(float64(len(page.Transfers)))

		records := make([]model.TransferRecord, 0, len(page.Transfers))
		for i := range page.Transfers {
			event := &page.Transfers[i]
			record, err := stageRecord(address, req, event)
			if err != nil {
				return nil, err
			}
			records = append(records, record)
			out = append(out, model.Transfer{Event: event})
		}

		if err := s.persistPage(ctx, address, req, records, toBlock); err != nil {
			return nil, err
		}

		logger.Debug("page persisted",
			"page", pageNum,
			"transfers", len(records),
			"from_block", fromBlock,
			"to_block", toBlock,
			"has_more", page.HasMore(),
		)

		if !page.HasMore() {
			return out, nil
		}
		pageReq.PageKey = page.PageKey
	}
}

func (s *Syncer) fetchPage(ctx context.Context, req chain.PageRequest, pageNum int) (page *chain.Page, err error) {
	ctx, span := s.tracer.Start(ctx, "syncer.fetchPage", trace.WithAttributes(
		tracing.AttrPage.Int(pageNum),
		tracing.AttrFromBlock.Int64(req.FromBlock),
		tracing.AttrToBlock.Int64(req.ToBlock),
	))
	defer func() { tracing.EndSpan(span, err) }()

	page, err = s.fetcher.FetchPage(ctx, req)
	if err != nil {
		return nil, failure.Remote(fmt.Errorf("fetch page %d: %w", pageNum, err))
	}
	if page == nil {
		page = &chain.Page{}
	}
	return page, nil
}

// persistPage writes the archive batch and the checkpoint concurrently and
// waits for both. The writes are independent: a failure of one does not
// cancel or undo the other.
func (s *Syncer) persistPage(ctx context.Context, address string, req model.SyncRequest, records []model.TransferRecord, toBlock int64) error {
	var g errgroup.Group
	if len(records) > 0 {
		g.Go(func() error {
			if err := s.archive.UpsertBatch(ctx, records); err != nil {
				return failure.Persistence(fmt.Errorf("upsert archive batch: %w", err))
			}
			metrics.ArchiveRecordsUpserted.Add(float64(len(records)))
			return nil
		})
	}
	g.Go(func() error {
		if err := s.checkpoints.Upsert(ctx, address, req.Category, req.Direction, toBlock); err != nil {
			return failure.Persistence(fmt.Errorf("upsert checkpoint: %w", err))
		}
		return nil
	})
	return g.Wait()
}

func stageRecord(address string, req model.SyncRequest, event *model.TransferEvent) (model.TransferRecord, error) {
	blockNumber, err := event.BlockNumber()
	if err != nil {
		return model.TransferRecord{}, failure.Remote(fmt.Errorf("decode block of transfer %s: %w", event.Hash, err))
	}

	category := event.Category
	if !category.Valid() || category.IsWildcard() {
		category = req.Category
	}

	return model.TransferRecord{
		TxHash:      event.Hash,
		Address:     address,
		BlockNumber: blockNumber,
		Category:    category,
		Direction:   req.Direction.RecordKey(),
		Metadata:    event.Raw(),
	}, nil
}
