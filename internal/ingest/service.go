// Package ingest orchestrates one full refresh: fetch the four event streams
// in two parallel groups, decode them, aggregate, and hand the snapshot to
// the cache and optional archive sink.
package ingest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GoJackzi/zamauction/internal/aggregate"
	"github.com/GoJackzi/zamauction/internal/decode"
	"github.com/GoJackzi/zamauction/internal/model"
	"github.com/GoJackzi/zamauction/internal/storage"
)

// Event signature hashes for the auction contracts.
const (
	TransferTopic     = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
	BidSubmittedTopic = "0x5986d4da84b4e4719683f1ba6994a5bac9ff76c75db61b1a949e5b7d3424e892"
	BidCanceledTopic  = "0xbd8de31a25c2b7c2ddafffe72dab91b4ce5826cfd5664793eb206f572f732c27"
)

// Fetcher retrieves every log entry for one event stream.
type Fetcher interface {
	FetchAll(ctx context.Context, filter model.EventFilter) ([]model.RawLogEntry, error)
}

// Config holds the contract addresses and stream settings for a refresh.
type Config struct {
	TokenContract   string
	WrapperContract string
	AuctionContract string
	FromBlock       uint64
	ActiveBidsLimit int
}

// Service runs refreshes. It owns no mutable state between passes; every
// refresh builds a fresh snapshot from a fresh event set.
type Service struct {
	cfg     Config
	fetcher Fetcher
	agg     *aggregate.Aggregator
	archive storage.Storage
	logger  *zap.Logger
}

// New builds a Service. The archive sink is optional and best-effort.
func New(cfg Config, fetcher Fetcher, agg *aggregate.Aggregator, archive storage.Storage, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ActiveBidsLimit <= 0 {
		cfg.ActiveBidsLimit = 50
	}
	return &Service{cfg: cfg, fetcher: fetcher, agg: agg, archive: archive, logger: logger}
}

// streamData is the fetch outcome for one stream. A stream that failed
// mid-pagination keeps its prefix and records the failure; a stream that
// recovered nothing is fatal to the refresh.
type streamData struct {
	entries []model.RawLogEntry
	failure *model.StreamFailure
	fatal   bool
}

// Refresh fetches all four streams and aggregates them into a snapshot.
// Deposits and withdrawals are fetched together, then bids and
// cancellations; aggregation never starts on partial stream data.
func (s *Service) Refresh(ctx context.Context) (*model.Snapshot, error) {
	wrapperTopic := decode.PadAddressTopic(s.cfg.WrapperContract)

	filters := map[string]model.EventFilter{
		"deposits": {
			Stream:    "deposits",
			Address:   s.cfg.TokenContract,
			Topic0:    TransferTopic,
			Topic2:    wrapperTopic,
			FromBlock: s.cfg.FromBlock,
		},
		"withdrawals": {
			Stream:    "withdrawals",
			Address:   s.cfg.TokenContract,
			Topic0:    TransferTopic,
			Topic1:    wrapperTopic,
			FromBlock: s.cfg.FromBlock,
		},
		"bids": {
			Stream:    "bids",
			Address:   s.cfg.AuctionContract,
			Topic0:    BidSubmittedTopic,
			FromBlock: s.cfg.FromBlock,
		},
		"cancellations": {
			Stream:    "cancellations",
			Address:   s.cfg.AuctionContract,
			Topic0:    BidCanceledTopic,
			FromBlock: s.cfg.FromBlock,
		},
	}

	results := make(map[string]*streamData, len(filters))
	var mu sync.Mutex

	fetchGroup := func(streams ...string) error {
		group, groupCtx := errgroup.WithContext(ctx)
		for _, name := range streams {
			filter := filters[name]
			group.Go(func() error {
				data := s.fetchStream(groupCtx, filter)
				mu.Lock()
				results[filter.Stream] = data
				mu.Unlock()
				return nil
			})
		}
		return group.Wait()
	}

	if err := fetchGroup("deposits", "withdrawals"); err != nil {
		return nil, err
	}
	if err := fetchGroup("bids", "cancellations"); err != nil {
		return nil, err
	}

	var failures []model.StreamFailure
	fatal := false
	partial := false
	for _, name := range []string{"deposits", "withdrawals", "bids", "cancellations"} {
		data := results[name]
		if data.failure == nil {
			continue
		}
		failures = append(failures, *data.failure)
		partial = true
		if data.fatal {
			fatal = true
		}
	}
	if fatal {
		return nil, &model.IngestionError{Failures: failures}
	}

	deposits := decode.Transfers(results["deposits"].entries, model.DirectionDeposit, s.logger)
	withdrawals := decode.Transfers(results["withdrawals"].entries, model.DirectionWithdrawal, s.logger)
	bids := decode.Bids(results["bids"].entries, s.logger)
	cancellations := decode.Cancellations(results["cancellations"].entries, s.logger)

	snap, anomalies := s.agg.Aggregate(deposits, withdrawals, bids, cancellations)
	snap.CapturedAt = time.Now().UTC()
	snap.Partial = partial
	if len(snap.ActiveBids) > s.cfg.ActiveBidsLimit {
		snap.ActiveBids = snap.ActiveBids[:s.cfg.ActiveBidsLimit]
	}

	for _, anomaly := range anomalies {
		s.logger.Warn("attribution anomaly: negative net balance excluded",
			zap.String("address", anomaly.Address),
			zap.String("net_balance", anomaly.NetBalance.String()),
		)
	}

	s.logger.Info("refresh complete",
		zap.Int("users", len(snap.Users)),
		zap.Int("total_bids", snap.Summary.TotalBids),
		zap.Int("canceled_bids", snap.Summary.CanceledBids),
		zap.String("tvs", snap.Summary.TVS.String()),
		zap.Int("anomalies", len(anomalies)),
		zap.Bool("partial", partial),
	)

	if s.archive != nil {
		if err := s.archive.SaveSnapshot(ctx, snap); err != nil {
			s.logger.Warn("archive snapshot failed", zap.Error(err))
		}
	}

	return snap, nil
}

func (s *Service) fetchStream(ctx context.Context, filter model.EventFilter) *streamData {
	entries, err := s.fetcher.FetchAll(ctx, filter)
	if err == nil {
		s.logger.Info("stream fetched",
			zap.String("stream", filter.Stream),
			zap.Int("entries", len(entries)),
		)
		return &streamData{entries: entries}
	}

	failure := &model.StreamFailure{Stream: filter.Stream, Recovered: len(entries), Err: err}
	if len(entries) == 0 {
		s.logger.Error("stream failed with nothing recovered",
			zap.String("stream", filter.Stream),
			zap.Error(err),
		)
		return &streamData{failure: failure, fatal: true}
	}

	// Partial-data mode: keep the already-fetched prefix and surface the
	// truncation loudly rather than failing the whole refresh.
	s.logger.Warn("stream truncated, using partial data",
		zap.String("stream", filter.Stream),
		zap.Int("recovered", len(entries)),
		zap.Error(err),
	)
	return &streamData{entries: entries, failure: failure}
}
