package etherscan

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/GoJackzi/zamauction/internal/model"
)

// PaginatorConfig configures page walking for one event stream.
type PaginatorConfig struct {
	PageSize  int
	MaxPages  int
	PageDelay time.Duration
}

// Paginator drives the client across successive pages until a short page
// signals exhaustion or the page ceiling is hit. Pages are requested in
// strict sequence with a fixed inter-page delay to respect upstream rate
// limits.
type Paginator struct {
	client    *Client
	pageSize  int
	maxPages  int
	pageDelay time.Duration
	sleep     SleepFunc
	logger    *zap.Logger
}

// NewPaginator builds a Paginator over the given client.
func NewPaginator(client *Client, cfg PaginatorConfig, logger *zap.Logger) *Paginator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 100
	}
	return &Paginator{
		client:    client,
		pageSize:  cfg.PageSize,
		maxPages:  cfg.MaxPages,
		pageDelay: cfg.PageDelay,
		sleep:     sleepContext,
		logger:    logger,
	}
}

// FetchAll retrieves every page for the filter. On a page-level failure it
// returns the entries accumulated so far together with the error; the caller
// decides whether to use the prefix or treat the stream as failed.
func (p *Paginator) FetchAll(ctx context.Context, filter model.EventFilter) ([]model.RawLogEntry, error) {
	all := make([]model.RawLogEntry, 0, p.pageSize)

	for page := 1; page <= p.maxPages; page++ {
		entries, err := p.client.FetchPage(ctx, filter, page, p.pageSize)
		if err != nil {
			return all, err
		}

		all = append(all, entries...)
		p.logger.Debug("page complete",
			zap.String("stream", filter.Stream),
			zap.Int("page", page),
			zap.Int("entries", len(entries)),
			zap.Int("total", len(all)),
		)

		if len(entries) < p.pageSize {
			return all, nil
		}

		if page == p.maxPages {
			// Still receiving full pages at the ceiling: the stream is
			// truncated, not exhausted.
			p.logger.Warn("page ceiling reached with full pages, data may be incomplete",
				zap.String("stream", filter.Stream),
				zap.Int("max_pages", p.maxPages),
				zap.Int("total", len(all)),
			)
			return all, nil
		}

		if err := p.sleep(ctx, p.pageDelay); err != nil {
			return all, err
		}
	}

	return all, nil
}
