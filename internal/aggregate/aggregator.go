// Package aggregate folds decoded events into per-address ledgers and a
// summary. Aggregation is a pure function of its input event set: no I/O, and
// identical inputs always produce identical snapshots.
package aggregate

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GoJackzi/zamauction/internal/model"
)

// Config carries the protocol parameters external to this core. They must be
// validated against the live allocation rules before published estimates are
// trusted.
type Config struct {
	// PerBidCeiling is the protocol-level maximum token quantity one bid can
	// be allocated.
	PerBidCeiling decimal.Decimal
	// MaxBidsPerUser is the bid-count ceiling used when capping estimates.
	MaxBidsPerUser int
	// ExcludedAddresses are contract addresses whose self-referential
	// transfers must not be published as participants.
	ExcludedAddresses []string
}

// Aggregator builds snapshots from decoded event streams.
type Aggregator struct {
	cfg      Config
	excluded map[string]struct{}
	logger   *zap.Logger
}

// New builds an Aggregator. A nil logger is replaced with a no-op logger.
func New(cfg Config, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBidsPerUser <= 0 {
		cfg.MaxBidsPerUser = 10
	}
	excluded := make(map[string]struct{}, len(cfg.ExcludedAddresses))
	for _, address := range cfg.ExcludedAddresses {
		excluded[ledgerKey(address)] = struct{}{}
	}
	return &Aggregator{cfg: cfg, excluded: excluded, logger: logger}
}

// Aggregate folds the four event streams into a snapshot. The returned
// anomalies are ledgers excluded for negative net balance; they are kept for
// diagnostics and never published.
func (a *Aggregator) Aggregate(
	deposits []model.DecodedTransfer,
	withdrawals []model.DecodedTransfer,
	bids []model.DecodedBid,
	cancellations []string,
) (*model.Snapshot, []model.UserLedger) {
	canceled := make(map[string]struct{}, len(cancellations))
	for _, id := range cancellations {
		canceled[id] = struct{}{}
	}

	ledgers := make(map[string]*accumulator)
	order := make([]string, 0, len(deposits))
	resolve := func(address string) *accumulator {
		key := ledgerKey(address)
		acc := ledgers[key]
		if acc == nil {
			acc = newAccumulator(address)
			ledgers[key] = acc
			order = append(order, key)
		}
		return acc
	}

	for _, transfer := range deposits {
		resolve(transfer.Counterparty).addDeposit(transfer.Amount)
	}
	for _, transfer := range withdrawals {
		resolve(transfer.Counterparty).addWithdrawal(transfer.Amount)
	}
	for _, bid := range bids {
		if _, ok := canceled[bid.ID]; ok {
			continue
		}
		resolve(bid.Bidder).addBid(bid.Price)
	}

	published := make([]model.UserLedger, 0, len(order))
	anomalies := make([]model.UserLedger, 0)
	for _, key := range order {
		acc := ledgers[key]
		avg := acc.avgBidPrice()
		ledger := acc.ledger(a.estimateQuantity(acc, avg), avg)

		if _, ok := a.excluded[key]; ok {
			continue
		}
		if ledger.NetBalance.IsNegative() {
			anomalies = append(anomalies, ledger)
			continue
		}
		if acc.depositCount == 0 && acc.bidCount == 0 {
			continue
		}
		published = append(published, ledger)
	}

	sort.SliceStable(published, func(i, j int) bool {
		return published[i].NetBalance.GreaterThan(published[j].NetBalance)
	})

	snapshot := &model.Snapshot{
		Users:      published,
		Summary:    a.summarize(published, len(bids), len(cancellations)),
		ActiveBids: activeBids(bids, canceled),
	}
	return snapshot, anomalies
}

// estimateQuantity derives the capped clearing estimate: netBalance divided
// by the average bid price, capped at max(1, min(bidCount, maxBids)) times
// the per-bid ceiling. The lower bound of one bid's worth avoids a zero-cap
// false negative when every bid was filtered out.
func (a *Aggregator) estimateQuantity(acc *accumulator, avg decimal.Decimal) decimal.Decimal {
	if !avg.IsPositive() {
		return decimal.Zero
	}

	raw := acc.netBalance().Div(avg)

	maxBids := acc.bidCount
	if maxBids > a.cfg.MaxBidsPerUser {
		maxBids = a.cfg.MaxBidsPerUser
	}
	if maxBids < 1 {
		maxBids = 1
	}
	ceiling := a.cfg.PerBidCeiling.Mul(decimal.NewFromInt(int64(maxBids)))

	if raw.GreaterThan(ceiling) {
		return ceiling
	}
	return raw
}

func (a *Aggregator) summarize(published []model.UserLedger, totalBids, canceledBids int) model.Summary {
	summary := model.Summary{
		TotalShielded:   decimal.Zero,
		TotalUnshielded: decimal.Zero,
		TVS:             decimal.Zero,
		TotalBids:       totalBids,
		CanceledBids:    canceledBids,
	}
	for _, ledger := range published {
		summary.TotalShielded = summary.TotalShielded.Add(ledger.TotalDeposited)
		summary.TotalUnshielded = summary.TotalUnshielded.Add(ledger.TotalWithdrawn)
		summary.TVS = summary.TVS.Add(ledger.NetBalance)
	}
	return summary
}

// activeBids lists non-canceled bids newest first for the live feed.
func activeBids(bids []model.DecodedBid, canceled map[string]struct{}) []model.ActiveBid {
	active := make([]model.ActiveBid, 0, len(bids))
	for _, bid := range bids {
		if _, ok := canceled[bid.ID]; ok {
			continue
		}
		active = append(active, model.ActiveBid{
			TxHash:    bid.TxHash,
			Bidder:    bid.Bidder,
			Price:     bid.Price,
			Timestamp: bid.Timestamp,
		})
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Timestamp > active[j].Timestamp
	})
	return active
}

// ledgerKey canonicalizes an address for map keying; raw-case strings are
// never compared.
func ledgerKey(address string) string {
	return strings.ToLower(address)
}
