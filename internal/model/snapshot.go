package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserLedger is the published per-participant position derived from one
// aggregation pass. Values never change after the pass that built them.
type UserLedger struct {
	Address        string          `json:"address"`
	TotalDeposited decimal.Decimal `json:"totalDeposited"`
	TotalWithdrawn decimal.Decimal `json:"totalUnwrapped"`
	NetBalance     decimal.Decimal `json:"netShielded"`
	DepositCount   int             `json:"depositCount"`
	BidCount       int             `json:"bidCount"`
	AvgBidPrice    decimal.Decimal `json:"avgBidPrice"`
	EstimatedQty   decimal.Decimal `json:"estQty"`
}

// Summary holds the headline totals across published ledgers, plus raw bid
// counts kept unfiltered for transparency.
type Summary struct {
	TotalShielded   decimal.Decimal `json:"totalShielded"`
	TotalUnshielded decimal.Decimal `json:"totalUnshielded"`
	TVS             decimal.Decimal `json:"tvs"`
	TotalBids       int             `json:"totalBids"`
	CanceledBids    int             `json:"canceledBids"`
}

// ActiveBid is one non-canceled bid in the recent-bids feed.
type ActiveBid struct {
	TxHash    string          `json:"txHash"`
	Bidder    string          `json:"bidder"`
	Price     decimal.Decimal `json:"price"`
	Timestamp uint64          `json:"timestamp"`
}

// Snapshot is one complete aggregation result. It is owned by the snapshot
// cache and replaced atomically, never mutated in place.
type Snapshot struct {
	Users      []UserLedger `json:"users"`
	Summary    Summary      `json:"summary"`
	ActiveBids []ActiveBid  `json:"activeBids"`
	CapturedAt time.Time    `json:"capturedAt"`
	Partial    bool         `json:"partial"`
}
