package model

import "github.com/shopspring/decimal"

// TransferDirection distinguishes deposits into the wrapper from withdrawals
// back out of it.
type TransferDirection string

const (
	DirectionDeposit    TransferDirection = "deposit"
	DirectionWithdrawal TransferDirection = "withdrawal"
)

// DecodedTransfer is a typed wrapper transfer event. Counterparty is the
// checksummed user address on the non-wrapper side of the transfer.
type DecodedTransfer struct {
	Counterparty string
	Amount       decimal.Decimal
	Direction    TransferDirection
}

// DecodedBid is a typed bid-submitted event. ID correlates the bid with any
// later bid-canceled event carrying the same topic value.
type DecodedBid struct {
	ID        string
	Bidder    string
	Price     decimal.Decimal
	TxHash    string
	Timestamp uint64
	Canceled  bool
}
