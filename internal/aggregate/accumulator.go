package aggregate

import (
	"github.com/shopspring/decimal"

	"github.com/GoJackzi/zamauction/internal/model"
)

// accumulator holds the running position for one address during a single
// aggregation pass. It is keyed by lowercase address and discarded when the
// pass completes.
type accumulator struct {
	address      string
	deposited    decimal.Decimal
	withdrawn    decimal.Decimal
	depositCount int
	bidCount     int
	bidPrices    []decimal.Decimal
}

func newAccumulator(address string) *accumulator {
	return &accumulator{
		address:   address,
		deposited: decimal.Zero,
		withdrawn: decimal.Zero,
	}
}

func (a *accumulator) addDeposit(amount decimal.Decimal) {
	a.deposited = a.deposited.Add(amount)
	a.depositCount++
}

func (a *accumulator) addWithdrawal(amount decimal.Decimal) {
	a.withdrawn = a.withdrawn.Add(amount)
}

func (a *accumulator) addBid(price decimal.Decimal) {
	a.bidCount++
	a.bidPrices = append(a.bidPrices, price)
}

func (a *accumulator) netBalance() decimal.Decimal {
	return a.deposited.Sub(a.withdrawn)
}

func (a *accumulator) avgBidPrice() decimal.Decimal {
	if len(a.bidPrices) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, price := range a.bidPrices {
		sum = sum.Add(price)
	}
	return sum.Div(decimal.NewFromInt(int64(len(a.bidPrices))))
}

func (a *accumulator) ledger(estimated decimal.Decimal, avg decimal.Decimal) model.UserLedger {
	return model.UserLedger{
		Address:        a.address,
		TotalDeposited: a.deposited,
		TotalWithdrawn: a.withdrawn,
		NetBalance:     a.netBalance(),
		DepositCount:   a.depositCount,
		BidCount:       a.bidCount,
		AvgBidPrice:    avg,
		EstimatedQty:   estimated,
	}
}
