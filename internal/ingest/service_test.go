package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/GoJackzi/zamauction/internal/aggregate"
	"github.com/GoJackzi/zamauction/internal/model"
)

const (
	userAddress = "0x1234567890123456789012345678901234567890"
	wrapper     = "0xae0207c757aa2b4019ad96edd0092ddc63ef0c50"
	token       = "0xdac17f958d2ee523a2206206994597c13d831ec7"
	auction     = "0x04a5b8c32f9c38092b008a4939f1f91d550c4345"
)

// fakeFetcher serves canned entries per stream and can fail streams with an
// optional recovered prefix.
type fakeFetcher struct {
	entries map[string][]model.RawLogEntry
	errs    map[string]error
}

func (f *fakeFetcher) FetchAll(_ context.Context, filter model.EventFilter) ([]model.RawLogEntry, error) {
	return f.entries[filter.Stream], f.errs[filter.Stream]
}

func topicForAddress(address string) string {
	return "0x" + strings.Repeat("0", 24) + strings.TrimPrefix(strings.ToLower(address), "0x")
}

func word(hexDigits string) string {
	return strings.Repeat("0", 64-len(hexDigits)) + hexDigits
}

func depositEntry(from string, rawAmountHex string) model.RawLogEntry {
	return model.RawLogEntry{
		Topics: []string{TransferTopic, topicForAddress(from), topicForAddress(wrapper)},
		Data:   "0x" + word(rawAmountHex),
	}
}

func bidEntry(id byte, bidder string, priceHex string, timestamp uint64) model.RawLogEntry {
	return model.RawLogEntry{
		Topics: []string{
			BidSubmittedTopic,
			"0x" + strings.Repeat("0", 62) + word2(id),
			topicForAddress(bidder),
		},
		Data:      "0x" + word("1") + word(priceHex) + word("2"),
		TxHash:    "0xfeed",
		Timestamp: timestamp,
	}
}

func word2(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0x0f]})
}

func newService(fetcher Fetcher) *Service {
	agg := aggregate.New(aggregate.Config{
		PerBidCeiling:     decimal.NewFromInt(88_000_000),
		MaxBidsPerUser:    10,
		ExcludedAddresses: []string{token, wrapper, auction},
	}, nil)
	return New(Config{
		TokenContract:   token,
		WrapperContract: wrapper,
		AuctionContract: auction,
		FromBlock:       24096698,
		ActiveBidsLimit: 50,
	}, fetcher, agg, nil, nil)
}

func TestRefreshEndToEnd(t *testing.T) {
	fetcher := &fakeFetcher{
		entries: map[string][]model.RawLogEntry{
			// 1,000,000 raw = 1.0 deposited
			"deposits": {depositEntry(userAddress, "f4240")},
			// price 50,000 raw = 0.05
			"bids": {bidEntry(0x01, userAddress, "c350", 1757000100)},
		},
	}

	snap, err := newService(fetcher).Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Partial {
		t.Fatalf("clean refresh marked partial")
	}
	if len(snap.Users) != 1 {
		t.Fatalf("want 1 ledger, got %d", len(snap.Users))
	}

	ledger := snap.Users[0]
	if !ledger.TotalDeposited.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("want deposited 1, got %s", ledger.TotalDeposited)
	}
	if !ledger.NetBalance.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("want net 1, got %s", ledger.NetBalance)
	}
	if ledger.BidCount != 1 {
		t.Fatalf("want 1 bid, got %d", ledger.BidCount)
	}
	if !ledger.AvgBidPrice.Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("want avg 0.05, got %s", ledger.AvgBidPrice)
	}
	if !ledger.EstimatedQty.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("want estimate 20, got %s", ledger.EstimatedQty)
	}
	if snap.CapturedAt.IsZero() {
		t.Fatalf("snapshot not timestamped")
	}
	if len(snap.ActiveBids) != 1 {
		t.Fatalf("want 1 active bid, got %d", len(snap.ActiveBids))
	}
}

func TestRefreshFatalStream(t *testing.T) {
	fetcher := &fakeFetcher{
		entries: map[string][]model.RawLogEntry{
			"deposits": {depositEntry(userAddress, "f4240")},
		},
		errs: map[string]error{
			"bids": errors.New("all retries exhausted"),
		},
	}

	_, err := newService(fetcher).Refresh(context.Background())
	if err == nil {
		t.Fatalf("expected ingestion error")
	}

	var ingestion *model.IngestionError
	if !errors.As(err, &ingestion) {
		t.Fatalf("want *model.IngestionError, got %T: %v", err, err)
	}
	if len(ingestion.Failures) != 1 {
		t.Fatalf("want 1 failure, got %+v", ingestion.Failures)
	}
	failure := ingestion.Failures[0]
	if failure.Stream != "bids" || failure.Recovered != 0 {
		t.Fatalf("unexpected failure record: %+v", failure)
	}
}

func TestRefreshPartialPrefixUsed(t *testing.T) {
	fetcher := &fakeFetcher{
		entries: map[string][]model.RawLogEntry{
			"deposits": {depositEntry(userAddress, "f4240"), depositEntry(userAddress, "f4240")},
		},
		errs: map[string]error{
			"deposits": errors.New("page 3 failed"),
		},
	}

	snap, err := newService(fetcher).Refresh(context.Background())
	if err != nil {
		t.Fatalf("partial prefix should not fail the refresh: %v", err)
	}
	if !snap.Partial {
		t.Fatalf("truncated stream must mark the snapshot partial")
	}
	if len(snap.Users) != 1 || !snap.Users[0].TotalDeposited.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("prefix data not aggregated: %+v", snap.Users)
	}
}

func TestRefreshActiveBidsLimited(t *testing.T) {
	bids := make([]model.RawLogEntry, 0, 5)
	for i := byte(1); i <= 5; i++ {
		bids = append(bids, bidEntry(i, userAddress, "c350", uint64(1757000000+int(i))))
	}
	fetcher := &fakeFetcher{entries: map[string][]model.RawLogEntry{"bids": bids}}

	service := newService(fetcher)
	service.cfg.ActiveBidsLimit = 3

	snap, err := service.Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.ActiveBids) != 3 {
		t.Fatalf("want 3 active bids, got %d", len(snap.ActiveBids))
	}
	// Newest first after the cut.
	if snap.ActiveBids[0].Timestamp != 1757000005 {
		t.Fatalf("want newest bid first, got %d", snap.ActiveBids[0].Timestamp)
	}
}
