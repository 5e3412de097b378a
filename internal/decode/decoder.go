// Package decode extracts typed records from raw log topics and data. All
// functions are pure and order-independent; malformed entries are skipped by
// the batch helpers rather than aborting the batch.
package decode

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GoJackzi/zamauction/internal/model"
)

// tokenDecimals is the fixed-point precision of on-chain amounts and prices
// (USDT-style 6 decimals).
const tokenDecimals = 6

const wordBytes = 32

// AddressFromTopic recovers the address packed into the low 20 bytes of a
// 32-byte topic and renders it in checksum form.
func AddressFromTopic(topic string) (string, error) {
	hex := strings.TrimPrefix(topic, "0x")
	if len(hex) < 2*common.AddressLength {
		return "", fmt.Errorf("topic too short for address: %q", topic)
	}
	return common.HexToAddress("0x" + hex[len(hex)-2*common.AddressLength:]).Hex(), nil
}

// PadAddressTopic widens an address to the 32-byte topic form used for
// positional filters.
func PadAddressTopic(address string) string {
	hex := strings.ToLower(strings.TrimPrefix(address, "0x"))
	return "0x" + strings.Repeat("0", 2*wordBytes-len(hex)) + hex
}

// amountAt reads the 32-byte word at the given index of the data payload and
// converts it from fixed-point integer to decimal.
func amountAt(data string, word int) (decimal.Decimal, error) {
	payload, err := hexutil.Decode(data)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode data: %w", err)
	}
	if len(payload) < (word+1)*wordBytes {
		return decimal.Zero, fmt.Errorf("data too short: want word %d, have %d bytes", word, len(payload))
	}
	value := new(big.Int).SetBytes(payload[word*wordBytes : (word+1)*wordBytes])
	return decimal.NewFromBigInt(value, -tokenDecimals), nil
}

// Transfer decodes a wrapper transfer event. For deposits the counterparty is
// the sender (topic 1); for withdrawals it is the recipient (topic 2). The
// amount is the first data word.
func Transfer(entry model.RawLogEntry, direction model.TransferDirection) (model.DecodedTransfer, error) {
	topicIndex := 1
	if direction == model.DirectionWithdrawal {
		topicIndex = 2
	}
	if len(entry.Topics) <= topicIndex {
		return model.DecodedTransfer{}, fmt.Errorf("missing topic %d", topicIndex)
	}

	counterparty, err := AddressFromTopic(entry.Topics[topicIndex])
	if err != nil {
		return model.DecodedTransfer{}, err
	}
	amount, err := amountAt(entry.Data, 0)
	if err != nil {
		return model.DecodedTransfer{}, err
	}

	return model.DecodedTransfer{
		Counterparty: counterparty,
		Amount:       amount,
		Direction:    direction,
	}, nil
}

// Bid decodes a bid-submitted event: topic 1 is the bid id, topic 2 the
// bidder, and the price sits in the second data word (layout: eQuantity,
// price, ePaid).
func Bid(entry model.RawLogEntry) (model.DecodedBid, error) {
	if len(entry.Topics) < 3 {
		return model.DecodedBid{}, fmt.Errorf("missing bid topics, have %d", len(entry.Topics))
	}

	bidder, err := AddressFromTopic(entry.Topics[2])
	if err != nil {
		return model.DecodedBid{}, err
	}
	price, err := amountAt(entry.Data, 1)
	if err != nil {
		return model.DecodedBid{}, err
	}

	return model.DecodedBid{
		ID:        BidID(entry.Topics[1]),
		Bidder:    bidder,
		Price:     price,
		TxHash:    entry.TxHash,
		Timestamp: entry.Timestamp,
	}, nil
}

// Cancellation decodes a bid-canceled event, which carries only the bid id in
// topic 1.
func Cancellation(entry model.RawLogEntry) (string, error) {
	if len(entry.Topics) < 2 {
		return "", fmt.Errorf("missing cancellation topic, have %d", len(entry.Topics))
	}
	return BidID(entry.Topics[1]), nil
}

// BidID canonicalizes a bid id topic so submissions and cancellations match
// regardless of hex casing.
func BidID(topic string) string {
	return strings.ToLower(topic)
}

// Transfers decodes a batch, skipping malformed entries.
func Transfers(entries []model.RawLogEntry, direction model.TransferDirection, logger *zap.Logger) []model.DecodedTransfer {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make([]model.DecodedTransfer, 0, len(entries))
	for _, entry := range entries {
		decoded, err := Transfer(entry, direction)
		if err != nil {
			logger.Warn("skip malformed transfer", zap.String("tx", entry.TxHash), zap.Error(err))
			continue
		}
		out = append(out, decoded)
	}
	return out
}

// Bids decodes a batch, skipping malformed entries.
func Bids(entries []model.RawLogEntry, logger *zap.Logger) []model.DecodedBid {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make([]model.DecodedBid, 0, len(entries))
	for _, entry := range entries {
		decoded, err := Bid(entry)
		if err != nil {
			logger.Warn("skip malformed bid", zap.String("tx", entry.TxHash), zap.Error(err))
			continue
		}
		out = append(out, decoded)
	}
	return out
}

// Cancellations decodes a batch of bid-canceled events, skipping malformed
// entries.
func Cancellations(entries []model.RawLogEntry, logger *zap.Logger) []string {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		id, err := Cancellation(entry)
		if err != nil {
			logger.Warn("skip malformed cancellation", zap.String("tx", entry.TxHash), zap.Error(err))
			continue
		}
		out = append(out, id)
	}
	return out
}
