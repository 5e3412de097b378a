package model

// RawLogEntry is one emitted chain event as returned by the indexed-log API.
// Topic values and data are 0x-prefixed hex strings; topic[0] is the event
// signature hash. Entries are immutable once built by the client.
type RawLogEntry struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	TxHash      string   `json:"tx_hash"`
	BlockNumber uint64   `json:"block_number"`
	Timestamp   uint64   `json:"timestamp"`
}

// EventFilter identifies one logical event stream. Topic1/Topic2 are optional
// positional filters AND-combined with Topic0, mirroring indexed-parameter
// matching on the upstream API.
type EventFilter struct {
	Stream    string
	Address   string
	Topic0    string
	Topic1    string
	Topic2    string
	FromBlock uint64
}
