package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoJackzi/zamauction/internal/model"
)

func noSleep() (SleepFunc, *[]time.Duration) {
	slept := &[]time.Duration{}
	return func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}, slept
}

func logsBody(n int) string {
	entries := make([]string, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, fmt.Sprintf(`{
			"address": "0x1111111111111111111111111111111111111111",
			"topics": ["0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"],
			"data": "0x00000000000000000000000000000000000000000000000000000000000f4240",
			"transactionHash": "0xabc%04d",
			"blockNumber": "0x16fa13a",
			"timeStamp": "0x68b0a1c0"
		}`, i))
	}
	return fmt.Sprintf(`{"status":"1","message":"OK","result":[%s]}`, strings.Join(entries, ","))
}

func testFilter() model.EventFilter {
	return model.EventFilter{
		Stream:    "bids",
		Address:   "0x2222222222222222222222222222222222222222",
		Topic0:    "0x5986d4da84b4e4719683f1ba6994a5bac9ff76c75db61b1a949e5b7d3424e892",
		FromBlock: 24096698,
	}
}

func newTestClient(baseURL string) *Client {
	client := NewClient(ClientConfig{
		BaseURL:     baseURL,
		APIKey:      "SECRETKEY",
		ChainID:     "1",
		MaxAttempts: 3,
		Backoff:     LinearBackoff(time.Second),
	}, nil)
	sleep, _ := noSleep()
	client.sleep = sleep
	return client
}

func TestFetchPageOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, logsBody(2))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	entries, err := client.FetchPage(context.Background(), testFilter(), 1, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("want 2 entries, got %d", len(entries))
	}
	if entries[0].BlockNumber != 0x16fa13a {
		t.Fatalf("block number not parsed: %d", entries[0].BlockNumber)
	}
	if entries[0].Timestamp != 0x68b0a1c0 {
		t.Fatalf("timestamp not parsed: %d", entries[0].Timestamp)
	}
}

func TestFetchPageNoRecordsIsEmptySuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"0","message":"No records found","result":[]}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	entries, err := client.FetchPage(context.Background(), testFilter(), 1, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("want empty result, got %d entries", len(entries))
	}
}

func TestFetchPageRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			fmt.Fprint(w, `{"status":"0","message":"Max rate limit reached","result":null}`)
			return
		}
		fmt.Fprint(w, logsBody(1))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		BaseURL:     server.URL,
		APIKey:      "SECRETKEY",
		ChainID:     "1",
		MaxAttempts: 3,
		Backoff:     LinearBackoff(time.Second),
	}, nil)
	sleep, slept := noSleep()
	client.sleep = sleep

	entries, err := client.FetchPage(context.Background(), testFilter(), 1, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	if calls.Load() != 3 {
		t.Fatalf("want 3 attempts, got %d", calls.Load())
	}

	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("want %d sleeps, got %v", len(want), *slept)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Fatalf("sleep %d: want %v, got %v", i, d, (*slept)[i])
		}
	}
}

func TestFetchPageExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"status":"0","message":"Max rate limit reached","result":null}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.FetchPage(context.Background(), testFilter(), 4, 1000)
	if err == nil {
		t.Fatalf("expected error after exhausted retries")
	}

	var upstream *model.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("want *model.UpstreamError, got %T: %v", err, err)
	}
	if upstream.Page != 4 || upstream.Attempts != 3 || upstream.Stream != "bids" {
		t.Fatalf("unexpected error fields: %+v", upstream)
	}
	if calls.Load() != 3 {
		t.Fatalf("want 3 attempts, got %d", calls.Load())
	}
}

func TestFetchPageQueryParameters(t *testing.T) {
	var query map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		fmt.Fprint(w, logsBody(0))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	filter := testFilter()
	filter.Topic1 = "0x" + strings.Repeat("1", 64)
	filter.Topic2 = "0x" + strings.Repeat("2", 64)

	if _, err := client.FetchPage(context.Background(), filter, 3, 500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expect := map[string]string{
		"chainid":      "1",
		"module":       "logs",
		"action":       "getLogs",
		"fromBlock":    "24096698",
		"toBlock":      "latest",
		"address":      filter.Address,
		"topic0":       filter.Topic0,
		"topic1":       filter.Topic1,
		"topic2":       filter.Topic2,
		"topic0_1_opr": "and",
		"topic0_2_opr": "and",
		"topic1_2_opr": "and",
		"page":         "3",
		"offset":       "500",
		"apikey":       "SECRETKEY",
	}
	for key, want := range expect {
		got := query[key]
		if len(got) != 1 || got[0] != want {
			t.Fatalf("param %s: want %q, got %v", key, want, got)
		}
	}
}

func TestRedactCredential(t *testing.T) {
	url := "https://api.example.com/v2/api?apikey=SECRETKEY&page=1"
	redacted := redactCredential(url, "SECRETKEY")
	if strings.Contains(redacted, "SECRETKEY") {
		t.Fatalf("credential leaked: %s", redacted)
	}
	if !strings.Contains(redacted, "apikey=REDACTED") {
		t.Fatalf("credential not replaced: %s", redacted)
	}
	if redactCredential(url, "") != url {
		t.Fatalf("empty key should leave url untouched")
	}
}

func TestClassifyMalformedResult(t *testing.T) {
	envelope := apiEnvelope{Status: "1", Message: "OK", Result: json.RawMessage(`"not an array"`)}
	if _, err := classify(envelope); err == nil {
		t.Fatalf("expected error for malformed result payload")
	}
}
