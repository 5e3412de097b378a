package etherscan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/GoJackzi/zamauction/internal/model"
)

const noRecordsMessage = "No records found"

// ClientConfig configures the log source client.
type ClientConfig struct {
	BaseURL     string
	APIKey      string
	ChainID     string
	MaxAttempts int
	Backoff     BackoffFunc
	HTTPClient  *http.Client
}

// Client fetches single pages of event logs from the indexed-log API with
// bounded retry and rate-limit backoff.
type Client struct {
	baseURL     string
	apiKey      string
	chainID     string
	maxAttempts int
	backoff     BackoffFunc
	httpClient  *http.Client
	sleep       SleepFunc
	logger      *zap.Logger
}

// NewClient builds a Client. A nil logger is replaced with a no-op logger.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff == nil {
		cfg.Backoff = LinearBackoff(time.Second)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		chainID:     cfg.ChainID,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		httpClient:  cfg.HTTPClient,
		sleep:       sleepContext,
		logger:      logger,
	}
}

// apiEnvelope is the raw response shape: status "1" carries records, status
// "0" is either the empty-success message or a retryable error.
type apiEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// rawLog is one record as the API encodes it; numeric fields arrive as hex
// strings.
type rawLog struct {
	Address   string   `json:"address"`
	Topics    []string `json:"topics"`
	Data      string   `json:"data"`
	TxHash    string   `json:"transactionHash"`
	BlockNum  string   `json:"blockNumber"`
	TimeStamp string   `json:"timeStamp"`
}

type pageKind int

const (
	pageOK pageKind = iota
	pageEmpty
	pageRetry
)

type pageResult struct {
	kind    pageKind
	entries []model.RawLogEntry
	message string
}

// FetchPage fetches one page of logs for the filter. An explicit "no records"
// response is a valid empty result. Any other rejection is retried with
// backoff; after the final attempt the call fails with *model.UpstreamError.
func (c *Client) FetchPage(ctx context.Context, filter model.EventFilter, page, pageSize int) ([]model.RawLogEntry, error) {
	reqURL := c.buildURL(filter, page, pageSize)
	redacted := redactCredential(reqURL, c.apiKey)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		result, err := c.doRequest(ctx, reqURL)
		switch {
		case err != nil:
			lastErr = err
			c.logger.Warn("log page fetch failed",
				zap.String("stream", filter.Stream),
				zap.Int("page", page),
				zap.Int("attempt", attempt),
				zap.String("url", redacted),
				zap.Error(err),
			)
		case result.kind == pageEmpty:
			c.logger.Debug("log page empty",
				zap.String("stream", filter.Stream),
				zap.Int("page", page),
				zap.Int("attempt", attempt),
			)
			return nil, nil
		case result.kind == pageOK:
			c.logger.Debug("log page fetched",
				zap.String("stream", filter.Stream),
				zap.Int("page", page),
				zap.Int("attempt", attempt),
				zap.Int("entries", len(result.entries)),
			)
			return result.entries, nil
		default:
			lastErr = fmt.Errorf("upstream rejected request: %s", result.message)
			c.logger.Warn("log page rejected",
				zap.String("stream", filter.Stream),
				zap.Int("page", page),
				zap.Int("attempt", attempt),
				zap.String("message", result.message),
			)
		}

		if attempt < c.maxAttempts {
			if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, &model.UpstreamError{Stream: filter.Stream, Page: page, Attempts: attempt, Err: err}
			}
		}
	}

	return nil, &model.UpstreamError{Stream: filter.Stream, Page: page, Attempts: c.maxAttempts, Err: lastErr}
}

func (c *Client) doRequest(ctx context.Context, reqURL string) (pageResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return pageResult{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pageResult{}, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32*1024*1024))
	if err != nil {
		return pageResult{}, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return pageResult{}, fmt.Errorf("http status %d", resp.StatusCode)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return pageResult{}, fmt.Errorf("decode envelope: %w", err)
	}

	return classify(envelope)
}

// classify turns the duck-typed envelope into a tagged result at the
// boundary, so nothing downstream sees untyped payloads.
func classify(envelope apiEnvelope) (pageResult, error) {
	if envelope.Status == "0" {
		if envelope.Message == noRecordsMessage {
			return pageResult{kind: pageEmpty}, nil
		}
		return pageResult{kind: pageRetry, message: envelope.Message}, nil
	}
	if envelope.Status != "1" {
		return pageResult{kind: pageRetry, message: fmt.Sprintf("unexpected status %q: %s", envelope.Status, envelope.Message)}, nil
	}

	var logs []rawLog
	if err := json.Unmarshal(envelope.Result, &logs); err != nil {
		return pageResult{}, fmt.Errorf("decode result: %w", err)
	}

	entries := make([]model.RawLogEntry, 0, len(logs))
	for _, log := range logs {
		entries = append(entries, model.RawLogEntry{
			Address:     log.Address,
			Topics:      log.Topics,
			Data:        log.Data,
			TxHash:      log.TxHash,
			BlockNumber: parseHexUint(log.BlockNum),
			Timestamp:   parseHexUint(log.TimeStamp),
		})
	}
	return pageResult{kind: pageOK, entries: entries}, nil
}

func (c *Client) buildURL(filter model.EventFilter, page, pageSize int) string {
	params := url.Values{}
	params.Set("chainid", c.chainID)
	params.Set("module", "logs")
	params.Set("action", "getLogs")
	params.Set("fromBlock", strconv.FormatUint(filter.FromBlock, 10))
	params.Set("toBlock", "latest")
	params.Set("address", filter.Address)
	params.Set("topic0", filter.Topic0)
	params.Set("page", strconv.Itoa(page))
	params.Set("offset", strconv.Itoa(pageSize))
	params.Set("apikey", c.apiKey)

	if filter.Topic1 != "" {
		params.Set("topic1", filter.Topic1)
		params.Set("topic0_1_opr", "and")
	}
	if filter.Topic2 != "" {
		params.Set("topic2", filter.Topic2)
		params.Set("topic0_2_opr", "and")
		if filter.Topic1 != "" {
			params.Set("topic1_2_opr", "and")
		}
	}

	return c.baseURL + "?" + params.Encode()
}

// redactCredential strips the API key from a URL before it reaches any log
// line.
func redactCredential(rawURL, apiKey string) string {
	if apiKey == "" {
		return rawURL
	}
	return strings.ReplaceAll(rawURL, apiKey, "REDACTED")
}

func parseHexUint(value string) uint64 {
	if value == "" {
		return 0
	}
	if parsed, err := hexutil.DecodeUint64(value); err == nil {
		return parsed
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
