package etherscan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/GoJackzi/zamauction/internal/model"
)

func newTestPaginator(baseURL string, pageSize, maxPages int) *Paginator {
	client := newTestClient(baseURL)
	p := NewPaginator(client, PaginatorConfig{PageSize: pageSize, MaxPages: maxPages}, nil)
	sleep, _ := noSleep()
	p.sleep = sleep
	return p
}

func TestFetchAllStopsOnShortPage(t *testing.T) {
	var requests atomic.Int32
	pageSize := 5
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		switch {
		case page <= 2:
			fmt.Fprint(w, logsBody(pageSize))
		case page == 3:
			fmt.Fprint(w, logsBody(2))
		default:
			t.Errorf("unexpected request for page %d", page)
			fmt.Fprint(w, logsBody(0))
		}
	}))
	defer server.Close()

	p := newTestPaginator(server.URL, pageSize, 100)
	entries, err := p.FetchAll(context.Background(), testFilter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2*pageSize+2 {
		t.Fatalf("want %d entries, got %d", 2*pageSize+2, len(entries))
	}
	if requests.Load() != 3 {
		t.Fatalf("want exactly 3 requests, got %d", requests.Load())
	}
}

func TestFetchAllEmptyFirstPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"0","message":"No records found","result":[]}`)
	}))
	defer server.Close()

	p := newTestPaginator(server.URL, 1000, 100)
	entries, err := p.FetchAll(context.Background(), testFilter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("want no entries, got %d", len(entries))
	}
}

func TestFetchAllStopsAtPageCeiling(t *testing.T) {
	var requests atomic.Int32
	pageSize := 3
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, logsBody(pageSize))
	}))
	defer server.Close()

	p := newTestPaginator(server.URL, pageSize, 4)
	entries, err := p.FetchAll(context.Background(), testFilter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requests.Load() != 4 {
		t.Fatalf("want 4 requests, got %d", requests.Load())
	}
	if len(entries) != 4*pageSize {
		t.Fatalf("want %d entries, got %d", 4*pageSize, len(entries))
	}
}

func TestFetchAllReturnsPrefixOnPageFailure(t *testing.T) {
	pageSize := 5
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page == 1 {
			fmt.Fprint(w, logsBody(pageSize))
			return
		}
		fmt.Fprint(w, `{"status":"0","message":"Max rate limit reached","result":null}`)
	}))
	defer server.Close()

	p := newTestPaginator(server.URL, pageSize, 100)
	entries, err := p.FetchAll(context.Background(), testFilter())
	if err == nil {
		t.Fatalf("expected error for failed page")
	}

	var upstream *model.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("want *model.UpstreamError, got %T", err)
	}
	if upstream.Page != 2 {
		t.Fatalf("want failure on page 2, got %d", upstream.Page)
	}
	if len(entries) != pageSize {
		t.Fatalf("want page 1 prefix of %d entries, got %d", pageSize, len(entries))
	}
}
