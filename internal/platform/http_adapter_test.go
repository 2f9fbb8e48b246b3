package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ticketrecon/internal/config"
)

type staticLinks map[string]string

func (s staticLinks) ExternalEventID(_ context.Context, eventID, platform string) (string, error) {
	id, ok := s[eventID+"/"+platform]
	if !ok {
		return "", ErrEventNotLinked
	}
	return id, nil
}

func TestHTTPAdapter_FetchSalesPaged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events/ext-9/orders" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("cursor") {
		case "":
			fmt.Fprint(w, `{"orders":[
				{"order_id":"O1","customer_email":"a@x.com","quantity":2,"total":"45.00","currency":"aud","created_at":"2026-03-01T10:00:00Z"},
				{"order_id":"O2","status":"refunded","total":"20.00","currency":"AUD"}
			],"next_cursor":"p2","has_more":true}`)
		case "p2":
			fmt.Fprint(w, `{"orders":[{"id":"O3","total":"1500","currency":"JPY"}],"has_more":false}`)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	}))
	defer srv.Close()

	a, err := NewHTTPAdapter("humanitix", config.PlatformConfig{
		BaseURL:      srv.URL,
		APIKey:       "secret",
		APIKeyHeader: "x-api-key",
	}, staticLinks{"evt-1/humanitix": "ext-9"})
	if err != nil {
		t.Fatalf("NewHTTPAdapter: %v", err)
	}

	sales, err := a.FetchSales(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("FetchSales: %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("expected 2 sales (refunded skipped), got %d", len(sales))
	}
	first := sales[0]
	if first.OrderID != "O1" || first.TotalAmount != 4500 || first.Currency != "AUD" || first.Quantity != 2 {
		t.Fatalf("unexpected first sale %+v", first)
	}
	if first.EventID != "evt-1" || first.Platform != "humanitix" {
		t.Fatalf("sale not tagged with local event/platform: %+v", first)
	}
	if !first.PurchasedAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("purchased at = %v", first.PurchasedAt)
	}
	if sales[1].OrderID != "O3" || sales[1].TotalAmount != 1500 || sales[1].Quantity != 1 {
		t.Fatalf("unexpected second sale %+v", sales[1])
	}
}

func TestHTTPAdapter_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/events/unauthorized/orders":
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"bad key"}`)
		case "/events/garbage/orders":
			fmt.Fprint(w, `not json`)
		case "/events/badamount/orders":
			fmt.Fprint(w, `{"orders":[{"order_id":"X","total":"ten"}]}`)
		case "/events/slow/orders":
			time.Sleep(300 * time.Millisecond)
			fmt.Fprint(w, `{"orders":[]}`)
		}
	}))
	defer srv.Close()

	a, err := NewHTTPAdapter("eventbrite", config.PlatformConfig{BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatalf("NewHTTPAdapter: %v", err)
	}

	if _, err := a.FetchSales(context.Background(), "unauthorized"); err == nil {
		t.Fatalf("expected error for HTTP 401")
	}
	if _, err := a.FetchSales(context.Background(), "garbage"); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if _, err := a.FetchSales(context.Background(), "badamount"); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for bad amount, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := a.FetchSales(ctx, "slow"); !errors.Is(err, ErrAdapterTimeout) {
		t.Fatalf("expected ErrAdapterTimeout, got %v", err)
	}
}

func TestHTTPAdapter_RateLimit(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, `{"orders":[{"order_id":"O1","total":"10.00","currency":"AUD"}],"next_cursor":"p2","has_more":true}`)
	}))
	defer srv.Close()

	// 每分钟一次：第一页立即发出，第二页要等一分钟
	a, err := NewHTTPAdapter("humanitix", config.PlatformConfig{BaseURL: srv.URL, RateLimitPerMin: 1}, nil)
	if err != nil {
		t.Fatalf("NewHTTPAdapter: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	if _, err := a.FetchSales(ctx, "evt-1"); !errors.Is(err, ErrAdapterTimeout) {
		t.Fatalf("expected ErrAdapterTimeout, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("hits = %d, want 1", n)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("limiter waited %v instead of failing fast", elapsed)
	}
}

func TestHTTPAdapter_UnlinkedEvent(t *testing.T) {
	a, err := NewHTTPAdapter("humanitix", config.PlatformConfig{BaseURL: "http://127.0.0.1:1"}, staticLinks{})
	if err != nil {
		t.Fatalf("NewHTTPAdapter: %v", err)
	}
	if _, err := a.FetchSales(context.Background(), "evt-x"); !errors.Is(err, ErrEventNotLinked) {
		t.Fatalf("expected ErrEventNotLinked, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewMemoryAdapter("eventbrite"), NewMemoryAdapter("humanitix"))
	if _, ok := r.Lookup("humanitix"); !ok {
		t.Fatalf("humanitix not registered")
	}
	if _, ok := r.Lookup("ticketek"); ok {
		t.Fatalf("unexpected adapter")
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "eventbrite" || names[1] != "humanitix" {
		t.Fatalf("names = %v", names)
	}
}
