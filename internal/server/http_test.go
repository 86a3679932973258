package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"bookmirror/internal/book"
	"bookmirror/internal/config"
	"bookmirror/internal/feed"
)

func newTestServer(t *testing.T) (*HTTPServer, *book.OrderBook) {
	t.Helper()
	ob := book.New("BNBUSDT")
	logger := config.NewLogger("error")
	return NewHTTPServer(config.Config{Symbol: "BNBUSDT"}, ob, feed.NewMockBookFeed(), logger), ob
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("bad json from %s %s: %v: %s", method, target, err, rec.Body.String())
	}
	return rec.Code, out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	code, out := doJSON(t, srv.Router(), http.MethodGet, "/api/health", "")
	if code != http.StatusOK || out["ok"] != true {
		t.Fatalf("health got %d %v", code, out)
	}
	if out["symbol"] != "BNBUSDT" {
		t.Fatalf("symbol got %v", out["symbol"])
	}
}

func TestBookEmptyThenPopulated(t *testing.T) {
	srv, ob := newTestServer(t)

	code, out := doJSON(t, srv.Router(), http.MethodGet, "/api/book", "")
	if code != http.StatusOK || out["empty"] != true {
		t.Fatalf("empty book got %d %v", code, out)
	}

	if err := ob.ApplyDepth(book.DepthUpdate{
		ID:   1,
		Bids: []book.Level{mustLevel(t, "25.35", "3")},
		Asks: []book.Level{mustLevel(t, "25.36", "4")},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	code, out = doJSON(t, srv.Router(), http.MethodGet, "/api/book", "")
	if code != http.StatusOK || out["empty"] != false {
		t.Fatalf("book got %d %v", code, out)
	}
	bid := out["bid"].(map[string]any)
	if bid["price"] != "25.35" {
		t.Fatalf("bid price got %v", bid["price"])
	}
}

func TestVolumeEndpoint(t *testing.T) {
	srv, ob := newTestServer(t)
	_ = ob.ApplyDepth(book.DepthUpdate{ID: 1, Bids: []book.Level{mustLevel(t, "0.0024", "10")}})

	code, out := doJSON(t, srv.Router(), http.MethodGet, "/api/volume?price=0.0024", "")
	if code != http.StatusOK || out["volume"] != "10" {
		t.Fatalf("volume got %d %v", code, out)
	}
	code, out = doJSON(t, srv.Router(), http.MethodGet, "/api/volume?price=9.99", "")
	if code != http.StatusOK || out["volume"] != "0" {
		t.Fatalf("absent volume got %d %v", code, out)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/volume?price=abc", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad price got %d", rec.Code)
	}
}

func TestInjectAppliesAndRejects(t *testing.T) {
	srv, ob := newTestServer(t)

	ticker := `{"u":100,"s":"BNBUSDT","b":"25.3519","B":"31.21","a":"25.3652","A":"40.66"}`
	code, out := doJSON(t, srv.Router(), http.MethodPost, "/api/inject", ticker)
	if code != http.StatusOK || out["ok"] != true {
		t.Fatalf("inject got %d %v", code, out)
	}
	if ob.LastUpdateID() != 100 {
		t.Fatalf("lastUpdateId got %d", ob.LastUpdateID())
	}

	// Replay of the same id is stale.
	code, out = doJSON(t, srv.Router(), http.MethodPost, "/api/inject", ticker)
	if code != http.StatusUnprocessableEntity || out["reason"] != "stale_update" {
		t.Fatalf("replay got %d %v", code, out)
	}

	// Wrong symbol.
	other := `{"u":101,"s":"ETHUSDT","b":"1","B":"1","a":"2","A":"1"}`
	code, out = doJSON(t, srv.Router(), http.MethodPost, "/api/inject", other)
	if code != http.StatusUnprocessableEntity || out["reason"] != "symbol_mismatch" {
		t.Fatalf("mismatch got %d %v", code, out)
	}

	// Garbage payload.
	code, out = doJSON(t, srv.Router(), http.MethodPost, "/api/inject", `{"nope":1}`)
	if code != http.StatusUnprocessableEntity || out["reason"] != "malformed" {
		t.Fatalf("malformed got %d %v", code, out)
	}

	// Book untouched by the rejects.
	if ob.LastUpdateID() != 100 {
		t.Fatalf("book advanced past 100: %d", ob.LastUpdateID())
	}
}

func mustLevel(t *testing.T, price, qty string) book.Level {
	t.Helper()
	p, err := decimal.NewFromString(price)
	if err != nil {
		t.Fatal(err)
	}
	q, err := decimal.NewFromString(qty)
	if err != nil {
		t.Fatal(err)
	}
	return book.Level{Price: p, Qty: q}
}
