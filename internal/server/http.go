package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"bookmirror/internal/book"
	"bookmirror/internal/config"
	"bookmirror/internal/feed"
)

// HTTPServer is the query/command surface over the shared book: point-in-time
// reads, a manual JSON injection path, and a WS hub that streams applied ticks.
type HTTPServer struct {
	cfg config.Config
	ob  *book.OrderBook
	fd  feed.BookFeed
	hub *hub
	log *slog.Logger
	mux *http.ServeMux
}

func NewHTTPServer(cfg config.Config, ob *book.OrderBook, fd feed.BookFeed, logger *slog.Logger) *HTTPServer {
	s := &HTTPServer{
		cfg: cfg,
		ob:  ob,
		fd:  fd,
		hub: newHub(logger),
		log: logger,
		mux: http.NewServeMux(),
	}
	s.routes()
	go s.hub.run()
	return s
}

func (s *HTTPServer) Router() http.Handler { return s.mux }

// --------- WS broadcasts ----------

func (s *HTTPServer) BroadcastStatus() {
	s.hub.broadcast <- marshalWS("status", map[string]any{
		"connected":    s.fd.Connected(),
		"symbol":       s.ob.Symbol(),
		"lastUpdateId": s.ob.LastUpdateID(),
	})
}

// BroadcastTick pushes the current best bid/ask after an update was applied.
func (s *HTTPServer) BroadcastTick() {
	bid, ask, ok := s.ob.BestBidAsk()
	if !ok {
		return
	}
	s.hub.broadcast <- marshalWS("tick", map[string]any{
		"symbol":       s.ob.Symbol(),
		"lastUpdateId": s.ob.LastUpdateID(),
		"bid":          bid,
		"ask":          ask,
	})
}

func (s *HTTPServer) BroadcastError(msg string) {
	s.hub.broadcast <- marshalWS("error", map[string]string{"message": msg})
}

// --------- Routes ----------

func (s *HTTPServer) routes() {
	s.mux.HandleFunc("/ws", s.hub.serveWS)

	s.mux.HandleFunc("/api/health", s.apiHealth)
	s.mux.HandleFunc("/api/book", s.apiBook)
	s.mux.HandleFunc("/api/volume", s.apiVolume)
	s.mux.HandleFunc("/api/inject", s.apiInject)
}

func (s *HTTPServer) apiHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"connected":    s.fd.Connected(),
		"symbol":       s.ob.Symbol(),
		"lastUpdateId": s.ob.LastUpdateID(),
	})
}

func (s *HTTPServer) apiBook(w http.ResponseWriter, r *http.Request) {
	bid, ask, ok := s.ob.BestBidAsk()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"symbol": s.ob.Symbol(),
			"empty":  true,
		})
		return
	}
	bids, asks := s.ob.Depth()
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":       s.ob.Symbol(),
		"empty":        false,
		"bid":          bid,
		"ask":          ask,
		"bidLevels":    bids,
		"askLevels":    asks,
		"lastUpdateId": s.ob.LastUpdateID(),
	})
}

func (s *HTTPServer) apiVolume(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("price")
	if raw == "" {
		http.Error(w, "price query parameter required", http.StatusBadRequest)
		return
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		http.Error(w, "price must be a decimal number", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol": s.ob.Symbol(),
		"price":  price,
		"volume": s.ob.VolumeAtPrice(price),
	})
}

// apiInject feeds a raw stream-shaped payload through the same decode ->
// validate -> apply path the live feed uses. Rejections report why and leave
// the book unchanged.
func (s *HTTPServer) apiInject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	upd, err := feed.DecodeMessage(body)
	if err == nil {
		err = s.ob.Apply(upd)
	}
	if err != nil {
		reason := classify(err)
		s.log.Warn("inject rejected",
			slog.String("reason", reason),
			slog.String("err", err.Error()),
		)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"ok":     false,
			"reason": reason,
			"error":  err.Error(),
		})
		return
	}

	s.BroadcastTick()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"lastUpdateId": s.ob.LastUpdateID(),
	})
}

// classify maps a rejection to a stable machine-readable tag.
func classify(err error) string {
	var mismatch *book.SymbolMismatchError
	var stale *book.StaleUpdateError
	var parse *feed.ParseError
	switch {
	case errors.As(err, &mismatch):
		return "symbol_mismatch"
	case errors.As(err, &stale):
		return "stale_update"
	case errors.As(err, &parse):
		return "parse_error"
	case errors.Is(err, feed.ErrMalformedMessage):
		return "malformed"
	default:
		return "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
