package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"marketgateway/internal/market"
	"marketgateway/internal/news"
	"marketgateway/internal/news/store"
)

type server struct {
	market *market.Service
	news   *news.Service
	log    *slog.Logger
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /api/market/crypto", s.handleCrypto)
	mux.HandleFunc("GET /api/market/stocks/{ticker}", s.handlePreviousClose)
	mux.HandleFunc("GET /api/market/stocks/{ticker}/details", s.handleTickerDetails)
	mux.HandleFunc("GET /api/market/stocks/{ticker}/aggs", s.handleAggregates)
	mux.HandleFunc("GET /api/market/currency/exchange/{from}/{to}", s.handleExchangeRate)
	mux.HandleFunc("GET /api/news", s.handleNews)
	mux.HandleFunc("GET /api/news/db", s.handleNewsFromStore)
	mux.HandleFunc("POST /api/news/bulk-load", s.handleBulkLoad)
	return mux
}

func (s *server) handleCrypto(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	coins, err := s.market.CryptoSnapshot(r.Context(),
		q.Get("vs_currency"),
		queryInt(q.Get("per_page"), 50),
		queryInt(q.Get("page"), 1),
		q.Get("order"),
	)
	if err != nil {
		s.log.Error("crypto snapshot failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, "failed to retrieve cryptocurrency market data")
		return
	}
	writeJSON(w, http.StatusOK, coins)
}

func (s *server) handlePreviousClose(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	bar, err := s.market.PreviousClose(r.Context(), ticker)
	if err != nil {
		writeMarketError(w, err)
		return
	}
	if bar == nil {
		writeError(w, http.StatusNotFound, "data not found for ticker "+ticker)
		return
	}
	writeJSON(w, http.StatusOK, bar)
}

func (s *server) handleTickerDetails(w http.ResponseWriter, r *http.Request) {
	details, err := s.market.TickerDetails(r.Context(), r.PathValue("ticker"))
	if err != nil {
		writeMarketError(w, err)
		return
	}
	// Absent details are not an error for this endpoint; the UI treats
	// a null body as "no reference data".
	writeJSON(w, http.StatusOK, details)
}

func (s *server) handleAggregates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	to := q.Get("to")
	if to == "" {
		to = time.Now().Format("2006-01-02")
	}
	from := q.Get("from")
	if from == "" {
		limitDays := queryInt(q.Get("limitDays"), 7)
		toDate, err := time.Parse("2006-01-02", to)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date, want YYYY-MM-DD")
			return
		}
		from = toDate.AddDate(0, 0, -limitDays).Format("2006-01-02")
	}

	bars, err := s.market.Aggregates(r.Context(),
		r.PathValue("ticker"),
		queryInt(q.Get("multiplier"), 1),
		q.Get("timespan"),
		from, to,
	)
	if err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bars)
}

func (s *server) handleExchangeRate(w http.ResponseWriter, r *http.Request) {
	rate, err := s.market.ExchangeRate(r.Context(), r.PathValue("from"), r.PathValue("to"))
	if err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

func (s *server) handleNews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.news.GetNews(r.Context(), queryInt(q.Get("page"), 1), queryInt(q.Get("pageSize"), news.DefaultPageSize))
	if err != nil {
		s.log.Error("news fetch failed", "err", err)
		writeError(w, http.StatusBadGateway, "failed to fetch news from external source")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *server) handleNewsFromStore(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.news.GetNewsFromStore(r.Context(), queryInt(q.Get("page"), 1), queryInt(q.Get("pageSize"), news.DefaultPageSize))
	if err != nil {
		s.log.Error("news store read failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not retrieve news from database")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type bulkLoadRequest struct {
	Articles []store.Article `json:"articles"`
}

type bulkLoadResponse struct {
	Inserted int    `json:"inserted"`
	Message  string `json:"message"`
}

func (s *server) handleBulkLoad(w http.ResponseWriter, r *http.Request) {
	var body bulkLoadRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(body.Articles) == 0 {
		writeError(w, http.StatusBadRequest, "articles cannot be empty")
		return
	}
	inserted, err := s.news.BulkLoad(r.Context(), body.Articles)
	if err != nil {
		s.log.Error("bulk load failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not insert news articles")
		return
	}
	writeJSON(w, http.StatusOK, bulkLoadResponse{
		Inserted: len(inserted),
		Message:  "successfully processed " + strconv.Itoa(len(inserted)) + " articles",
	})
}

func writeMarketError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, market.ErrMissingTicker),
		errors.Is(err, market.ErrMissingCurrency),
		errors.Is(err, market.ErrMissingRange):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	x, err := strconv.Atoi(s)
	if err != nil || x <= 0 {
		return def
	}
	return x
}
