package server

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/IliaW/site-auditor/internal/model"
	"github.com/IliaW/site-auditor/internal/resolver"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/patrickmn/go-cache"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type EventSource interface {
	Events(ctx context.Context, siteURL string) iter.Seq[model.ProgressEvent]
}

type ReportStore interface {
	Save(ctx context.Context, report *model.AuditReport, force bool) error
}

type Server struct {
	auditor EventSource
	store   ReportStore
	latest  *cache.Cache
}

// New builds the HTTP surface. store may be nil, then reports live only in the latest-report cache.
func New(auditor EventSource, store ReportStore, latestTTL time.Duration) *Server {
	if latestTTL <= 0 {
		latestTTL = time.Hour
	}
	return &Server{
		auditor: auditor,
		store:   store,
		latest:  cache.New(latestTTL, 2*latestTTL),
	}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
	r.Mount("/debug", middleware.Profiler())
	r.Get("/api/audit", s.streamAudit)
	r.Get("/api/audit/latest", s.latestReport)
	return r
}

func (s *Server) streamAudit(w http.ResponseWriter, r *http.Request) {
	siteURL, err := resolver.SiteURL(r.URL.Query().Get("url"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range s.auditor.Events(r.Context(), siteURL) {
		if ev.Phase == model.PhaseComplete && ev.Report != nil {
			s.keep(r.Context(), ev.Report)
		}
		if err := writeEvent(w, ev); err != nil {
			slog.Warn("client went away. stopping audit.", slog.String("url", siteURL),
				slog.String("err", err.Error()))
			return
		}
		flusher.Flush()
	}
}

func (s *Server) keep(ctx context.Context, report *model.AuditReport) {
	s.latest.SetDefault(latestKey(report.SiteURL), report)
	if s.store == nil {
		return
	}
	if err := s.store.Save(context.WithoutCancel(ctx), report, true); err != nil {
		slog.Error("failed to store report.", slog.String("url", report.SiteURL), slog.String("err", err.Error()))
	}
}

func (s *Server) latestReport(w http.ResponseWriter, r *http.Request) {
	siteURL, err := resolver.SiteURL(r.URL.Query().Get("url"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	report, ok := s.latest.Get(latestKey(siteURL))
	if !ok {
		http.Error(w, "no report for "+siteURL, http.StatusNotFound)
		return
	}
	body, err := json.Marshal(report)
	if err != nil {
		slog.Error("marshaling failed.", slog.String("err", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func writeEvent(w http.ResponseWriter, ev model.ProgressEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", body)
	return err
}

func latestKey(siteURL string) string {
	return resolver.Normalize(resolver.Origin(siteURL))
}
