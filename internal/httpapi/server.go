// Package httpapi implements the HTTP ingress (report enqueue) and the
// read-only query API over the store, plus the GTFS-Realtime bridge.
package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/transitwatch/transitwatch/internal/aggregator"
	"github.com/transitwatch/transitwatch/internal/gtfs"
	"github.com/transitwatch/transitwatch/internal/queue"
	"github.com/transitwatch/transitwatch/internal/report"
	"github.com/transitwatch/transitwatch/internal/store"
)

// Server holds everything the HTTP handlers need: the outbound queue for
// /enqueue, and the store for every read-only endpoint. Its only store write
// is the opportunistic staleness sweep (Aggregator.SweepStale) run before
// listing incidents; reports and trust scores are written by the pipeline.
type Server struct {
	queue      queue.Queue
	store      *store.Store
	aggregator *aggregator.Aggregator
	mux        *http.ServeMux
}

// New builds a Server and registers every route.
func New(q queue.Queue, s *store.Store, agg *aggregator.Aggregator) *Server {
	srv := &Server{queue: q, store: s, aggregator: agg, mux: http.NewServeMux()}
	srv.routes()
	return srv
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/enqueue", s.handleEnqueue)
	s.mux.HandleFunc("/api/incidents", s.handleIncidents)
	s.mux.HandleFunc("/api/reports", s.handleReports)
	s.mux.HandleFunc("/api/incidents/", s.handleIncidentReports)
	s.mux.HandleFunc("/api/types", s.handleTypes)
	s.mux.HandleFunc("/api/locations", s.handleLocations)
	s.mux.HandleFunc("/gtfs/trip-updates", s.handleGTFS)
}

func withCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	withCORS(w)
	json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}

// handleEnqueue accepts a raw report message and publishes it to the queue
// without touching the store.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	withCORS(w)
	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := uuid.NewString()

	var msg report.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		slog.Warn("httpapi: invalid enqueue payload", "request_id", requestID, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": "Invalid payload"})
		return
	}
	if !msg.ReportType.Valid() {
		slog.Warn("httpapi: invalid report type", "request_id", requestID, "report_type", msg.ReportType)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": "Invalid payload"})
		return
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"error": "Could not enqueue report"})
		return
	}

	if err := s.queue.Push(r.Context(), raw); err != nil {
		slog.Error("httpapi: enqueue failed", "request_id", requestID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"error": "Could not enqueue report"})
		return
	}

	slog.Info("httpapi: report enqueued", "request_id", requestID, "user", msg.UserName, "type", msg.ReportType)
	json.NewEncoder(w).Encode(map[string]any{
		"status":     "Report enqueued",
		"queue_size": s.queue.Size(),
	})
}

type incidentView struct {
	store.Incident
	LocationName string `json:"location_name"`
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	withCORS(w)

	if _, err := s.aggregator.SweepStale(); err != nil {
		slog.Warn("httpapi: opportunistic staleness sweep failed", "error", err)
	}

	incidents, err := s.store.ListIncidents(store.IncidentFilter{})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	views := make([]incidentView, 0, len(incidents))
	for _, inc := range incidents {
		loc, err := s.store.GetLocation(inc.LocationID)
		name := ""
		if err == nil {
			name = loc.Name
		}
		views = append(views, incidentView{Incident: inc, LocationName: name})
	}
	json.NewEncoder(w).Encode(views)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	withCORS(w)
	reports, err := s.store.ListReports()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(reports)
}

// handleIncidentReports serves GET /api/incidents/<id>/reports.
func (s *Server) handleIncidentReports(w http.ResponseWriter, r *http.Request) {
	withCORS(w)

	path := strings.TrimPrefix(r.URL.Path, "/api/incidents/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[1] != "reports" {
		http.NotFound(w, r)
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.Error(w, "invalid incident id", http.StatusBadRequest)
		return
	}

	reports, err := s.store.GetReportsForIncident(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(reports)
}

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	withCORS(w)
	types, err := s.store.ListReportTypes()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(types)
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	withCORS(w)
	locations, err := s.store.ListLocations()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(locations)
}

func (s *Server) handleGTFS(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Add(-60 * time.Minute)
	incidents, err := s.store.RecentlyUpdatedActiveIncidents(since)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	locations := make(map[int64]*store.Location, len(incidents))
	for _, inc := range incidents {
		if _, ok := locations[inc.LocationID]; ok {
			continue
		}
		loc, err := s.store.GetLocation(inc.LocationID)
		if err != nil {
			continue
		}
		locations[inc.LocationID] = loc
	}

	feed, err := gtfs.BuildFeed(incidents, locations)
	if err != nil {
		http.Error(w, fmt.Sprintf("build feed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-protobuf")
	w.Write(feed)
}
