package main

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/brensch/raysnek/game"
)

// LiveConfig is the arena the live stream simulates in.
type LiveConfig struct {
	Config   game.Config
	MaxTicks int
}

type Server struct {
	roots       []string
	dbCache     *DBCache
	championLog string
	live        LiveConfig
}

func NewServer(roots []string, dbCache *DBCache, championLog string, live LiveConfig) *Server {
	return &Server{
		roots:       roots,
		dbCache:     dbCache,
		championLog: championLog,
		live:        live,
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/rounds", s.handleRounds)
	mux.HandleFunc("/api/rounds/{id}/ticks", s.handleRoundTicks)
	mux.HandleFunc("/api/generations", s.handleGenerations)
	mux.HandleFunc("/api/champions", s.handleChampions)
	mux.HandleFunc("/ws/live", s.handleLive)
}

// allowGet applies CORS and reports whether the handler should continue.
func allowGet(w http.ResponseWriter, r *http.Request) bool {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		return false
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) handleRounds(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	db, err := s.dbCache.Get()
	if err != nil {
		slog.Error("open duckdb failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	limit := parseIntQuery(r, "limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	f := roundFilter{
		Generation: -1,
		Limit:      limit,
		Offset:     parseIntQuery(r, "offset", 0),
		SortKey:    r.URL.Query().Get("sort"),
		SortDir:    r.URL.Query().Get("dir"),
	}
	if strings.TrimSpace(r.URL.Query().Get("generation")) != "" {
		f.Generation = parseIntQuery(r, "generation", -1)
	}

	rounds, total, err := queryRounds(r.Context(), db, s.roots, f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, RoundsResponse{Total: total, Rounds: rounds})
}

func (s *Server) handleRoundTicks(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		http.Error(w, "missing round id", http.StatusBadRequest)
		return
	}
	db, err := s.dbCache.Get()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	frames, err := queryTicks(r.Context(), db, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(frames) == 0 {
		http.Error(w, "round not found (ticks are only archived with -record-ticks)", http.StatusNotFound)
		return
	}
	writeJSON(w, TicksResponse{RoundID: id, Frames: frames})
}

func (s *Server) handleGenerations(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	db, err := s.dbCache.Get()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	gens, err := queryGenerations(r.Context(), db)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, GenerationsResponse{Generations: gens})
}

func (s *Server) handleChampions(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	entries, err := loadChampions(s.championLog)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	withParams := r.URL.Query().Get("params") == "1"
	out := make([]ChampionSummary, 0, len(entries))
	for _, e := range entries {
		c := ChampionSummary{
			Generation: e.Generation,
			RoundID:    e.RoundID,
			Agent:      e.Agent,
			Fitness:    e.Fitness,
			Score:      e.Score,
			Ticks:      e.Ticks,
			WrittenAt:  e.WrittenAt,
		}
		if withParams {
			c.Params = e.Params
		}
		out = append(out, c)
	}
	writeJSON(w, out)
}
