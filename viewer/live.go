package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brensch/raysnek/executor/selfplay"
	"github.com/brensch/raysnek/executor/steering"
	"github.com/brensch/raysnek/game"
	"github.com/brensch/raysnek/rules"
	"github.com/brensch/raysnek/store"
)

const liveWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:    1024,
	WriteBufferSize:   4096,
	EnableCompression: true,
}

// frameSink is the RenderSink for a live round. Each tick it sends the state
// the controller is about to act on, with the rays the given eyes would see.
type frameSink struct {
	ws     *websocket.Conn
	cfg    game.Config
	eyes   []float64
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (s *frameSink) Render(r *game.Round) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	f := LiveFrame{Type: "frame", Frame: frameFromRound(s.cfg, r, castEyes(s.cfg, r, s.eyes))}
	if err := s.send(f); err != nil {
		s.err = err
		s.cancel()
	}
}

func (s *frameSink) send(v any) error {
	_ = s.ws.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	return s.ws.WriteJSON(v)
}

func (s *frameSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func castEyes(cfg game.Config, r *game.Round, eyes []float64) []rules.Hit {
	if len(eyes) == 0 {
		return nil
	}
	head := r.Snake.Head()
	dir, err := head.Heading.Normalize()
	if err != nil {
		return nil
	}
	obs := rules.ObstaclesFor(cfg, r)
	hits := make([]rules.Hit, 0, len(eyes))
	for _, ray := range steering.Rays(dir, eyes) {
		h, err := rules.Cast(obs, head.Position, ray)
		if err != nil {
			return nil
		}
		hits = append(hits, h)
	}
	return hits
}

func frameFromRound(cfg game.Config, r *game.Round, hits []rules.Hit) Frame {
	head := r.Snake.Head()
	f := Frame{
		RoundID:  r.ID,
		Tick:     int32(r.Ticks),
		Width:    cfg.Width,
		Height:   cfg.Height,
		Heading:  Point{X: head.Heading.X, Y: head.Heading.Y},
		Food:     Point{X: r.Food.X, Y: r.Food.Y},
		Body:     make([]Point, 0, r.Snake.Len()),
		Score:    int32(r.Score),
		Length:   int32(r.Snake.Len()),
		Finished: r.Finished,
		Cause:    r.Cause.String(),
	}
	for _, seg := range r.Snake.Body {
		f.Body = append(f.Body, Point{X: seg.Position.X, Y: seg.Position.Y})
	}
	if len(hits) > 0 {
		f.Rays = make([]float64, len(hits))
		f.RayKinds = make([]int32, len(hits))
		for i, h := range hits {
			f.Rays[i] = h.Distance
			f.RayKinds[i] = int32(h.Kind)
		}
	}
	return f
}

// handleLive simulates one round and streams it frame by frame at the
// configured refresh rate. Query params: generation (default latest
// champion), controller, seed, max_ticks.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	kind, err := steering.ParseKind(r.URL.Query().Get("controller"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	gen := parseIntQuery(r, "generation", -1)
	params, paramsGen, err := s.championParams(gen)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	maxTicks := parseIntQuery(r, "max_ticks", s.live.MaxTicks)
	seed := int64(parseIntQuery(r, "seed", int(time.Now().UnixNano()&0x7fffffff)))

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	ws.EnableWriteCompression(true)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads only detect the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("ws read error", "error", err)
				}
				return
			}
		}
	}()

	var eyes []float64
	if kind == steering.KindNeural {
		eyes = params.EyeAngles
	}
	sink := &frameSink{ws: ws, cfg: s.live.Config, eyes: eyes, cancel: cancel}
	if err := sink.send(LiveHello{
		Type:       "hello",
		Width:      s.live.Config.Width,
		Height:     s.live.Config.Height,
		Generation: paramsGen,
		Controller: string(kind),
		EyeAngles:  params.EyeAngles,
		TickRate:   s.live.Config.RefreshRate,
	}); err != nil {
		return
	}

	pace := time.Duration(0)
	if s.live.Config.RefreshRate > 0 {
		pace = time.Second / time.Duration(s.live.Config.RefreshRate)
	}
	out, playErr := selfplay.PlayRound(ctx, selfplay.RoundSpec{
		Config:     s.live.Config,
		Generation: paramsGen,
		Kind:       kind,
		Params:     params,
		FoodSeed:   seed,
		MaxTicks:   maxTicks,
		Sink:       sink,
		Pace:       pace,
		Source:     "live",
	})
	if sink.Err() != nil || errors.Is(playErr, context.Canceled) {
		return
	}

	end := LiveEnd{Type: "end", Ticks: out.Ticks, Score: out.Score, Cause: out.Cause.String()}
	if playErr != nil {
		end.Error = playErr.Error()
	}
	sink.mu.Lock()
	_ = sink.send(end)
	sink.mu.Unlock()
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "round over"),
		time.Now().Add(time.Second))
}

// championParams returns the params of the champion of gen, or of the latest
// generation when gen < 0. With no champions yet the built-in network is
// used and the generation reported as -1.
func (s *Server) championParams(gen int) (steering.Params, int, error) {
	entries, err := loadChampions(s.championLog)
	if err != nil {
		return steering.Params{}, 0, err
	}
	if len(entries) == 0 {
		if gen >= 0 {
			return steering.Params{}, 0, errNoChampion
		}
		return steering.DefaultParams(), -1, nil
	}
	e, ok := store.PickChampion(entries, gen)
	if !ok {
		return steering.Params{}, 0, errNoChampion
	}
	p, err := steering.ParseParams(e.Params)
	if err != nil {
		return steering.Params{}, 0, err
	}
	return p, e.Generation, nil
}

var errNoChampion = errors.New("no champion for that generation")
