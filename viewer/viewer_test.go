package main

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brensch/raysnek/game"
	"github.com/brensch/raysnek/store"
)

func TestFrameFromRound_HeadIsLastPoint(t *testing.T) {
	cfg := game.DefaultConfig()
	r := game.NewRound(game.NewSnake(cfg, cfg.InitialLength))
	r.Food = game.V(100, 50)

	f := frameFromRound(cfg, r, nil)
	if len(f.Body) != cfg.InitialLength || f.Length != int32(cfg.InitialLength) {
		t.Fatalf("body=%d length=%d", len(f.Body), f.Length)
	}
	head := f.Body[len(f.Body)-1]
	if head.X != 349 || head.Y != 240 {
		t.Fatalf("head=%+v want (349,240)", head)
	}
	if f.Food.X != 100 || f.Food.Y != 50 || f.Cause != "none" {
		t.Fatalf("frame=%+v", f)
	}
	if f.Rays != nil {
		t.Fatalf("rays without hits: %v", f.Rays)
	}
}

func newTestServer(t *testing.T, dir string) *httptest.Server {
	t.Helper()
	cfg := game.DefaultConfig()
	cfg.RefreshRate = 0
	dbCache := NewDBCache([]string{dir}, time.Minute)
	t.Cleanup(func() { _ = dbCache.Close() })

	s := NewServer([]string{dir}, dbCache, filepath.Join(dir, "champions.jsonl"), LiveConfig{Config: cfg, MaxTicks: 100})
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dialLive(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/live?" + query
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	_ = ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	return ws
}

func TestLive_StreamsCappedHeadingRound(t *testing.T) {
	srv := newTestServer(t, t.TempDir())
	ws := dialLive(t, srv, "controller=heading&max_ticks=5")

	var hello LiveHello
	if err := ws.ReadJSON(&hello); err != nil {
		t.Fatalf("hello: %v", err)
	}
	if hello.Type != "hello" || hello.Controller != "heading" || hello.Width != 640 || hello.Generation != -1 {
		t.Fatalf("hello=%+v", hello)
	}

	for i := 0; i < 5; i++ {
		var f LiveFrame
		if err := ws.ReadJSON(&f); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if f.Type != "frame" || f.Tick != int32(i) {
			t.Fatalf("frame %d: type=%s tick=%d", i, f.Type, f.Tick)
		}
		if len(f.Rays) != 0 {
			t.Fatalf("heading controller frames carry no rays, got %v", f.Rays)
		}
		head := f.Body[len(f.Body)-1]
		if want := 349 + float64(i); math.Abs(head.X-want) > 1e-9 {
			t.Fatalf("frame %d head x=%v want %v", i, head.X, want)
		}
	}

	var end LiveEnd
	if err := ws.ReadJSON(&end); err != nil {
		t.Fatalf("end: %v", err)
	}
	if end.Type != "end" || end.Ticks != 5 || end.Cause != "none" || end.Error != "" {
		t.Fatalf("end=%+v", end)
	}
}

func TestLive_NeuralFramesCarryRays(t *testing.T) {
	srv := newTestServer(t, t.TempDir())
	ws := dialLive(t, srv, "max_ticks=2")

	var hello LiveHello
	if err := ws.ReadJSON(&hello); err != nil {
		t.Fatalf("hello: %v", err)
	}
	if hello.Controller != "neural" || len(hello.EyeAngles) != 5 {
		t.Fatalf("hello=%+v", hello)
	}

	var f LiveFrame
	if err := ws.ReadJSON(&f); err != nil {
		t.Fatalf("frame: %v", err)
	}
	if len(f.Rays) != 5 || len(f.RayKinds) != 5 {
		t.Fatalf("rays=%v kinds=%v", f.Rays, f.RayKinds)
	}
	// The middle eye looks straight ahead at the right wall unless food is
	// in the way.
	if f.RayKinds[2] == 0 && math.Abs(f.Rays[2]-291) > 1e-6 {
		t.Fatalf("straight-ahead wall distance=%v want 291", f.Rays[2])
	}
}

func TestLive_UnknownGenerationIs404(t *testing.T) {
	srv := newTestServer(t, t.TempDir())
	resp, err := http.Get(srv.URL + "/ws/live?generation=7")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d want 404", resp.StatusCode)
	}
}

func TestQueries_EmptyOutputDir(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDBCache([]string{dir}, time.Minute).Get()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	gens, err := queryGenerations(context.Background(), db)
	if err != nil || len(gens) != 0 {
		t.Fatalf("gens=%v err=%v", gens, err)
	}
	rounds, total, err := queryRounds(context.Background(), db, []string{dir}, roundFilter{Generation: -1, Limit: 10})
	if err != nil || total != 0 || len(rounds) != 0 {
		t.Fatalf("rounds=%v total=%d err=%v", rounds, total, err)
	}
}

func TestQueries_RoundsGenerationsTicks(t *testing.T) {
	dir := t.TempDir()
	rounds := []store.RoundRow{
		{RoundID: "a", Generation: 0, Agent: 0, Ticks: 100, Score: 5, Fitness: 100, Cause: "out_of_bounds", Controller: "neural", Source: "selfplay"},
		{RoundID: "b", Generation: 0, Agent: 1, Ticks: 300, Score: 10, Fitness: 300, Cause: "self_collision", Controller: "neural", Source: "selfplay"},
		{RoundID: "c", Generation: 1, Agent: 0, Ticks: 50, Fitness: 50, Error: "food exhausted", Controller: "neural", Source: "selfplay"},
	}
	if _, err := store.WriteRoundBatch(dir, rounds); err != nil {
		t.Fatalf("write rounds: %v", err)
	}
	ticks := []store.ArchiveTickRow{
		{RoundID: "b", Tick: 1, HeadX: 350, HeadY: 240, HeadingX: 1, Rays: []float64{291}, RayKinds: []int32{0}, BodyX: []float32{349, 350}, BodyY: []float32{240, 240}},
		{RoundID: "b", Tick: 0, HeadX: 349, HeadY: 240, HeadingX: 1, BodyX: []float32{348, 349}, BodyY: []float32{240, 240}},
		{RoundID: "a", Tick: 0},
	}
	if _, err := store.WriteTickBatch(dir, ticks); err != nil {
		t.Fatalf("write ticks: %v", err)
	}

	db, err := NewDBCache([]string{dir}, time.Minute).Get()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	got, total, err := queryRounds(ctx, db, []string{dir}, roundFilter{Generation: 0, Limit: 10})
	if err != nil {
		t.Fatalf("rounds: %v", err)
	}
	if total != 2 || len(got) != 2 || got[0].RoundID != "b" {
		t.Fatalf("total=%d rounds=%+v", total, got)
	}
	if !strings.HasPrefix(got[0].Filename, store.RoundsDir+"/") {
		t.Fatalf("filename=%q", got[0].Filename)
	}

	gens, err := queryGenerations(ctx, db)
	if err != nil {
		t.Fatalf("generations: %v", err)
	}
	if len(gens) != 2 {
		t.Fatalf("gens=%+v", gens)
	}
	if g := gens[0]; g.Rounds != 2 || g.BestFitness != 300 || g.MeanTicks != 200 || g.BestScore != 10 || g.Failed != 0 {
		t.Fatalf("gen0=%+v", g)
	}
	if gens[1].Failed != 1 {
		t.Fatalf("gen1=%+v", gens[1])
	}

	frames, err := queryTicks(ctx, db, "b")
	if err != nil {
		t.Fatalf("ticks: %v", err)
	}
	if len(frames) != 2 || frames[0].Tick != 0 || frames[1].Tick != 1 {
		t.Fatalf("frames=%+v", frames)
	}
	if len(frames[1].Body) != 2 || frames[1].Body[1].X != 350 || len(frames[1].Rays) != 1 || frames[1].Rays[0] != 291 {
		t.Fatalf("frame1=%+v", frames[1])
	}
}

func TestListColumnDecoding(t *testing.T) {
	if got := int32s([]any{int32(1), int64(2), int8(3)}); len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("int32s=%v want [1 2 3]", got)
	}
	if got := floats([]any{float32(1.5), 2.0, int32(3)}); len(got) != 3 || got[0] != 1.5 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("floats=%v want [1.5 2 3]", got)
	}
	if got := floats(nil); got != nil {
		t.Fatalf("floats(nil)=%v want nil", got)
	}
	body := points([]float64{1, 2, 3}, []float64{4, 5})
	if len(body) != 2 || body[1] != (Point{X: 2, Y: 5}) {
		t.Fatalf("points=%v", body)
	}
}

func TestAllowGet_PreflightAndMethods(t *testing.T) {
	rec := httptest.NewRecorder()
	if allowGet(rec, httptest.NewRequest(http.MethodOptions, "/api/rounds", nil)) {
		t.Fatalf("OPTIONS should stop the handler")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin=%q want *", got)
	}
	rec = httptest.NewRecorder()
	if allowGet(rec, httptest.NewRequest(http.MethodPost, "/api/rounds", nil)) || rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST code=%d want 405", rec.Code)
	}
	if !allowGet(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/rounds?limit=x", nil)) {
		t.Fatalf("GET should continue")
	}
	if got := parseIntQuery(httptest.NewRequest(http.MethodGet, "/?limit=x&offset=-2&n=7", nil), "limit", 50); got != 50 {
		t.Fatalf("limit=%d want 50", got)
	}
}
