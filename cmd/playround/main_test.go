package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/brensch/raysnek/executor/steering"
	"github.com/brensch/raysnek/game"
	"github.com/brensch/raysnek/store"
)

func TestLoadParams_Sources(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "champions.jsonl")

	p, gen, err := loadParams("", logPath, -1)
	if err != nil || gen != -1 || len(p.EyeAngles) != 5 {
		t.Fatalf("empty log: gen=%d eyes=%v err=%v", gen, p.EyeAngles, err)
	}
	if _, _, err := loadParams("", logPath, 3); err == nil {
		t.Fatalf("asking for a generation of an empty log should fail")
	}

	champ := steering.DefaultParams()
	champ.EyeAngles = []float64{-0.25, 0, 0.25, 0.3, 0.4}
	raw, _ := json.Marshal(champ)
	l, err := store.OpenChampionLog(logPath)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if err := l.Append(store.ChampionEntry{Generation: 7, Params: raw}); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = l.Close()

	p, gen, err = loadParams("", logPath, -1)
	if err != nil || gen != 7 || p.EyeAngles[0] != -0.25 {
		t.Fatalf("champion: gen=%d eyes=%v err=%v", gen, p.EyeAngles, err)
	}

	file := filepath.Join(dir, "p.json")
	if err := os.WriteFile(file, raw, 0o644); err != nil {
		t.Fatalf("write params: %v", err)
	}
	p, gen, err = loadParams(file, logPath, 7)
	if err != nil || gen != -1 || p.EyeAngles[2] != 0.25 {
		t.Fatalf("file: gen=%d eyes=%v err=%v", gen, p.EyeAngles, err)
	}
}

func TestRun_ArchivesHeadingRound(t *testing.T) {
	dir := t.TempDir()
	err := run(game.DefaultConfig(), options{
		championPath: filepath.Join(dir, "champions.jsonl"),
		generation:   -1,
		kindName:     "heading",
		foodSeed:     1,
		outDir:       dir,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	ticks, _ := filepath.Glob(filepath.Join(dir, store.TicksDir, "*.parquet"))
	rounds, _ := filepath.Glob(filepath.Join(dir, store.RoundsDir, "*.parquet"))
	if len(ticks) != 1 || len(rounds) != 1 {
		t.Fatalf("ticks=%v rounds=%v", ticks, rounds)
	}
	rows, err := store.ReadTicks(ticks[0])
	if err != nil {
		t.Fatalf("read ticks: %v", err)
	}
	summary, err := store.ReadRounds(rounds[0])
	if err != nil {
		t.Fatalf("read rounds: %v", err)
	}
	if len(summary) != 1 || int(summary[0].Ticks)+1 != len(rows) {
		t.Fatalf("rows=%d summary=%+v", len(rows), summary)
	}
	if summary[0].Source != "replay" || summary[0].Cause != "out_of_bounds" {
		t.Fatalf("summary=%+v", summary[0])
	}
}
