package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteTickBatch_AtomicAndReadable(t *testing.T) {
	dir := t.TempDir()
	rows := []ArchiveTickRow{
		{RoundID: "r1", Tick: 0, HeadX: 349, HeadY: 240, Rays: []float64{291, 240}, RayKinds: []int32{0, 0}, BodyX: []float32{348, 349}, BodyY: []float32{240, 240}, Source: "selfplay"},
		{RoundID: "r1", Tick: 1, HeadX: 350, HeadY: 240, Finished: true, Cause: "out_of_bounds", Source: "selfplay"},
	}
	path, err := WriteTickBatch(dir, rows)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != filepath.Join(dir, TicksDir) {
		t.Fatalf("path=%s not under ticks/", path)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, TicksDir, "tmp", "*"))
	if len(leftovers) != 0 {
		t.Fatalf("tmp files left behind: %v", leftovers)
	}

	got, err := ReadTicks(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Rays[0] != 291 || got[1].Cause != "out_of_bounds" || !got[1].Finished {
		t.Fatalf("got=%+v", got)
	}
}

func TestWriteRoundBatch(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteRoundBatch(dir, []RoundRow{{RoundID: "a", Score: 10, Fitness: 123, ParamsJSON: []byte(`{"eye_angles":[0]}`)}})
	if err != nil {
		t.Fatal(err)
	}
	got, err := ReadRounds(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Score != 10 || string(got[0].ParamsJSON) != `{"eye_angles":[0]}` {
		t.Fatalf("got=%+v", got)
	}
}

func TestBatchWriter_EmptyFinalizeRemovesTmp(t *testing.T) {
	dir := t.TempDir()
	w, err := NewBatchWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	out, rows, rounds, err := w.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if out != "" || rows != 0 || rounds != 0 {
		t.Fatalf("finalize=(%q,%d,%d) want empty", out, rows, rounds)
	}
	if _, err := os.Stat(w.TmpPath()); !os.IsNotExist(err) {
		t.Fatalf("tmp file still present: %v", err)
	}
}

func TestBatchWriter_StreamsRows(t *testing.T) {
	dir := t.TempDir()
	w, err := NewBatchWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := w.WriteRows([]ArchiveTickRow{{RoundID: "r", Tick: int32(i)}}); err != nil {
			t.Fatal(err)
		}
	}
	w.NoteRoundWritten()
	out, rows, rounds, err := w.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if rows != 3 || rounds != 1 || out != w.OutPath() {
		t.Fatalf("finalize=(%q,%d,%d)", out, rows, rounds)
	}
	got, err := ReadTicks(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[2].Tick != 2 {
		t.Fatalf("got=%+v", got)
	}
	if err := w.WriteRows([]ArchiveTickRow{{}}); err == nil {
		t.Fatalf("write after finalize succeeded")
	}
}

func TestChampionLog_TornFinalLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "champions.jsonl")
	l, err := OpenChampionLog(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Append(ChampionEntry{Generation: 0, Fitness: 10, Params: json.RawMessage(`{"eye_angles":[0]}`)}); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"generation":1,"fitn`); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	l, err = OpenChampionLog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if l.Count() != 1 || l.Skipped() != 1 {
		t.Fatalf("count=%d skipped=%d want 1/1", l.Count(), l.Skipped())
	}

	if err := l.Append(ChampionEntry{Generation: 1, Fitness: 20, Params: json.RawMessage(`{"eye_angles":[1]}`)}); err != nil {
		t.Fatal(err)
	}
	l.Close()

	l, err = OpenChampionLog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	latest, ok := l.Latest()
	if !ok || latest.Generation != 1 || latest.Fitness != 20 {
		t.Fatalf("latest=%+v ok=%v", latest, ok)
	}
	if l.Count() != 2 {
		t.Fatalf("count=%d want=2", l.Count())
	}
}

func TestChampionLog_RequiresParams(t *testing.T) {
	l, err := OpenChampionLog(filepath.Join(t.TempDir(), "c.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if err := l.Append(ChampionEntry{Generation: 3}); err == nil {
		t.Fatalf("expected error for missing params")
	}
	if _, ok := l.Latest(); ok {
		t.Fatalf("empty log reported a latest entry")
	}
}

func TestReadChampionLog_MissingAndPresent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.jsonl")
	entries, err := ReadChampionLog(path)
	if err != nil || len(entries) != 0 {
		t.Fatalf("missing log: entries=%d err=%v", len(entries), err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("reading must not create the log: %v", err)
	}

	l, err := OpenChampionLog(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.Append(ChampionEntry{Generation: 4, Params: json.RawMessage(`{"eye_angles":[0]}`)}); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err = ReadChampionLog(path)
	if err != nil {
		t.Fatalf("read while open: %v", err)
	}
	if len(entries) != 1 || entries[0].Generation != 4 {
		t.Fatalf("got=%+v", entries)
	}
	_ = l.Close()
}

func TestPickChampion(t *testing.T) {
	entries := []ChampionEntry{
		{Generation: 0, Fitness: 1},
		{Generation: 1, Fitness: 2},
		{Generation: 1, Fitness: 3},
		{Generation: 2, Fitness: 4},
	}
	if e, ok := PickChampion(entries, -1); !ok || e.Fitness != 4 {
		t.Fatalf("latest: got=%+v ok=%v", e, ok)
	}
	if e, ok := PickChampion(entries, 1); !ok || e.Fitness != 3 {
		t.Fatalf("gen 1: got=%+v ok=%v want the later line", e, ok)
	}
	if _, ok := PickChampion(entries, 9); ok {
		t.Fatalf("gen 9 should be missing")
	}
	if _, ok := PickChampion(nil, -1); ok {
		t.Fatalf("empty log has no latest")
	}
}

func TestCompactRounds_MergesShards(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		rows := []RoundRow{
			{RoundID: "r" + string(rune('a'+i)), Generation: int32(i), Ticks: int32(10 * i), Source: "selfplay"},
			{RoundID: "s" + string(rune('a'+i)), Generation: int32(i), Ticks: 1, Source: "selfplay"},
		}
		if _, err := WriteRoundBatch(dir, rows); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	res, err := CompactRounds(dir, 2)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if res.Inputs != 3 || res.Rows != 6 {
		t.Fatalf("res=%+v", res)
	}

	left, _ := filepath.Glob(filepath.Join(dir, RoundsDir, "*.parquet"))
	if len(left) != 1 || left[0] != res.Output {
		t.Fatalf("shards after compaction=%v", left)
	}
	rows, err := ReadRounds(res.Output)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 6 || rows[4].Generation != 2 {
		t.Fatalf("rows=%+v", rows)
	}
}

func TestCompactTicks_BelowThresholdIsNoop(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteTickBatch(dir, []ArchiveTickRow{{RoundID: "r", Tick: 0}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	res, err := CompactTicks(dir, 2)
	if err != nil || res.Output != "" || res.Inputs != 1 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}
