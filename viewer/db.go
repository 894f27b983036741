package main

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/brensch/raysnek/store"
)

// DBCache maintains a cached DuckDB connection that refreshes periodically
// so shards written since the last refresh become visible.
type DBCache struct {
	roots       []string
	refreshRate time.Duration

	mu          sync.RWMutex
	db          *sql.DB
	lastRefresh time.Time
}

func NewDBCache(roots []string, refreshRate time.Duration) *DBCache {
	return &DBCache{
		roots:       roots,
		refreshRate: refreshRate,
	}
}

// Get returns the cached DB connection, refreshing if needed.
func (c *DBCache) Get() (*sql.DB, error) {
	c.mu.RLock()
	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		db := c.db
		c.mu.RUnlock()
		return db, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		return c.db, nil
	}
	return c.refreshLocked()
}

// Refresh forces a refresh of the cached DB connection.
func (c *DBCache) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.refreshLocked()
	return err
}

func (c *DBCache) refreshLocked() (*sql.DB, error) {
	start := time.Now()

	newDB, err := openDuckDB(c.roots)
	if err != nil {
		return nil, err
	}
	if c.db != nil {
		_ = c.db.Close()
	}
	c.db = newDB
	c.lastRefresh = time.Now()

	slog.Debug("duckdb views refreshed", "roots", c.roots, "took", time.Since(start))
	return c.db, nil
}

func (c *DBCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		err := c.db.Close()
		c.db = nil
		return err
	}
	return nil
}

const emptyRoundsView = `CREATE OR REPLACE VIEW rounds AS
	SELECT * FROM (
		SELECT
			NULL::VARCHAR AS round_id,
			NULL::INTEGER AS generation,
			NULL::INTEGER AS agent,
			NULL::INTEGER AS ticks,
			NULL::INTEGER AS score,
			NULL::INTEGER AS length,
			NULL::BOOLEAN AS finished,
			NULL::VARCHAR AS cause,
			NULL::DOUBLE AS fitness,
			NULL::VARCHAR AS error,
			NULL::VARCHAR AS controller,
			NULL::BIGINT AS food_seed,
			NULL::BIGINT AS started_at_ms,
			NULL::BIGINT AS duration_ms,
			NULL::BLOB AS params_json,
			NULL::VARCHAR AS source,
			NULL::VARCHAR AS filename
	) WHERE 1=0`

const emptyTicksView = `CREATE OR REPLACE VIEW ticks AS
	SELECT * FROM (
		SELECT
			NULL::VARCHAR AS round_id,
			NULL::INTEGER AS generation,
			NULL::INTEGER AS agent,
			NULL::INTEGER AS tick,
			NULL::DOUBLE AS head_x,
			NULL::DOUBLE AS head_y,
			NULL::DOUBLE AS heading_x,
			NULL::DOUBLE AS heading_y,
			NULL::DOUBLE AS food_x,
			NULL::DOUBLE AS food_y,
			NULL::INTEGER AS score,
			NULL::INTEGER AS length,
			NULL::BOOLEAN AS ate,
			NULL::BOOLEAN AS finished,
			NULL::VARCHAR AS cause,
			NULL::DOUBLE[] AS rays,
			NULL::INTEGER[] AS ray_kinds,
			NULL::REAL[] AS body_x,
			NULL::REAL[] AS body_y,
			NULL::VARCHAR AS source,
			NULL::VARCHAR AS filename
	) WHERE 1=0`

// openDuckDB creates an in-memory DuckDB with a rounds and a ticks view over
// the parquet shards under each root. A view whose glob would match nothing
// is created empty so queries still succeed on a fresh output dir.
func openDuckDB(roots []string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, err
	}
	_, _ = db.Exec("PRAGMA threads=4")

	views := []struct {
		name, sub, empty string
	}{
		{"rounds", store.RoundsDir, emptyRoundsView},
		{"ticks", store.TicksDir, emptyTicksView},
	}
	for _, v := range views {
		globs := make([]string, 0, len(roots))
		for _, root := range roots {
			dir := filepath.Join(strings.TrimSpace(root), v.sub)
			if !hasParquet(dir) {
				continue
			}
			glob := filepath.Join(dir, "**", "*.parquet")
			globs = append(globs, "'"+escapeSQLString(glob)+"'")
		}

		sqlText := v.empty
		if len(globs) > 0 {
			sqlText = `CREATE OR REPLACE VIEW ` + v.name + ` AS
				SELECT * FROM read_parquet([` + strings.Join(globs, ",") + `], filename=true, union_by_name=true)
				WHERE NOT contains(filename, '/` + v.sub + `/tmp/')`
		}
		if _, err := db.Exec(sqlText); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

var errFound = errors.New("found")

// hasParquet reports whether dir holds at least one finalized shard.
func hasParquet(dir string) bool {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "tmp" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".parquet") {
			return errFound
		}
		return nil
	})
	return errors.Is(err, errFound)
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func normalizeSort(sortKey string, sortDir string) (string, string) {
	col := "fitness"
	switch strings.ToLower(strings.TrimSpace(sortKey)) {
	case "ticks":
		col = "ticks"
	case "score":
		col = "score"
	case "generation":
		col = "generation"
	case "started", "started_at":
		col = "started_at_ms"
	}
	dir := "DESC"
	if strings.EqualFold(strings.TrimSpace(sortDir), "asc") {
		dir = "ASC"
	}
	return col, dir
}

func makeRelativeToRoots(filename string, roots []string) string {
	for _, root := range roots {
		if rel, err := filepath.Rel(root, filename); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(filename)
}

// roundFilter narrows /api/rounds. Generation < 0 means all generations.
type roundFilter struct {
	Generation int
	Limit      int
	Offset     int
	SortKey    string
	SortDir    string
}

func queryRounds(ctx context.Context, db *sql.DB, roots []string, f roundFilter) ([]RoundSummary, int64, error) {
	where := ""
	args := []any{}
	if f.Generation >= 0 {
		where = "WHERE generation = ?"
		args = append(args, f.Generation)
	}

	var total int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rounds "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	col, dir := normalizeSort(f.SortKey, f.SortDir)
	q := `SELECT round_id, generation::INTEGER, agent::INTEGER, ticks::INTEGER, score::INTEGER, length::INTEGER,
	             finished, cause, fitness, COALESCE(error, ''), controller, food_seed, started_at_ms, duration_ms,
	             source, filename
	      FROM rounds ` + where + `
	      ORDER BY ` + col + ` ` + dir + `, round_id ASC
	      LIMIT ` + strconv.Itoa(f.Limit) + ` OFFSET ` + strconv.Itoa(f.Offset)
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]RoundSummary, 0, f.Limit)
	for rows.Next() {
		var s RoundSummary
		if err := rows.Scan(&s.RoundID, &s.Generation, &s.Agent, &s.Ticks, &s.Score, &s.Length,
			&s.Finished, &s.Cause, &s.Fitness, &s.Error, &s.Controller, &s.FoodSeed, &s.StartedAt, &s.DurationMs,
			&s.Source, &s.Filename); err != nil {
			return nil, 0, err
		}
		s.Filename = makeRelativeToRoots(s.Filename, roots)
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func queryGenerations(ctx context.Context, db *sql.DB) ([]GenerationStats, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT generation::INTEGER,
		        COUNT(*),
		        MAX(fitness),
		        AVG(fitness),
		        MAX(score)::INTEGER,
		        AVG(ticks),
		        MAX(ticks)::INTEGER,
		        COUNT(*) FILTER (WHERE COALESCE(error, '') <> '')
		 FROM rounds
		 GROUP BY generation
		 ORDER BY generation ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]GenerationStats, 0, 64)
	for rows.Next() {
		var g GenerationStats
		if err := rows.Scan(&g.Generation, &g.Rounds, &g.BestFitness, &g.MeanFitness, &g.BestScore,
			&g.MeanTicks, &g.MaxTicks, &g.Failed); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func queryTicks(ctx context.Context, db *sql.DB, roundID string) ([]Frame, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT round_id, tick::INTEGER, heading_x, heading_y, food_x, food_y, score::INTEGER, length::INTEGER,
		        ate, finished, cause, rays, ray_kinds, body_x, body_y
		 FROM ticks
		 WHERE round_id = ?
		 ORDER BY tick ASC, finished ASC`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	frames := make([]Frame, 0, 256)
	for rows.Next() {
		var f Frame
		var raysAny, kindsAny, bodyXAny, bodyYAny any
		if err := rows.Scan(&f.RoundID, &f.Tick, &f.Heading.X, &f.Heading.Y, &f.Food.X, &f.Food.Y,
			&f.Score, &f.Length, &f.Ate, &f.Finished, &f.Cause, &raysAny, &kindsAny, &bodyXAny, &bodyYAny); err != nil {
			return nil, err
		}
		f.Rays = floats(raysAny)
		f.RayKinds = int32s(kindsAny)
		f.Body = points(floats(bodyXAny), floats(bodyYAny))
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

func loadChampions(path string) ([]store.ChampionEntry, error) {
	return store.ReadChampionLog(path)
}
