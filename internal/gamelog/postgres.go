package gamelog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const schema = `CREATE TABLE IF NOT EXISTS go_games (
	game_id     TEXT PRIMARY KEY,
	client_id   TEXT NOT NULL,
	board_size  INT NOT NULL,
	komi        DOUBLE PRECISION NOT NULL,
	rules       TEXT NOT NULL,
	level       INT NOT NULL,
	human_color TEXT NOT NULL,
	moves       JSONB NOT NULL,
	sgf         TEXT NOT NULL,
	result      TEXT NOT NULL,
	end_reason  TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS go_games_client_ended ON go_games (client_id, ended_at DESC);`

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(pctx, schema); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Save upserts a finished game keyed by its game id.
func (r *PostgresRepository) Save(ctx context.Context, rec Record) error {
	if r == nil || r.db == nil {
		return nil
	}
	moves, err := json.Marshal(nonNil(rec.Moves))
	if err != nil {
		return err
	}
	duration := rec.EndedAt.Sub(rec.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO go_games (
		game_id, client_id, board_size, komi, rules, level, human_color,
		moves, sgf, result, end_reason, started_at, ended_at, duration_ms
	  ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	  ON CONFLICT (game_id) DO UPDATE SET
		moves=EXCLUDED.moves,
		sgf=EXCLUDED.sgf,
		result=EXCLUDED.result,
		end_reason=EXCLUDED.end_reason,
		ended_at=EXCLUDED.ended_at,
		duration_ms=EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, q,
		rec.GameID, rec.ClientID, rec.BoardSize, rec.Komi, rec.Rules, rec.Level, rec.HumanColor,
		string(moves), BuildSGF(rec), rec.Result, rec.EndReason,
		rec.StartedAt, rec.EndedAt, duration,
	)
	return err
}

func (r *PostgresRepository) Recent(ctx context.Context, clientID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `SELECT game_id, client_id, board_size, komi, rules, level,
		human_color, moves, result, end_reason, started_at, ended_at
		FROM go_games WHERE client_id = $1 ORDER BY ended_at DESC LIMIT $2`, clientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			rec   Record
			moves []byte
		)
		if err := rows.Scan(&rec.GameID, &rec.ClientID, &rec.BoardSize, &rec.Komi, &rec.Rules, &rec.Level,
			&rec.HumanColor, &moves, &rec.Result, &rec.EndReason, &rec.StartedAt, &rec.EndedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(moves, &rec.Moves); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
