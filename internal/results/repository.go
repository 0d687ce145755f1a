package results

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS xiangqi_results (
	session_id  TEXT PRIMARY KEY,
	room_id     TEXT NOT NULL,
	red_id      TEXT NOT NULL DEFAULT '',
	red_name    TEXT NOT NULL DEFAULT '',
	black_id    TEXT NOT NULL DEFAULT '',
	black_name  TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	moves       INTEGER NOT NULL DEFAULT 0,
	final_fen   TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ,
	ended_at    TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS xiangqi_results_room_idx ON xiangqi_results (room_id);
CREATE INDEX IF NOT EXISTS xiangqi_results_red_idx ON xiangqi_results (red_id, ended_at DESC);
CREATE INDEX IF NOT EXISTS xiangqi_results_black_idx ON xiangqi_results (black_id, ended_at DESC);`

// PostgresRepository stores results in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
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

// EnsureSchema creates the results table and its indexes when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure results schema: %w", err)
	}
	return nil
}

// SaveResult upserts by session id, so a replayed game_ended is harmless.
func (r *PostgresRepository) SaveResult(ctx context.Context, res *GameResult) error {
	if res == nil || res.SessionID == "" || res.RoomID == "" {
		return ErrInvalidResult
	}
	const q = `INSERT INTO xiangqi_results (
		session_id, room_id, red_id, red_name, black_id, black_name,
		status, reason, moves, final_fen, started_at, ended_at, duration_ms
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
	) ON CONFLICT (session_id) DO UPDATE SET
		room_id=EXCLUDED.room_id,
		red_id=EXCLUDED.red_id,
		red_name=EXCLUDED.red_name,
		black_id=EXCLUDED.black_id,
		black_name=EXCLUDED.black_name,
		status=EXCLUDED.status,
		reason=EXCLUDED.reason,
		moves=EXCLUDED.moves,
		final_fen=EXCLUDED.final_fen,
		started_at=EXCLUDED.started_at,
		ended_at=EXCLUDED.ended_at,
		duration_ms=EXCLUDED.duration_ms`

	var started sql.NullTime
	if !res.StartedAt.IsZero() {
		started = sql.NullTime{Time: res.StartedAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, q,
		res.SessionID, res.RoomID,
		res.RedID, res.RedName,
		res.BlackID, res.BlackName,
		res.Status, res.Reason, res.Moves, res.FinalFEN,
		started, res.EndedAt, res.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RoomStats(ctx context.Context, roomID string) (*RoomStats, error) {
	const q = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'RED_WIN'),
			COUNT(*) FILTER (WHERE status = 'BLACK_WIN'),
			COUNT(*) FILTER (WHERE status = 'DRAW'),
			COUNT(*) FILTER (WHERE status = 'ABANDONED')
		FROM xiangqi_results
		WHERE room_id = $1`

	st := &RoomStats{RoomID: roomID}
	err := r.db.QueryRowContext(ctx, q, roomID).Scan(&st.Games, &st.RedWins, &st.BlackWins, &st.Draws, &st.Abandoned)
	if err != nil {
		return nil, fmt.Errorf("select room stats: %w", err)
	}
	return st, nil
}

func (r *PostgresRepository) RecentByPlayer(ctx context.Context, playerID string, limit int) ([]*GameResult, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
		SELECT
			session_id,
			room_id,
			red_id,
			red_name,
			black_id,
			black_name,
			status,
			reason,
			moves,
			final_fen,
			started_at,
			ended_at,
			duration_ms
		FROM xiangqi_results
		WHERE red_id = $1 OR black_id = $1
		ORDER BY ended_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, q, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("select results: %w", err)
	}
	defer rows.Close()

	out := make([]*GameResult, 0, limit)
	for rows.Next() {
		var (
			res        GameResult
			started    sql.NullTime
			durationMS int64
		)
		if err := rows.Scan(
			&res.SessionID,
			&res.RoomID,
			&res.RedID,
			&res.RedName,
			&res.BlackID,
			&res.BlackName,
			&res.Status,
			&res.Reason,
			&res.Moves,
			&res.FinalFEN,
			&started,
			&res.EndedAt,
			&durationMS,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if started.Valid {
			res.StartedAt = started.Time
		}
		res.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}
