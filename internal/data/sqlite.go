package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/yola1107/parlor/internal/biz/game"
)

// sqliteStore 单机部署的默认存储
type sqliteStore struct {
	db *sql.DB
}

func openSQLite(ctx context.Context, dsn string) (*sqliteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// sqlite 单写者
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(schemaTmpl, "BLOB")); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite db: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Record(ctx context.Context, o game.Outcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO outcomes (id, server, channel, kind, mode, winner_id, duration_seconds, final_score, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Server, o.Channel, o.Kind, o.Mode, o.WinnerID, o.DurationSeconds, o.FinalScore, toMillis(o.EndedAt),
	); err != nil {
		return fmt.Errorf("insert outcome %s: %w", o.ID, err)
	}
	for i, p := range o.Participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO outcome_participants (outcome_id, participant_id, seat) VALUES (?, ?, ?)`,
			o.ID, p, i,
		); err != nil {
			return fmt.Errorf("insert outcome participant %s: %w", o.ID, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Upsert(ctx context.Context, rec game.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO saved_sessions (session_key, kind, participant_id, channel, server, data, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_key) DO UPDATE SET
		   data = excluded.data,
		   participant_id = excluded.participant_id,
		   updated_at = excluded.updated_at`,
		rec.Key, rec.Kind, rec.ParticipantID, rec.Channel, rec.Server, rec.Data, toMillis(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", rec.Key, err)
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM saved_sessions WHERE session_key = ?`, key)
	return err
}

func (s *sqliteStore) LoadAll(ctx context.Context, kind string) ([]game.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_key, kind, participant_id, channel, server, data, updated_at
		 FROM saved_sessions WHERE kind = ? ORDER BY updated_at`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.Record
	for rows.Next() {
		var (
			rec game.Record
			ms  int64
		)
		if err := rows.Scan(&rec.Key, &rec.Kind, &rec.ParticipantID, &rec.Channel, &rec.Server, &rec.Data, &ms); err != nil {
			return nil, err
		}
		rec.UpdatedAt = fromMillis(ms)
		out = append(out, rec)
	}
	return out, rows.Err()
}
