package data

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yola1107/parlor/internal/biz/game"
)

type pgStore struct {
	pool *pgxpool.Pool
}

func openPostgres(ctx context.Context, dsn string) (*pgStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(schemaTmpl, "BYTEA")); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &pgStore{pool: pool}, nil
}

func (s *pgStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *pgStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *pgStore) Record(ctx context.Context, o game.Outcome) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO outcomes (id, server, channel, kind, mode, winner_id, duration_seconds, final_score, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.Server, o.Channel, o.Kind, o.Mode, o.WinnerID, o.DurationSeconds, o.FinalScore, toMillis(o.EndedAt),
	); err != nil {
		return fmt.Errorf("insert outcome %s: %w", o.ID, err)
	}
	batch := &pgx.Batch{}
	for i, p := range o.Participants {
		batch.Queue(`INSERT INTO outcome_participants (outcome_id, participant_id, seat) VALUES ($1, $2, $3)`, o.ID, p, i)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert outcome participants %s: %w", o.ID, err)
	}
	return tx.Commit(ctx)
}

func (s *pgStore) Upsert(ctx context.Context, rec game.Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO saved_sessions (session_key, kind, participant_id, channel, server, data, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (session_key) DO UPDATE SET
		   data = EXCLUDED.data,
		   participant_id = EXCLUDED.participant_id,
		   updated_at = EXCLUDED.updated_at`,
		rec.Key, rec.Kind, rec.ParticipantID, rec.Channel, rec.Server, rec.Data, toMillis(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", rec.Key, err)
	}
	return nil
}

func (s *pgStore) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM saved_sessions WHERE session_key = $1`, key)
	return err
}

func (s *pgStore) LoadAll(ctx context.Context, kind string) ([]game.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_key, kind, participant_id, channel, server, data, updated_at
		 FROM saved_sessions WHERE kind = $1 ORDER BY updated_at`, kind)
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
