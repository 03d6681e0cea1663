package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/sto/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         UUID PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'in_progress',
	start_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	end_time   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS session_actions (
	session_id     UUID NOT NULL REFERENCES sessions (id),
	action_index   INT NOT NULL,
	actor_id       UUID NOT NULL,
	action_type    TEXT NOT NULL,
	action_payload JSONB NOT NULL DEFAULT '{}',
	occurred_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, action_index)
);
`

// StoredAction is a row of session_actions.
type StoredAction struct {
	SessionID   uuid.UUID
	ActionIndex int
	ActorID     uuid.UUID
	ActionType  string
	Payload     map[string]interface{}
	OccurredAt  time.Time
}

// ActionStore archives session action records in Postgres.
type ActionStore struct {
	pool *pgxpool.Pool
}

func NewActionStore(pool *pgxpool.Pool) *ActionStore {
	return &ActionStore{pool: pool}
}

// Migrate creates the archive tables if they do not exist.
func (s *ActionStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// InsertActions writes a batch in one transaction. Records already stored are skipped, so a
// replayed batch is harmless.
func (s *ActionStore) InsertActions(ctx context.Context, records []models.ActionRecord) error {
	if len(records) == 0 {
		return nil
	}
	return beginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range records {
			if err := insertActionTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertActionTx: %w", err)
			}
		}
		return nil
	})
}

// MarkAbandoned flags a session that stopped producing actions.
func (s *ActionStore) MarkAbandoned(ctx context.Context, sessionID uuid.UUID) error {
	return beginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			UPDATE sessions
			SET status = 'abandoned', end_time = NOW()
			WHERE id = $1 AND status = 'in_progress'
		`
		_, err := tx.Exec(ctx, q, sessionID)
		return err
	})
}

// SessionStatus returns the archived status of a session.
func (s *ActionStore) SessionStatus(ctx context.Context, sessionID uuid.UUID) (string, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM sessions WHERE id = $1`, sessionID).Scan(&status)
	if err != nil {
		return "", err
	}
	return status, nil
}

// ListActions returns the archived actions of a session in index order.
func (s *ActionStore) ListActions(ctx context.Context, sessionID uuid.UUID) ([]StoredAction, error) {
	q := `
		SELECT session_id, action_index, actor_id, action_type, action_payload, occurred_at
		FROM session_actions
		WHERE session_id = $1
		ORDER BY action_index
	`
	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredAction
	for rows.Next() {
		var a StoredAction
		var raw []byte
		if err := rows.Scan(&a.SessionID, &a.ActionIndex, &a.ActorID, &a.ActionType, &raw, &a.OccurredAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &a.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// insertActionTx upserts the session row and inserts one action.
func insertActionTx(ctx context.Context, tx pgx.Tx, rec models.ActionRecord) error {
	upsertSessionQ := `
		INSERT INTO sessions (id, status, start_time)
		VALUES ($1, 'in_progress', NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, upsertSessionQ, rec.GameID); err != nil {
		return err
	}

	payload := rec.ActionPayload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	actionInsertQ := `
		INSERT INTO session_actions (
			session_id, action_index, actor_id, action_type, action_payload, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, action_index) DO NOTHING
	`
	_, err = tx.Exec(ctx, actionInsertQ,
		rec.GameID, rec.ActionIndex, rec.ActorID, rec.ActionType, jsonPayload, time.UnixMilli(rec.Timestamp),
	)
	return err
}

// beginTxFunc is a helper that starts a transaction using the provided pool,
// calls the function f with the transaction, and commits or rollbacks as needed.
func beginTxFunc(ctx context.Context, pool *pgxpool.Pool, txOptions pgx.TxOptions, f func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, txOptions)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx rollback error: %v; original error: %w", rbErr, err)
		}
		return err
	}
	return tx.Commit(ctx)
}
