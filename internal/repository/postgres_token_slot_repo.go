package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresTokenSlotRepo はPostgreSQLを使用したトークンスロットリポジトリ。
type PostgresTokenSlotRepo struct {
	db *sql.DB
}

// NewPostgresTokenSlotRepo はPostgresTokenSlotRepoを生成する。
func NewPostgresTokenSlotRepo(db *sql.DB) *PostgresTokenSlotRepo {
	return &PostgresTokenSlotRepo{db: db}
}

// Put はスロットに値をUPSERTする。
// 同じ値の再書き込みはupdated_atのみ更新される。
func (r *PostgresTokenSlotRepo) Put(ctx context.Context, ownerID, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO token_slots (owner_id, slot_key, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (owner_id, slot_key)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		ownerID, key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to put token slot: %w", err)
	}
	return nil
}

// Get はスロットの値を取得する。
func (r *PostgresTokenSlotRepo) Get(ctx context.Context, ownerID, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM token_slots WHERE owner_id = $1 AND slot_key = $2`,
		ownerID, key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get token slot: %w", err)
	}
	return value, true, nil
}

// Delete はスロットを削除する。
func (r *PostgresTokenSlotRepo) Delete(ctx context.Context, ownerID, key string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM token_slots WHERE owner_id = $1 AND slot_key = $2`,
		ownerID, key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete token slot: %w", err)
	}
	return nil
}

// compile-time interface check
var _ TokenSlotRepository = (*PostgresTokenSlotRepo)(nil)
