// Пакет pgstore — хранилище записей каталога в PostgreSQL.
// Контракт тот же, что у JSON-документа: Load читает весь набор,
// Save заменяет его целиком в одной транзакции.
// Все запросы — чистый SQL через pgx, без ORM.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/3llimi/innocivic/catalog/internal/domain/model"
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner выполняет операции в транзакции.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner создаёт TxRunner для управления транзакциями.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn транзакция откатывается, при успехе коммитится.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const (
	selectAllSQL = `SELECT document FROM datasets ORDER BY position, id`

	upsertSQL = `
		INSERT INTO datasets (id, position, document, uploaded_at, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET position    = EXCLUDED.position,
		    document    = EXCLUDED.document,
		    uploaded_at = EXCLUDED.uploaded_at,
		    updated_at  = now()
		WHERE datasets.document IS DISTINCT FROM EXCLUDED.document
		   OR datasets.position IS DISTINCT FROM EXCLUDED.position`

	deleteMissingSQL = `DELETE FROM datasets WHERE NOT (id = ANY($1))`
)

// Store — набор записей каталога в таблице datasets.
type Store struct {
	db DBTX
	tx *TxRunner
}

// New создаёт хранилище поверх пула подключений.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, tx: NewTxRunner(pool)}
}

// Load читает весь набор записей в порядке вставки.
func (s *Store) Load(ctx context.Context) ([]model.Dataset, error) {
	rows, err := s.db.Query(ctx, selectAllSQL)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения записей: %w", err)
	}
	defer rows.Close()

	set := []model.Dataset{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		var d model.Dataset
		if err := json.Unmarshal(doc, &d); err != nil {
			return nil, fmt.Errorf("ошибка десериализации записи: %w", err)
		}
		set = append(set, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации записей: %w", err)
	}

	return set, nil
}

// Save заменяет набор записей в одной транзакции:
// изменённые записи обновляются, новые вставляются, отсутствующие в set удаляются.
func (s *Store) Save(ctx context.Context, set []model.Dataset) error {
	ids := make([]string, 0, len(set))
	batch := &pgx.Batch{}

	for i := range set {
		doc, err := json.Marshal(&set[i])
		if err != nil {
			return fmt.Errorf("ошибка сериализации записи %s: %w", set[i].ID, err)
		}
		ids = append(ids, set[i].ID)
		batch.Queue(upsertSQL, set[i].ID, int64(i), string(doc), set[i].UploadedAt)
	}

	return s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("ошибка сохранения записей: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, deleteMissingSQL, ids); err != nil {
			return fmt.Errorf("ошибка удаления записей: %w", err)
		}
		return nil
	})
}
