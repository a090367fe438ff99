package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kimcharlie25/K-inasal/internal/domain"
)

type tableRepository struct {
	db *sql.DB
}

// NewTableRepository создаёт PostgreSQL-реализацию TableRepository.
func NewTableRepository(store *Store) domain.TableRepository {
	return &tableRepository{db: store.DB()}
}

func (r *tableRepository) List(ctx context.Context) ([]domain.Table, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, qr_url, created_at
		FROM tables
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, wrapPersistence(fmt.Errorf("list tables: %w", err))
	}
	defer rows.Close()

	tables := make([]domain.Table, 0)
	for rows.Next() {
		var table domain.Table
		if err := rows.Scan(&table.ID, &table.Name, &table.QRURL, &table.CreatedAt); err != nil {
			return nil, wrapPersistence(fmt.Errorf("scan table row: %w", err))
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPersistence(fmt.Errorf("iterate table rows: %w", err))
	}

	return tables, nil
}

// Add создаёт стол со следующим порядковым номером. Имя и QR-ссылка выводятся
// из присвоенного идентификатора в той же транзакции.
func (r *tableRepository) Add(ctx context.Context, baseURL string) (domain.Table, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Table{}, wrapPersistence(fmt.Errorf("begin tx: %w", err))
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var table domain.Table
	if err = tx.QueryRowContext(ctx, `
		INSERT INTO tables DEFAULT VALUES
		RETURNING id, created_at
	`).Scan(&table.ID, &table.CreatedAt); err != nil {
		return domain.Table{}, wrapPersistence(fmt.Errorf("insert table: %w", err))
	}

	table.Name = fmt.Sprintf("Table %d", table.ID)
	table.QRURL = fmt.Sprintf("%s/?table=%d", baseURL, table.ID)

	if _, err = tx.ExecContext(ctx, `
		UPDATE tables SET name = $1, qr_url = $2 WHERE id = $3
	`, table.Name, table.QRURL, table.ID); err != nil {
		return domain.Table{}, wrapPersistence(fmt.Errorf("name table: %w", err))
	}

	if err = tx.Commit(); err != nil {
		return domain.Table{}, wrapPersistence(fmt.Errorf("commit add table: %w", err))
	}

	return table, nil
}

func (r *tableRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM tables WHERE id = $1`, id)
	if err != nil {
		return wrapPersistence(fmt.Errorf("delete table: %w", err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return wrapPersistence(fmt.Errorf("rows affected: %w", err))
	}
	if affected == 0 {
		return domain.ErrTableNotFound
	}

	return nil
}

var _ domain.TableRepository = (*tableRepository)(nil)
