package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kimcharlie25/K-inasal/internal/domain"
)

type StockRepository struct {
	db *sql.DB
}

// NewStockRepository создаёт PostgreSQL-реализацию StockRepository.
// Репозиторий также реализует domain.MenuCatalog.
func NewStockRepository(store *Store) *StockRepository {
	return &StockRepository{db: store.DB()}
}

// Reserve списывает сток по всем позициям запроса в одной транзакции.
// Для каждой отслеживаемой позиции выполняется условный декремент: ноль
// затронутых строк означает нехватку, транзакция откатывается целиком и
// конкурирующий заказ получает весь сток.
func (r *StockRepository) Reserve(ctx context.Context, reservationID string, demands []domain.StockDemand) error {
	if len(demands) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapPersistence(fmt.Errorf("begin tx: %w", err))
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for _, demand := range demands {
		var tracked bool
		err = tx.QueryRowContext(ctx, `
			SELECT track_inventory FROM menu_items WHERE id = $1
		`, demand.MenuItemID).Scan(&tracked)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// Позиции нет в каталоге учёта: заказ не блокируется.
				err = nil
				continue
			}
			return wrapPersistence(fmt.Errorf("check menu item %s: %w", demand.MenuItemID, err))
		}
		if !tracked {
			continue
		}

		var res sql.Result
		res, err = tx.ExecContext(ctx, `
			UPDATE menu_items
			SET stock_quantity = stock_quantity - $2, updated_at = NOW()
			WHERE id = $1 AND stock_quantity >= $2
		`, demand.MenuItemID, demand.Qty)
		if err != nil {
			return wrapPersistence(fmt.Errorf("decrement stock %s: %w", demand.MenuItemID, err))
		}

		var affected int64
		if affected, err = res.RowsAffected(); err != nil {
			return wrapPersistence(fmt.Errorf("rows affected: %w", err))
		}
		if affected == 0 {
			item := demand.Name
			if item == "" {
				item = demand.MenuItemID
			}
			err = &domain.InsufficientStockError{Item: item}
			return err
		}

		if _, err = tx.ExecContext(ctx, `
			INSERT INTO stock_reservations (reservation_id, menu_item_id, qty, status, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, reservationID, demand.MenuItemID, demand.Qty, string(domain.ReservationStatusPending), now); err != nil {
			if isUniqueViolation(err) {
				err = fmt.Errorf("duplicate reservation %s for item %s", reservationID, demand.MenuItemID)
				return err
			}
			return wrapPersistence(fmt.Errorf("insert reservation row: %w", err))
		}
	}

	if err = tx.Commit(); err != nil {
		return wrapPersistence(fmt.Errorf("commit reserve: %w", err))
	}

	return nil
}

// MarkCommitted финализирует резерв. Повторный вызов — no-op.
func (r *StockRepository) MarkCommitted(ctx context.Context, reservationID string) error {
	return r.finishReservation(ctx, reservationID, domain.ReservationStatusCommitted, false)
}

// Release компенсирует резерв: возвращает списанный сток по всем pending-строкам.
// Повторный вызов сток повторно не возвращает.
func (r *StockRepository) Release(ctx context.Context, reservationID string) error {
	return r.finishReservation(ctx, reservationID, domain.ReservationStatusReleased, true)
}

func (r *StockRepository) finishReservation(ctx context.Context, reservationID string, status domain.ReservationStatus, refund bool) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapPersistence(fmt.Errorf("begin tx: %w", err))
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if refund {
		rows, queryErr := tx.QueryContext(ctx, `
			SELECT menu_item_id, qty
			FROM stock_reservations
			WHERE reservation_id = $1 AND status = $2
			FOR UPDATE
		`, reservationID, string(domain.ReservationStatusPending))
		if queryErr != nil {
			err = wrapPersistence(fmt.Errorf("lock reservation rows: %w", queryErr))
			return err
		}

		type refundRow struct {
			menuItemID string
			qty        int32
		}
		var refunds []refundRow
		for rows.Next() {
			var row refundRow
			if scanErr := rows.Scan(&row.menuItemID, &row.qty); scanErr != nil {
				rows.Close()
				err = wrapPersistence(fmt.Errorf("scan reservation row: %w", scanErr))
				return err
			}
			refunds = append(refunds, row)
		}
		if iterErr := rows.Err(); iterErr != nil {
			rows.Close()
			err = wrapPersistence(fmt.Errorf("iterate reservation rows: %w", iterErr))
			return err
		}
		rows.Close()

		for _, row := range refunds {
			if _, err = tx.ExecContext(ctx, `
				UPDATE menu_items
				SET stock_quantity = stock_quantity + $2, updated_at = NOW()
				WHERE id = $1
			`, row.menuItemID, row.qty); err != nil {
				return wrapPersistence(fmt.Errorf("refund stock %s: %w", row.menuItemID, err))
			}
		}
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx, `
		UPDATE stock_reservations
		SET status = $2
		WHERE reservation_id = $1 AND status = $3
	`, reservationID, string(status), string(domain.ReservationStatusPending))
	if err != nil {
		return wrapPersistence(fmt.Errorf("update reservation status: %w", err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return wrapPersistence(fmt.Errorf("rows affected: %w", err))
	}
	if affected == 0 {
		var exists bool
		if err = tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM stock_reservations WHERE reservation_id = $1)
		`, reservationID).Scan(&exists); err != nil {
			return wrapPersistence(fmt.Errorf("check reservation exists: %w", err))
		}
		if !exists {
			err = domain.ErrReservationNotFound
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return wrapPersistence(fmt.Errorf("commit reservation %s: %w", status, err))
	}

	return nil
}

// PendingStats возвращает backlog резервов, зависших в pending.
func (r *StockRepository) PendingStats(ctx context.Context) (domain.ReservationStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		stats  domain.ReservationStats
		oldest sql.NullTime
	)
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT reservation_id), MIN(created_at)
		FROM stock_reservations
		WHERE status = $1
	`, string(domain.ReservationStatusPending)).Scan(&stats.PendingCount, &oldest); err != nil {
		return domain.ReservationStats{}, wrapPersistence(fmt.Errorf("query pending stats: %w", err))
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time
	}

	return stats, nil
}

// ReleaseExpired снимает pending-резервы старше before, не более limit за вызов.
func (r *StockRepository) ReleaseExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT reservation_id, MIN(created_at) AS oldest
		FROM stock_reservations
		WHERE status = $1 AND created_at < $2
		GROUP BY reservation_id
		ORDER BY oldest ASC
		LIMIT $3
	`, string(domain.ReservationStatusPending), before, limit)
	if err != nil {
		return 0, wrapPersistence(fmt.Errorf("query expired reservations: %w", err))
	}

	var ids []string
	for rows.Next() {
		var (
			id     string
			oldest time.Time
		)
		if err := rows.Scan(&id, &oldest); err != nil {
			rows.Close()
			return 0, wrapPersistence(fmt.Errorf("scan expired reservation: %w", err))
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, wrapPersistence(fmt.Errorf("iterate expired reservations: %w", err))
	}
	rows.Close()

	released := 0
	for _, id := range ids {
		if err := r.Release(ctx, id); err != nil {
			return released, err
		}
		released++
	}

	return released, nil
}

// GetStock возвращает учётные записи стока по указанным позициям меню.
func (r *StockRepository) GetStock(ctx context.Context, menuItemIDs []string) ([]domain.StockRecord, error) {
	if len(menuItemIDs) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, track_inventory, stock_quantity
		FROM menu_items
		WHERE id = ANY($1)
	`, menuItemIDs)
	if err != nil {
		return nil, wrapPersistence(fmt.Errorf("query stock records: %w", err))
	}
	defer rows.Close()

	records := make([]domain.StockRecord, 0, len(menuItemIDs))
	for rows.Next() {
		var record domain.StockRecord
		if err := rows.Scan(&record.MenuItemID, &record.TrackInventory, &record.StockQuantity); err != nil {
			return nil, wrapPersistence(fmt.Errorf("scan stock record: %w", err))
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPersistence(fmt.Errorf("iterate stock records: %w", err))
	}

	return records, nil
}

// SeedMenuItems создаёт или обновляет учётные записи позиций меню.
// Используется миграционным сидингом и интеграционными тестами.
func (r *StockRepository) SeedMenuItems(ctx context.Context, records []domain.StockRecord, names map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	for _, record := range records {
		name := names[record.MenuItemID]
		if name == "" {
			name = record.MenuItemID
		}
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO menu_items (id, name, track_inventory, stock_quantity)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name,
			    track_inventory = EXCLUDED.track_inventory,
			    stock_quantity = EXCLUDED.stock_quantity,
			    updated_at = NOW()
		`, record.MenuItemID, name, record.TrackInventory, record.StockQuantity); err != nil {
			return wrapPersistence(fmt.Errorf("seed menu item %s: %w", record.MenuItemID, err))
		}
	}

	return nil
}

var (
	_ domain.StockRepository = (*StockRepository)(nil)
	_ domain.MenuCatalog     = (*StockRepository)(nil)
)
