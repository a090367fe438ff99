package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kimcharlie25/K-inasal/internal/domain"
)

const opTimeout = 5 * time.Second

type orderRepository struct {
	db        *sql.DB
	publisher domain.ChangePublisher
}

// OrderRepositoryOption настраивает репозиторий заказов.
type OrderRepositoryOption func(*orderRepository)

// WithChangePublisher подключает издателя событий изменения строк.
// Публикация best-effort: сбой не откатывает запись.
func WithChangePublisher(publisher domain.ChangePublisher) OrderRepositoryOption {
	return func(r *orderRepository) {
		r.publisher = publisher
	}
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store, options ...OrderRepositoryOption) domain.OrderRepository {
	r := &orderRepository{db: store.DB()}
	for _, option := range options {
		option(r)
	}
	return r
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
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

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, customer_name, contact_number, service_type, payment_method,
			notes, total_minor, status, receipt_url, table_ref, client_ip,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		order.ID, order.CustomerName, order.ContactNumber, string(order.ServiceType),
		order.PaymentMethod, order.Notes, order.TotalMinor, string(order.Status),
		order.ReceiptURL, order.TableRef, order.ClientIP,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isRateLimitViolation(err) {
			return domain.ErrRateLimited
		}
		return wrapPersistence(fmt.Errorf("insert order: %w", err))
	}

	for _, line := range order.Lines {
		var variation, addOns []byte
		if line.Variation != nil {
			if variation, err = json.Marshal(line.Variation); err != nil {
				return fmt.Errorf("marshal line variation: %w", err)
			}
		}
		if len(line.AddOns) > 0 {
			if addOns, err = json.Marshal(line.AddOns); err != nil {
				return fmt.Errorf("marshal line add-ons: %w", err)
			}
		}

		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (
				id, order_id, menu_item_id, name, variation, add_ons,
				unit_price_minor, qty, subtotal_minor, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`,
			line.ID, order.ID, line.MenuItemID, line.Name, variation, addOns,
			line.UnitPriceMinor, line.Qty, line.SubtotalMinor, line.CreatedAt,
		); err != nil {
			return wrapPersistence(fmt.Errorf("insert order line: %w", err))
		}
	}

	if err = tx.Commit(); err != nil {
		return wrapPersistence(fmt.Errorf("commit create order: %w", err))
	}

	r.publishChange(ctx, domain.ChangeKindInsert, order)

	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := r.scanOrder(r.db.QueryRowContext(ctx, `
		SELECT id, customer_name, contact_number, service_type, payment_method,
		       notes, total_minor, status, receipt_url, table_ref, client_ip,
		       created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, wrapPersistence(fmt.Errorf("select order: %w", err))
	}

	lines, err := r.loadLines(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines

	return order, nil
}

func (r *orderRepository) List(ctx context.Context, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT id, customer_name, contact_number, service_type, payment_method,
		       notes, total_minor, status, receipt_url, table_ref, client_ip,
		       created_at, updated_at
		FROM orders
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $1", limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, wrapPersistence(fmt.Errorf("list orders: %w", err))
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := r.scanOrder(rows)
		if err != nil {
			return nil, wrapPersistence(fmt.Errorf("scan order row: %w", err))
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPersistence(fmt.Errorf("iterate order rows: %w", err))
	}

	for i := range orders {
		lines, err := r.loadLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}

	return orders, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
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

	var current string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM orders WHERE id = $1 FOR UPDATE
	`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrOrderNotFound
		}
		return wrapPersistence(fmt.Errorf("lock order: %w", err))
	}

	if !domain.OrderStatus(current).CanTransitionTo(status) {
		err = domain.ErrInvalidStatusTransition
		return err
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2
	`, string(status), id); err != nil {
		return wrapPersistence(fmt.Errorf("update order status: %w", err))
	}

	if err = tx.Commit(); err != nil {
		return wrapPersistence(fmt.Errorf("commit status update: %w", err))
	}

	updated, getErr := r.Get(ctx, id)
	if getErr == nil {
		r.publishChange(ctx, domain.ChangeKindUpdate, updated)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *orderRepository) scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order       domain.Order
		serviceType string
		status      string
	)
	if err := row.Scan(
		&order.ID, &order.CustomerName, &order.ContactNumber, &serviceType,
		&order.PaymentMethod, &order.Notes, &order.TotalMinor, &status,
		&order.ReceiptURL, &order.TableRef, &order.ClientIP,
		&order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.ServiceType = domain.ServiceType(serviceType)
	order.Status = domain.OrderStatus(status)
	return order, nil
}

func (r *orderRepository) loadLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, menu_item_id, name, variation, add_ons,
		       unit_price_minor, qty, subtotal_minor, created_at
		FROM order_lines
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, wrapPersistence(fmt.Errorf("load order lines: %w", err))
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0)
	for rows.Next() {
		var (
			line      domain.OrderLine
			variation []byte
			addOns    []byte
		)
		if err := rows.Scan(
			&line.ID, &line.MenuItemID, &line.Name, &variation, &addOns,
			&line.UnitPriceMinor, &line.Qty, &line.SubtotalMinor, &line.CreatedAt,
		); err != nil {
			return nil, wrapPersistence(fmt.Errorf("scan order line: %w", err))
		}
		if len(variation) > 0 {
			line.Variation = &domain.LineVariation{}
			if err := json.Unmarshal(variation, line.Variation); err != nil {
				return nil, fmt.Errorf("unmarshal line variation: %w", err)
			}
		}
		if len(addOns) > 0 {
			if err := json.Unmarshal(addOns, &line.AddOns); err != nil {
				return nil, fmt.Errorf("unmarshal line add-ons: %w", err)
			}
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPersistence(fmt.Errorf("iterate order lines: %w", err))
	}

	return lines, nil
}

func (r *orderRepository) publishChange(ctx context.Context, kind domain.ChangeKind, order domain.Order) {
	if r.publisher == nil {
		return
	}

	row, err := json.Marshal(map[string]any{
		"id":     order.ID,
		"status": string(order.Status),
	})
	if err != nil {
		return
	}
	_ = r.publisher.Publish(ctx, domain.ChangeEvent{
		Kind:   kind,
		Table:  domain.ChangeTableOrders,
		NewRow: row,
		At:     time.Now().UTC(),
	})
}

var _ domain.OrderRepository = (*orderRepository)(nil)
