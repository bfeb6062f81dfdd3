package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dejobratic/shopdash/internal/orders/domain"
	"github.com/dejobratic/shopdash/internal/orders/ports"
)

const uniqueViolation = "23505"

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, order domain.Order) error {
	query := `
		INSERT INTO orders (id, reference, shop_id, amount, status, customer, orderable_reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	var customer any
	if order.Customer != nil {
		customer = domain.MarshalCustomer(order.Customer)
	}

	_, err := r.pool.Exec(ctx, query,
		order.ID,
		order.Reference,
		order.ShopID,
		order.Amount,
		order.Status,
		customer,
		order.OrderableReference,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ports.ErrConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `
		SELECT id, reference, shop_id, amount, status, customer, orderable_reference, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	history, err := r.history(ctx, id)
	if err != nil {
		return nil, err
	}
	order.History = history

	return &order, nil
}

// List runs the search and status predicates in SQL. Listed orders carry no history.
func (r *Repository) List(ctx context.Context, shopID string, filter domain.Filter) ([]domain.Order, error) {
	filter = filter.Normalize()

	query := `
		SELECT id, reference, shop_id, amount, status, customer, orderable_reference, created_at, updated_at
		FROM orders
		WHERE shop_id = $1
		  AND ($2::text IS NULL OR status = $2)
		  AND ($3::text IS NULL
		       OR reference ILIKE $3
		       OR customer->>'name' ILIKE $3
		       OR customer->>'email' ILIKE $3
		       OR customer->>'phone' ILIKE $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`

	var statusFilter *string
	if filter.Status != domain.StatusFilterAll {
		s := string(filter.Status)
		statusFilter = &s
	}

	var searchPattern *string
	if filter.Search != "" {
		p := "%" + escapeLike(filter.Search) + "%"
		searchPattern = &p
	}

	rows, err := r.pool.Query(ctx, query, shopID, statusFilter, searchPattern, filter.PageSize, filter.Offset())
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return orders, nil
}

// UpdateStatus compares-and-sets the status and appends the history row in one transaction.
func (r *Repository) UpdateStatus(ctx context.Context, shopID, id string, change domain.StatusChange) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3 AND shop_id = $4 AND status = $5
	`, change.To, change.At, id, shopID, change.From)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1 AND shop_id = $2)`, id, shopID).Scan(&exists); err != nil {
			return fmt.Errorf("check order existence: %w", err)
		}
		if !exists {
			return ports.ErrNotFound
		}
		return ports.ErrConflict
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, from_status, to_status, source, actor, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, change.From, change.To, change.Source, change.Actor, change.At); err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit status update: %w", err)
	}

	return nil
}

func (r *Repository) history(ctx context.Context, id string) ([]domain.StatusChange, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT from_status, to_status, source, actor, changed_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query status history: %w", err)
	}
	defer rows.Close()

	var history []domain.StatusChange
	for rows.Next() {
		var change domain.StatusChange
		if err := rows.Scan(&change.From, &change.To, &change.Source, &change.Actor, &change.At); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		history = append(history, change)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history: %w", err)
	}

	return history, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		order    domain.Order
		customer []byte
	)
	if err := row.Scan(
		&order.ID,
		&order.Reference,
		&order.ShopID,
		&order.Amount,
		&order.Status,
		&customer,
		&order.OrderableReference,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	// a customer that fails to parse is shown as unknown
	order.Customer, _ = domain.ParseCustomer(customer)

	return order, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
