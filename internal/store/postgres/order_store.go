package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/swapd/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL. The status
// timeline is stored as a JSONB array on the order row and appended to on
// every result update.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a new order. The initial timeline contains the single
// pending entry set at ingress.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	timeline, err := json.Marshal(o.Timeline)
	if err != nil {
		return fmt.Errorf("postgres: marshal timeline for order %s: %w", o.ID, err)
	}

	const query = `
		INSERT INTO orders (
			id, token_in, token_out, amount_in,
			status, retry_count, last_error, tx_hash, timeline,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, NOW()
		)`

	_, err = s.pool.Exec(ctx, query,
		o.ID, o.TokenIn, o.TokenOut, o.AmountIn,
		string(o.Status), o.RetryCount, o.LastError, o.TxHash, timeline,
		o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// UpdateResult records the outcome of one attempt: status, retry count, last
// error, tx hash, and an appended timeline entry. The timeline append is done
// in SQL so concurrent updates never lose entries.
func (s *OrderStore) UpdateResult(ctx context.Context, id string, status domain.OrderStatus, attempt int, lastError, txHash string) error {
	entry, err := json.Marshal(domain.StatusChange{
		Status:  status,
		Attempt: attempt,
	})
	if err != nil {
		return fmt.Errorf("postgres: marshal timeline entry for order %s: %w", id, err)
	}

	const query = `
		UPDATE orders SET
			status = $1,
			retry_count = $2,
			last_error = $3,
			tx_hash = CASE WHEN $4 <> '' THEN $4 ELSE tx_hash END,
			timeline = timeline || jsonb_set($5::jsonb, '{at}', to_jsonb(NOW())),
			updated_at = NOW()
		WHERE id = $6`

	tag, err := s.pool.Exec(ctx, query,
		string(status), attempt, lastError, txHash, entry, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: update order result %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const orderSelectCols = `id, token_in, token_out, amount_in,
	status, retry_count, last_error, tx_hash, timeline,
	created_at, updated_at`

func scanOrderFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Order, error) {
	var o domain.Order
	var status string
	var timeline []byte

	err := scanner.Scan(
		&o.ID, &o.TokenIn, &o.TokenOut, &o.AmountIn,
		&status, &o.RetryCount, &o.LastError, &o.TxHash, &timeline,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Status = domain.OrderStatus(status)
	if len(timeline) > 0 {
		if err := json.Unmarshal(timeline, &o.Timeline); err != nil {
			return domain.Order{}, fmt.Errorf("unmarshal timeline: %w", err)
		}
	}
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetByID retrieves a single order by ID.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// List returns orders newest first with pagination.
func (s *OrderStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders ORDER BY created_at DESC`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders: %w", err)
	}
	return orders, nil
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
