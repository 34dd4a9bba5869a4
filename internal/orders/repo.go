package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrVariantNotFound = errors.New("variant not found")
)

type Repo struct{ DB *pgxpool.Pool }

// Create persists a pending order together with its line-item snapshot.
// Validation happens before this call; the insert itself is unconditional.
func (r *Repo) Create(ctx context.Context, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, status, amount_cents, currency, stripe_session_id)
		VALUES ($1, $2, $3, $4, $5)
	`, o.ID, StatusPending, o.AmountCents, o.Currency, SessionPlaceholder)
	if err != nil {
		return err
	}

	for _, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, name, size, qty, price_cents, image_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			o.ID, it.ProductID, it.Name, it.Size, it.Qty, it.PriceCents, it.ImageURL,
		)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	o.Status = StatusPending
	o.StripeSessionID = SessionPlaceholder
	return nil
}

func (r *Repo) SetPaymentSession(ctx context.Context, orderID, sessionID string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET stripe_session_id=$2 WHERE id=$1`, orderID, sessionID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, orderID string) (*Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, status, amount_cents, currency, stripe_session_id, created_at, paid_at
		FROM orders WHERE id=$1`, orderID,
	).Scan(&o.ID, &o.Status, &o.AmountCents, &o.Currency, &o.StripeSessionID, &o.CreatedAt, &o.PaidAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	items, err := r.items(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (r *Repo) GetBySession(ctx context.Context, sessionID string) (*Order, error) {
	var id string
	err := r.DB.QueryRow(ctx, `SELECT id FROM orders WHERE stripe_session_id=$1`, sessionID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *Repo) GetStatus(ctx context.Context, orderID string) (Status, error) {
	var s string
	err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, orderID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrOrderNotFound
	}
	if err != nil {
		return "", err
	}
	return Status(s), nil
}

func (r *Repo) items(ctx context.Context, orderID string) ([]Item, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT product_id, name, size, qty, price_cents, image_url
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Size, &it.Qty, &it.PriceCents, &it.ImageURL); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// SettlePaid flips a pending order to paid and decrements variant stock for
// every line item, all inside one transaction. The order row is locked and
// its status re-checked before any mutation, so a second delivery of the same
// payment event observes paid and applies nothing. Stock is floored at zero:
// concurrent checkouts may have oversold a variant and the overdraft is
// absorbed here, not prevented.
func (r *Repo) SettlePaid(ctx context.Context, orderID string) (applied bool, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrOrderNotFound
	}
	if err != nil {
		return false, err
	}
	if Status(status) != StatusPending {
		return false, nil
	}

	items, err := r.items(ctx, orderID)
	if err != nil {
		return false, err
	}

	for _, it := range items {
		var variantID string
		err = tx.QueryRow(ctx, `
			SELECT id FROM product_variants
			WHERE product_id=$1 AND size=$2 FOR UPDATE`, it.ProductID, it.Size,
		).Scan(&variantID)
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("%w: product_id=%s size=%s", ErrVariantNotFound, it.ProductID, it.Size)
		}
		if err != nil {
			return false, err
		}
		_, err = tx.Exec(ctx, `
			UPDATE product_variants
			SET stock = GREATEST(stock - $2, 0), updated_at = now()
			WHERE id=$1`, variantID, it.Qty)
		if err != nil {
			return false, err
		}
	}

	if _, err = tx.Exec(ctx, `UPDATE orders SET status=$2, paid_at=now() WHERE id=$1`, orderID, StatusPaid); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// MarkExpired fails a pending order. The status guard lives in the WHERE
// clause: an order already settled (or already failed) is left untouched.
func (r *Repo) MarkExpired(ctx context.Context, orderID string) (applied bool, err error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2 WHERE id=$1 AND status=$3`,
		orderID, StatusFailed, StatusPending)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// CreateFulfillment records one fulfillment per paid order; replays hit the
// unique order_id and report created=false.
func (r *Repo) CreateFulfillment(ctx context.Context, orderID string) (created bool, err error) {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO fulfillments(id, order_id, status)
		VALUES ($1, $2, 'QUEUED')
		ON CONFLICT (order_id) DO NOTHING`, uuid.NewString(), orderID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
