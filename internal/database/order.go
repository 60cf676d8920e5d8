package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/voicegate/voicegate/internal/database/models"
)

type orderRepo struct {
	db *DB
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *DB) OrderRepository {
	return &orderRepo{db: db}
}

func (r *orderRepo) Create(ctx context.Context, order *models.Order) error {
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = "open"
	}
	if order.Items == "" {
		order.Items = "[]"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO orders (id, customer, caller_id, status, items, note,
		 created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.Customer, order.CallerID, order.Status, order.Items,
		order.Note, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}
	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, id string) (*models.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, customer, caller_id, status, items, note, created_at,
		 updated_at FROM orders WHERE id = ?`, id,
	)

	var o models.Order
	err := row.Scan(&o.ID, &o.Customer, &o.CallerID, &o.Status, &o.Items,
		&o.Note, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning order: %w", err)
	}
	return &o, nil
}

func (r *orderRepo) List(ctx context.Context, limit int) ([]models.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, customer, caller_id, status, items, note, created_at,
		 updated_at FROM orders
		 ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.Customer, &o.CallerID, &o.Status,
			&o.Items, &o.Note, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order rows: %w", err)
	}
	return orders, nil
}

// AddItem appends one position to the order and bumps updated_at.
func (r *orderRepo) AddItem(ctx context.Context, id string, item models.OrderItem) error {
	order, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("order %s not found", id)
	}

	var items []models.OrderItem
	if err := json.Unmarshal([]byte(order.Items), &items); err != nil {
		items = nil
	}
	items = append(items, item)
	encoded, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding order items: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"UPDATE orders SET items = ?, updated_at = ? WHERE id = ?",
		string(encoded), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating order items: %w", err)
	}
	return nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE orders SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating order status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("order %s not found", id)
	}
	return nil
}
