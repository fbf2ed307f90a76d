package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-faster/errors"

	"github.com/rl1809/cart-store/internal/core/domain"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS cart_slots (
		slot_key   VARCHAR(191) NOT NULL PRIMARY KEY,
		payload    MEDIUMBLOB   NOT NULL,
		updated_at DATETIME(6)  NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id          BIGINT        NOT NULL PRIMARY KEY,
		name        VARCHAR(255)  NOT NULL,
		price       DECIMAL(12,2) NOT NULL,
		category    VARCHAR(64)   NOT NULL,
		image       VARCHAR(512)  NOT NULL DEFAULT '',
		description TEXT          NOT NULL,
		position    INT           NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS checkout_requests (
		request_key VARCHAR(191) NOT NULL PRIMARY KEY,
		created_at  DATETIME(6)  NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id         CHAR(36)      NOT NULL PRIMARY KEY,
		user_id    VARCHAR(191)  NOT NULL,
		subtotal   DECIMAL(12,2) NOT NULL,
		tax        DECIMAL(12,2) NOT NULL,
		total      DECIMAL(12,2) NOT NULL,
		status     VARCHAR(16)   NOT NULL,
		created_at DATETIME(6)   NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_id   CHAR(36)      NOT NULL,
		product_id BIGINT        NOT NULL,
		name       VARCHAR(255)  NOT NULL,
		unit_price DECIMAL(12,4) NOT NULL,
		quantity   INT           NOT NULL,
		PRIMARY KEY (order_id, product_id)
	)`,
}

type MySQLAdapter struct {
	db  *sql.DB
	now func() time.Time
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db, now: time.Now}
}

// EnsureSchema creates the tables used by the adapter if they are missing.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "create schema")
		}
	}
	return nil
}

func (m *MySQLAdapter) LoadSlot(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := m.db.QueryRowContext(ctx, `
		SELECT payload FROM cart_slots WHERE slot_key = ?`, key,
	).Scan(&payload)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "query slot")
	}
	return payload, nil
}

func (m *MySQLAdapter) SaveSlot(ctx context.Context, key string, payload []byte) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO cart_slots (slot_key, payload, updated_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE payload = VALUES(payload), updated_at = VALUES(updated_at)`,
		key, payload, m.now(),
	)
	if err != nil {
		return errors.Wrap(err, "upsert slot")
	}
	return nil
}

func (m *MySQLAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	result, err := m.db.ExecContext(ctx, `
		INSERT IGNORE INTO checkout_requests (request_key, created_at) VALUES (?, ?)`,
		key, m.now(),
	)
	if err != nil {
		return false, errors.Wrap(err, "insert checkout request")
	}

	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

func (m *MySQLAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, name, price, category, image, description
		FROM products ORDER BY position, id`)
	if err != nil {
		return nil, errors.Wrap(err, "query products")
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Category, &p.Image, &p.Description); err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate products")
	}
	return products, nil
}

func (m *MySQLAdapter) SaveReceipt(ctx context.Context, receipt domain.Receipt) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, subtotal, tax, total, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		receipt.ID, receipt.Identity, receipt.Subtotal, receipt.Tax, receipt.Total,
		string(receipt.Status), receipt.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "insert order")
	}

	for _, item := range receipt.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, name, unit_price, quantity)
			VALUES (?, ?, ?, ?, ?)`,
			receipt.ID, item.ID, item.Name, item.Price, item.Quantity,
		)
		if err != nil {
			return errors.Wrapf(err, "insert order item %d", item.ID)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}
