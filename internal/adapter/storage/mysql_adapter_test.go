package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-faster/errors"
	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/rl1809/cart-store/internal/core/domain"
)

func newMockMySQL(t *testing.T) (*MySQLAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewMySQLAdapter(db), mock
}

func TestMySQLLoadSlot(t *testing.T) {
	adapter, mock := newMockMySQL(t)

	mock.ExpectQuery("SELECT payload FROM cart_slots WHERE slot_key = \\?").
		WithArgs("cart_alice").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow([]byte(`{"version":1,"items":[]}`)))

	data, err := adapter.LoadSlot(context.Background(), "cart_alice")
	if err != nil {
		t.Fatalf("LoadSlot failed: %v", err)
	}
	if string(data) != `{"version":1,"items":[]}` {
		t.Errorf("unexpected payload %s", data)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMySQLLoadSlot_NotFound(t *testing.T) {
	adapter, mock := newMockMySQL(t)

	mock.ExpectQuery("SELECT payload FROM cart_slots").
		WithArgs("cart_nobody").
		WillReturnError(sql.ErrNoRows)

	data, err := adapter.LoadSlot(context.Background(), "cart_nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data != nil {
		t.Errorf("expected nil payload, got %q", data)
	}
}

func TestMySQLLoadSlot_QueryError(t *testing.T) {
	adapter, mock := newMockMySQL(t)

	mock.ExpectQuery("SELECT payload FROM cart_slots").
		WillReturnError(errors.New("connection reset"))

	if _, err := adapter.LoadSlot(context.Background(), "cart_alice"); err == nil {
		t.Error("expected error")
	}
}

func TestMySQLSaveSlot(t *testing.T) {
	adapter, mock := newMockMySQL(t)
	payload := []byte(`{"version":1,"items":[]}`)

	mock.ExpectExec("INSERT INTO cart_slots .* ON DUPLICATE KEY UPDATE").
		WithArgs("cart_alice", payload, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := adapter.SaveSlot(context.Background(), "cart_alice", payload); err != nil {
		t.Fatalf("SaveSlot failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMySQLSetIdempotency(t *testing.T) {
	adapter, mock := newMockMySQL(t)

	mock.ExpectExec("INSERT IGNORE INTO checkout_requests").
		WithArgs("checkout:alice:req-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT IGNORE INTO checkout_requests").
		WithArgs("checkout:alice:req-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := adapter.SetIdempotency(context.Background(), "checkout:alice:req-1")
	if err != nil || !first {
		t.Fatalf("expected first insert to succeed, got %v, %v", first, err)
	}
	second, err := adapter.SetIdempotency(context.Background(), "checkout:alice:req-1")
	if err != nil || second {
		t.Fatalf("expected duplicate to be rejected, got %v, %v", second, err)
	}
}

func TestMySQLListProducts(t *testing.T) {
	adapter, mock := newMockMySQL(t)

	rows := sqlmock.NewRows([]string{"id", "name", "price", "category", "image", "description"}).
		AddRow(int64(1), "Headphones", "79.99", "electronics", "h.jpg", "Over-ear").
		AddRow(int64(2), "Lamp", "35.50", "home", "", "LED")
	mock.ExpectQuery("SELECT id, name, price, category, image, description\\s+FROM products ORDER BY position, id").
		WillReturnRows(rows)

	products, err := adapter.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(products))
	}
	if !products[0].Price.Equal(decimal.RequireFromString("79.99")) || products[0].Image != "h.jpg" {
		t.Errorf("unexpected first product %+v", products[0])
	}
	if products[1].ID != 2 || products[1].Category != "home" {
		t.Errorf("unexpected second product %+v", products[1])
	}
}

func testReceipt() domain.Receipt {
	return domain.Receipt{
		ID:       "7f1c8a6e-0000-4000-8000-000000000001",
		Identity: "alice",
		Items: []domain.LineItem{
			domain.NewLineItem(domain.Product{ID: 1, Name: "Headphones", Price: decimal.RequireFromString("10.00")}, 2),
			domain.NewLineItem(domain.Product{ID: 2, Name: "Cable", Price: decimal.RequireFromString("5.00")}, 1),
		},
		Subtotal:  decimal.RequireFromString("25.00"),
		Tax:       decimal.RequireFromString("2.50"),
		Total:     decimal.RequireFromString("27.50"),
		Status:    domain.ReceiptStatusArchived,
		CreatedAt: time.Now(),
	}
}

func TestMySQLSaveReceipt(t *testing.T) {
	adapter, mock := newMockMySQL(t)
	receipt := testReceipt()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(receipt.ID, "alice", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "archived", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(receipt.ID, int64(1), "Headphones", sqlmock.AnyArg(), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(receipt.ID, int64(2), "Cable", sqlmock.AnyArg(), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := adapter.SaveReceipt(context.Background(), receipt); err != nil {
		t.Fatalf("SaveReceipt failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMySQLSaveReceipt_RollsBackOnItemFailure(t *testing.T) {
	adapter, mock := newMockMySQL(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	if err := adapter.SaveReceipt(context.Background(), testReceipt()); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/storefront?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	return db
}

func TestMySQLSlotRoundTrip_Live(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	if err := adapter.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	key := "cart_live-test-" + time.Now().Format("20060102150405")
	defer db.ExecContext(ctx, `DELETE FROM cart_slots WHERE slot_key = ?`, key)

	if err := adapter.SaveSlot(ctx, key, []byte("first")); err != nil {
		t.Fatalf("SaveSlot failed: %v", err)
	}
	if err := adapter.SaveSlot(ctx, key, []byte("second")); err != nil {
		t.Fatalf("SaveSlot failed: %v", err)
	}

	data, err := adapter.LoadSlot(ctx, key)
	if err != nil {
		t.Fatalf("LoadSlot failed: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("expected second, got %s", data)
	}
}
