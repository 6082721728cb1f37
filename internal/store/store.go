package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a unique constraint
	ErrDuplicate = errors.New("duplicate record")
	// ErrInsufficientStock is returned when a guarded stock decrement matches no row
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Repository is the row-level access shared by the store and its transactions
type Repository interface {
	GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
	GetCustomerByVerificationToken(ctx context.Context, token string) (*models.Customer, error)
	GetCustomerByResetToken(ctx context.Context, token string) (*models.Customer, error)
	CreateCustomer(ctx context.Context, customer *models.Customer) error
	CreateGuestCustomer(ctx context.Context, email string) (*models.Customer, error)
	UpdateCustomer(ctx context.Context, customer *models.Customer) error

	GetAddressByID(ctx context.Context, id, customerID int64) (*models.Address, error)
	GetActiveAddress(ctx context.Context, customerID int64, addressType models.AddressType) (*models.Address, error)
	ListAddresses(ctx context.Context, customerID int64) ([]models.Address, error)
	ListAddressesByType(ctx context.Context, customerID int64, addressType models.AddressType) ([]models.Address, error)
	SaveAddress(ctx context.Context, address *models.Address) error

	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	LockProductByID(ctx context.Context, id int64) (*models.Product, error)
	DecrementStock(ctx context.Context, productID int64, quantity int) error

	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
}

// Transaction is a Repository bound to one database transaction
type Transaction interface {
	Repository
	Commit() error
	Rollback() error
}

// Gateway is the persistence entry point used by the services
type Gateway interface {
	Repository
	BeginTx(ctx context.Context) (Transaction, error)
}

// Store is the Postgres implementation of Gateway
type Store struct {
	queries
	db *sqlx.DB
}

// Tx is an open Postgres transaction
type Tx struct {
	queries
	tx *sqlx.Tx
}

// queries runs statements against either the pool or a transaction
type queries struct {
	q sqlx.ExtContext
}

// NewStore creates a new database store
func NewStore(databaseURL string, maxOpenConns int) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{queries: queries{q: db}, db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// BeginTx opens a read-committed transaction
func (s *Store) BeginTx(ctx context.Context) (Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{queries: queries{q: tx}, tx: tx}, nil
}

// Commit commits the transaction
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction; calling it after Commit is a no-op
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// get runs a single-row query and maps sql.ErrNoRows to ErrNotFound
func (q queries) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	err := sqlx.GetContext(ctx, q.q, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (q queries) selectRows(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, q.q, dest, query, args...)
}

// isUniqueViolation reports whether err is a Postgres unique_violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
