package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"

	_ "modernc.org/sqlite" // The pure Go SQLite driver
)

// ErrNotFound is returned by updates and deletes that matched no row.
var ErrNotFound = errors.New("record not found")

// Service is the central struct for managing all database interactions.
// It holds the club database connection and serializes writes through a
// mutex, since SQLite allows only one writer at a time.
type Service struct {
	path string

	db      *sql.DB
	writeMu sync.Mutex
}

// NewService opens the SQLite database at path and verifies the connection.
// Foreign keys are enabled per connection so cascading deletes work.
func NewService(path string) (*Service, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to %s: %w", path, err)
	}

	return &Service{
		path: path,
		db:   db,
	}, nil
}

// Write executes a write operation (INSERT, UPDATE, DELETE) within a
// transaction, protected by a mutex to ensure serial access.
func (s *Service) Write(ctx context.Context, writeFunc func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Execute the provided function. If it returns an error, rollback the transaction.
	if err := writeFunc(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// DB provides the shared connection for reads.
func (s *Service) DB() *sql.DB {
	return s.db
}

// Close closes the database connection when the application shuts down.
func (s *Service) Close() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.db.Close()
	log.Println("INFO: Database connection closed.")
}
