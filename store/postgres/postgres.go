// Package postgres is the production store implementation on GORM. Every
// committed insert on a feed-relevant table publishes a ChangeEvent, which
// makes the database the single producer of the realtime change feed.
package postgres

import (
	"errors"

	"github.com/jackc/pgconn"
	"github.com/strandapp/strand/model"
	"github.com/strandapp/strand/store"
	"gorm.io/gorm"
)

// Postgres SQLSTATE for unique constraint violation.
const uniqueViolationCode = "23505"

var _ store.Store = (*PgStore)(nil)

type PgStore struct {
	db        *gorm.DB
	publisher store.EventPublisher
}

// New wraps an opened gorm DB. publisher may be nil when no realtime
// consumer is attached (offline jobs, migrations).
func New(db *gorm.DB, publisher store.EventPublisher) *PgStore {
	return &PgStore{db: db, publisher: publisher}
}

func (s *PgStore) publish(event model.ChangeEvent) {
	if s.publisher != nil {
		s.publisher.Publish(event)
	}
}

// isUniqueViolation reports whether the error is a unique constraint
// violation, which on chat creation means another writer won the race.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode
	}
	return false
}

// translateNotFound maps gorm's record-not-found onto the store sentinel.
func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}
