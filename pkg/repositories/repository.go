package repositories

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/database"
)

// Repository provides the shared PostgreSQL plumbing of the repositories.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new base repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// DB returns the database instance
func (r *Repository) DB() database.DB {
	return r.db
}

// conn returns the transaction carried by ctx, or the pool.
func (r *Repository) conn(ctx context.Context) database.Querier {
	return r.db.Conn(ctx)
}

// exec runs a write and returns the number of affected rows. Failures are
// logged with fields and reported as a 500 carrying action.
func (r *Repository) exec(ctx context.Context, action string, fields map[string]any, query string, args ...any) (int64, error) {
	result, err := r.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(fields).Errorf("failed to %s", action)
		return 0, Internal("failed to " + action)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(fields).Errorf("failed to %s", action)
		return 0, Internal("failed to " + action)
	}
	return rows, nil
}

func toArgs[T any](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
