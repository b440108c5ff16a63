package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/metal-toolbox/assetkeeper/internal/model"
)

var (
	ErrStoreConfig = errors.New("asset store configuration error")
)

// Options holds the asset store parameters.
type Options struct {
	Kind model.StoreKind

	// SQLitePath is the database file, required for the sqlite store kind.
	SQLitePath string

	// PostgresDSN is the connection string, required for the postgres store kind.
	PostgresDSN string
}

// NewRepository returns the asset store for the configured kind.
func NewRepository(ctx context.Context, opts *Options, logger *logrus.Logger) (Repository, error) {
	switch opts.Kind {
	case model.StoreKindMemory, "":
		return NewMemDB()
	case model.StoreKindSQLite:
		if opts.SQLitePath == "" {
			return nil, errors.Wrap(ErrStoreConfig, "sqlite.path not defined")
		}

		return NewSQL(ctx, model.StoreKindSQLite, sqliteDSN(opts.SQLitePath), logger)
	case model.StoreKindPostgres:
		if opts.PostgresDSN == "" {
			return nil, errors.Wrap(ErrStoreConfig, "postgres.dsn not defined")
		}

		return NewSQL(ctx, model.StoreKindPostgres, opts.PostgresDSN, logger)
	default:
		return nil, errors.Wrap(ErrStoreConfig, "unsupported store kind: "+string(opts.Kind))
	}
}

// sqliteDSN returns the DSN for the sqlite file with a busy timeout,
// concurrent writers wait for the lock instead of failing.
func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}
