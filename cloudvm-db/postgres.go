package cloudvm_db

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig configures the pgx connection pool behind a PostgresStore.
type PoolConfig struct {
	// DatabaseURL is the PostgreSQL connection string
	DatabaseURL string

	// Logger for structured logging (optional, uses slog.Default if nil)
	Logger *slog.Logger

	// MaxConns is the maximum number of connections in the pool
	MaxConns int32

	// MinConns is the minimum number of connections kept open
	MinConns int32

	// ConnectTimeout bounds each connection attempt
	ConnectTimeout time.Duration

	// MaxRetries is the number of connection attempts before giving up
	MaxRetries int

	// RetryDelay is the delay before the second attempt; it doubles after each failure
	RetryDelay time.Duration
}

// DefaultPoolConfig returns pool settings sized for the default worker count.
func DefaultPoolConfig(databaseURL string) *PoolConfig {
	return &PoolConfig{
		DatabaseURL:    databaseURL,
		MaxConns:       10,
		MinConns:       2,
		ConnectTimeout: 10 * time.Second,
		MaxRetries:     3,
		RetryDelay:     time.Second,
	}
}

// PostgresStore keeps every collection in DocumentsTable as JSONB rows keyed by
// (collection, id).
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects with retries and exponential backoff, then pings the database.
func NewPostgresStore(ctx context.Context, config *PoolConfig) (*PostgresStore, error) {
	if config == nil || config.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL cannot be empty")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	poolConfig, err := pgxpool.ParseConfig(config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	poolConfig.MinConns = config.MinConns
	if config.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = config.ConnectTimeout
	}
	retries := max(config.MaxRetries, 1)

	var lastErr error
	delay := config.RetryDelay
	for attempt := 1; attempt <= retries; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				logger.Info("database connection pool established",
					"attempt", attempt,
					"total_conns", pool.Stat().TotalConns(),
				)
				return &PostgresStore{pool: pool, logger: logger}, nil
			}
			pool.Close()
		}
		lastErr = err
		logger.Warn("database connection failed",
			"attempt", attempt,
			"max_retries", retries,
			"error", err,
		)
		if attempt < retries {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}
	}
	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", retries, lastErr)
}

// NewPostgresStoreFromPool wraps an existing pool.
func NewPostgresStoreFromPool(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, logger: logger}
}

// EnsureSchema creates the documents table and its indexes when they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + DocumentsTable + ` (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			body JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS ` + DocumentsTable + `_body_idx ON ` + DocumentsTable + ` USING GIN (body)`,
	}
	for _, statement := range statements {
		if _, err := s.pool.Exec(ctx, statement); err != nil {
			return PostgresError(DocumentsTable, err)
		}
	}
	return nil
}

// EnsureUnique creates a partial unique index on one body field of a collection.
func (s *PostgresStore) EnsureUnique(ctx context.Context, collection string, field string) error {
	if err := validField(field); err != nil {
		return PostgresError(collection, err)
	}
	if err := validField(collection); err != nil {
		return PostgresError(collection, err)
	}
	statement := fmt.Sprintf(
		`CREATE UNIQUE INDEX IF NOT EXISTS %s_%s_%s_key ON %s ((body->>'%s')) WHERE collection = '%s'`,
		DocumentsTable, collection, field, DocumentsTable, field, collection,
	)
	if _, err := s.pool.Exec(ctx, statement); err != nil {
		return PostgresError(collection, err)
	}
	return nil
}

func (s *PostgresStore) query(ctx context.Context, qb *DocumentQuery) ([]Document, error) {
	query, args, err := qb.Build()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, PostgresError(qb.collection, err)
	}
	defer rows.Close()

	results := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return results, PostgresError(qb.collection, err)
		}
		results = append(results, doc)
	}
	if rows.Err() != nil {
		return results, PostgresError(qb.collection, rows.Err())
	}
	return results, nil
}

func scanDocument(row pgx.Rows) (Document, error) {
	var id string
	var body []byte
	if err := row.Scan(&id, &body); err != nil {
		return nil, err
	}
	doc := Document{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	doc["id"] = id
	return doc, nil
}

func (s *PostgresStore) exec(ctx context.Context, qb *DocumentQuery) (int64, error) {
	query, args, err := qb.Build()
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, PostgresError(qb.collection, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) FindOne(ctx context.Context, collection string, filter Filter) (Document, error) {
	docs, err := s.query(ctx, Select(collection).WhereMatches(filter).SortInserted().Limit(1))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, NotFoundError(collection)
	}
	return docs[0], nil
}

func (s *PostgresStore) Find(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	return s.query(ctx, Select(collection).WhereMatches(filter).SortInserted())
}

func (s *PostgresStore) Insert(ctx context.Context, collection string, doc Document) (string, error) {
	id, body := splitId(doc)
	if _, err := s.exec(ctx, Insert(collection, id, body)); err != nil {
		return "", err
	}
	return id, nil
}

func (s *PostgresStore) Update(ctx context.Context, collection string, filter Filter, set Document) (int64, error) {
	qb := Update(collection).WhereMatches(filter)
	for field, value := range set {
		qb.Set(field, value)
	}
	return s.exec(ctx, qb)
}

func (s *PostgresStore) Delete(ctx context.Context, collection string, filter Filter) (int64, error) {
	return s.exec(ctx, Delete(collection).WhereMatches(filter))
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
	s.logger.Info("database connection pool closed")
}
