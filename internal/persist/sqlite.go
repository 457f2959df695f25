// Package persist stores the font collection in a local SQLite database.
package persist

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	entschema "entgo.io/ent/dialect/sql/schema"
	_ "github.com/lib-x/entsqlite"
	"go.uber.org/zap"

	"fontshelf/internal/collection"
)

// DSN returns the SQLite connection string for a database file.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(10000)", path)
}

// SQLite is a collection.Persister backed by a SQLite database.
type SQLite struct {
	drv *entsql.Driver
}

var _ collection.Persister = (*SQLite)(nil)

// Open connects to the database and creates or upgrades the schema.
func Open(ctx context.Context, dsn string) (*SQLite, error) {
	drv, err := entsql.Open(dialect.SQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	m, err := entschema.NewMigrate(drv)
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		drv.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &SQLite{drv: drv}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.drv.Close()
}

// Load returns every stored row in insertion order.
func (s *SQLite) Load(ctx context.Context) ([]collection.Row, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select(columnNames()...).
		From(entsql.Table(fontsTableName)).
		OrderExpr(entsql.Expr("rowid")).
		Query()

	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("query fonts: %w", err)
	}
	defer rows.Close()

	var out []collection.Row
	for rows.Next() {
		var (
			r                           collection.Row
			family, subfamily, checksum sql.NullString
			createdAt                   time.Time
		)
		if err := rows.Scan(&r.ID, &r.FileBase64, &r.Name, &r.FontType, &family, &subfamily, &checksum, &createdAt); err != nil {
			return nil, fmt.Errorf("scan font row: %w", err)
		}
		r.FontFamily = family.String
		r.FontSubfamily = subfamily.String
		r.Checksum = checksum.String
		r.CreatedAt = createdAt.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate font rows: %w", err)
	}
	return out, nil
}

// Save upserts rows and removes deleted ids in one transaction.
func (s *SQLite) Save(ctx context.Context, rows []collection.Row, deleted []string) (err error) {
	if len(rows) == 0 && len(deleted) == 0 {
		return nil
	}
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				zap.L().Warn("Rollback failed", zap.Error(rerr))
			}
		}
	}()

	b := entsql.Dialect(dialect.SQLite)
	for _, r := range rows {
		created := r.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		query, args := b.Insert(fontsTableName).
			Columns(columnNames()...).
			Values(r.ID, r.FileBase64, r.Name, r.FontType,
				nullable(r.FontFamily), nullable(r.FontSubfamily), nullable(r.Checksum), created).
			OnConflict(
				entsql.ConflictColumns("id"),
				entsql.ResolveWithNewValues(),
			).
			Query()
		if err = tx.Exec(ctx, query, args, nil); err != nil {
			return fmt.Errorf("upsert font %s: %w", r.ID, err)
		}
	}

	if len(deleted) > 0 {
		ids := make([]any, len(deleted))
		for i, id := range deleted {
			ids[i] = id
		}
		query, args := b.Delete(fontsTableName).Where(entsql.In("id", ids...)).Query()
		if err = tx.Exec(ctx, query, args, nil); err != nil {
			return fmt.Errorf("delete fonts: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Count returns the number of stored rows.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select(entsql.Count("*")).
		From(entsql.Table(fontsTableName)).
		Query()
	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return 0, fmt.Errorf("count fonts: %w", err)
	}
	defer rows.Close()
	n, err := entsql.ScanInt(rows)
	if err != nil {
		return 0, fmt.Errorf("count fonts: %w", err)
	}
	return n, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
