package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radiusdt/ivt-audit/internal/models"
)

// PostgresEventStore implements EventStore using PostgreSQL.
type PostgresEventStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresEventStore creates a new PostgreSQL-backed event store reading
// from table.
func NewPostgresEventStore(pool *pgxpool.Pool, table string) (*PostgresEventStore, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}
	return &PostgresEventStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the event table if it does not exist. Every column
// is stored as text; the vendor export carries no typed values.
func (s *PostgresEventStore) EnsureSchema(ctx context.Context) error {
	cols := make([]string, len(models.Columns))
	for i, c := range models.Columns {
		cols[i] = pgx.Identifier{c.DBName}.Sanitize() + " TEXT"
		if !c.Nullable {
			cols[i] += " NOT NULL"
		}
	}

	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		pgx.Identifier{s.table}.Sanitize(), strings.Join(cols, ",\n\t"))
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create event table: %w", err)
	}
	return nil
}

// pgColumnsQuery lists the columns of a table in the schema unqualified
// names resolve to, the same one EnsureSchema creates the table in.
const pgColumnsQuery = `
	SELECT column_name FROM information_schema.columns
	WHERE table_schema = current_schema() AND table_name = $1
	ORDER BY ordinal_position
`

// VerifySchema checks the table carries exactly the expected columns.
func (s *PostgresEventStore) VerifySchema(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, pgColumnsQuery, s.table)
	if err != nil {
		return fmt.Errorf("failed to read table columns: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan column name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read table columns: %w", err)
	}
	return checkColumns(names)
}

func (s *PostgresEventStore) ScanEvents(ctx context.Context) ([]models.Event, error) {
	query := fmt.Sprintf("SELECT %s FROM %s",
		selectList(pgxQuote), pgx.Identifier{s.table}.Sanitize())

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}
	return events, nil
}

// BulkInsert copies events into the table inside one transaction.
func (s *PostgresEventStore) BulkInsert(ctx context.Context, events []models.Event) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{s.table},
		models.DBColumnNames(),
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			return rowValues(events[i]), nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to copy events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit events: %w", err)
	}
	return n, nil
}

func (s *PostgresEventStore) Count(ctx context.Context) (int64, error) {
	var n int64
	query := "SELECT COUNT(*) FROM " + pgx.Identifier{s.table}.Sanitize()
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

func pgxQuote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func selectList(quote func(string) string) string {
	names := models.DBColumnNames()
	for i, n := range names {
		names[i] = quote(n)
	}
	return strings.Join(names, ", ")
}

func checkColumns(names []string) error {
	if len(names) != models.ExpectedColumns {
		return fmt.Errorf("%w: found %d columns, want %d", ErrSchemaMismatch, len(names), models.ExpectedColumns)
	}

	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[n] = true
	}
	var missing []string
	for _, c := range models.Columns {
		if !have[c.DBName] {
			missing = append(missing, c.DBName)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrSchemaMismatch, strings.Join(missing, ", "))
	}
	return nil
}
