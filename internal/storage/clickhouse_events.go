package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/radiusdt/ivt-audit/internal/models"
)

// ClickHouseEventStore implements EventStore on a ClickHouse MergeTree
// table. A batch send is atomic for a single insert block, so imports larger
// than the server's max_insert_block_size may become partially visible if the
// server fails mid-send.
type ClickHouseEventStore struct {
	conn  driver.Conn
	table string
}

// NewClickHouseEventStore creates a ClickHouse-backed event store.
func NewClickHouseEventStore(conn driver.Conn, table string) (*ClickHouseEventStore, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}
	return &ClickHouseEventStore{conn: conn, table: table}, nil
}

func chQuote(name string) string {
	return "`" + name + "`"
}

func (s *ClickHouseEventStore) EnsureSchema(ctx context.Context) error {
	cols := make([]string, len(models.Columns))
	for i, c := range models.Columns {
		typ := "String"
		if c.Nullable {
			typ = "Nullable(String)"
		}
		cols[i] = chQuote(c.DBName) + " " + typ
	}

	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n) ENGINE = MergeTree ORDER BY tuple()",
		chQuote(s.table), strings.Join(cols, ",\n\t"))
	if err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create event table: %w", err)
	}
	return nil
}

func (s *ClickHouseEventStore) VerifySchema(ctx context.Context) error {
	rows, err := s.conn.Query(ctx, `
		SELECT name FROM system.columns
		WHERE database = currentDatabase() AND table = ?
		ORDER BY position
	`, s.table)
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

func (s *ClickHouseEventStore) ScanEvents(ctx context.Context) ([]models.Event, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", selectList(chQuote), chQuote(s.table))

	rows, err := s.conn.Query(ctx, query)
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

func (s *ClickHouseEventStore) BulkInsert(ctx context.Context, events []models.Event) (int64, error) {
	query := fmt.Sprintf("INSERT INTO %s (%s)", chQuote(s.table), selectList(chQuote))

	batch, err := s.conn.PrepareBatch(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer batch.Abort()

	for i, ev := range events {
		if err := batch.Append(rowValues(ev)...); err != nil {
			return 0, fmt.Errorf("failed to append event %d: %w", i, err)
		}
	}
	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("failed to send batch: %w", err)
	}
	return int64(len(events)), nil
}

func (s *ClickHouseEventStore) Count(ctx context.Context) (int64, error) {
	var n uint64
	if err := s.conn.QueryRow(ctx, "SELECT count() FROM "+chQuote(s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return int64(n), nil
}
