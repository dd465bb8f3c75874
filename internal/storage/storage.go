package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/radiusdt/ivt-audit/internal/models"
)

// EventStore provides read access to the traffic event table and the single
// bulk-load write path.
type EventStore interface {
	// ScanEvents returns every stored event. Failures are returned as-is to
	// the caller; the store does not retry.
	ScanEvents(ctx context.Context) ([]models.Event, error)

	// BulkInsert loads events atomically: either every event becomes
	// visible or none does.
	BulkInsert(ctx context.Context, events []models.Event) (int64, error)

	// Count returns the number of stored events.
	Count(ctx context.Context) (int64, error)
}

// SchemaVerifier is implemented by stores backed by a real table.
type SchemaVerifier interface {
	EnsureSchema(ctx context.Context) error
	VerifySchema(ctx context.Context) error
}

var (
	// ErrSchemaMismatch is returned when the table does not carry the
	// expected columns.
	ErrSchemaMismatch = errors.New("event table schema mismatch")

	// ErrInvalidTable is returned for table names that are not plain
	// identifiers.
	ErrInvalidTable = errors.New("invalid table name")
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateTable(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	return nil
}

// rowValues returns the event in column order, with NULL for empty
// nullable columns.
func rowValues(ev models.Event) []any {
	vals := ev.Values()
	row := make([]any, len(vals))
	for i, v := range vals {
		if models.Columns[i].Nullable {
			row[i] = models.NullIfEmpty(v)
		} else {
			row[i] = v
		}
	}
	return row
}

// scanner is satisfied by pgx and clickhouse row types.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (models.Event, error) {
	var cols [models.ExpectedColumns]*string
	dest := make([]any, len(cols))
	for i := range cols {
		dest[i] = &cols[i]
	}
	if err := row.Scan(dest...); err != nil {
		return models.Event{}, err
	}

	vals := make([]string, len(cols))
	for i, c := range cols {
		vals[i] = models.Deref(c)
	}
	return models.EventFromValues(vals)
}
