package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

// Dialect captures the few SQL differences between the production MySQL
// store and the SQLite database used by tests and local tooling.
type Dialect struct {
	// ForUpdate is appended to locking reads.
	ForUpdate string
	// TxOptions are passed to BeginTx for write transactions.
	TxOptions *sql.TxOptions
}

// MySQL locks candidate rows and runs write transactions at READ COMMITTED
// so reads after a lock wait observe rows committed by the lock holder.
var MySQL = Dialect{
	ForUpdate: " FOR UPDATE",
	TxOptions: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
}

// SQLite serialises writers at the database level and has no row locks.
var SQLite = Dialect{}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// timestampLayout is how timestamps are written to DATETIME/TEXT columns.
const timestampLayout = "2006-01-02 15:04:05"

func formatTimestamp(t time.Time) string { return t.UTC().Format(timestampLayout) }

// nullTime scans DATETIME values from MySQL and text timestamps from SQLite.
type nullTime struct {
	Time  time.Time
	Valid bool
}

var timestampLayouts = []string{
	timestampLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05 -0700 MST",
	model.DateLayout,
}

func (n *nullTime) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			n.Time, n.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func idArgs(ids []uint64) []any {
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}

func statusArgs(statuses []model.Status) []any {
	args := make([]any, 0, len(statuses))
	for _, s := range statuses {
		args = append(args, string(s))
	}
	return args
}

// holdingIn is the IN-list of statuses that occupy capacity.
var holdingIn = "(" + placeholders(len(model.HoldingStatuses)) + ")"

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableStatus(p *model.Status) any {
	if p == nil {
		return nil
	}
	return string(*p)
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
