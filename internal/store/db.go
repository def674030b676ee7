package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vthunder/lifeos/internal/logging"
)

//go:embed schema.sql
var Schema string

// ErrEmptyStatement is returned when Execute is given only whitespace or comments
var ErrEmptyStatement = errors.New("store: empty statement")

// ErrMultipleStatements is the cause of the syntax error returned when more
// than one statement is sent in a single call.
var ErrMultipleStatements = errors.New("only one statement per call is allowed")

// DB wraps the SQLite database holding tasks, reminders and notes.
//
// Writers are serialized by mu; readers share it. The chat turns and the
// reminder scheduler both go through this type.
type DB struct {
	db   *sql.DB
	path string
	loc  *time.Location
	mu   sync.RWMutex
}

// Result is the outcome of one statement. Statements that yield columns fill
// Columns and Rows; everything else fills RowsAffected and LastInsertID.
type Result struct {
	Columns      []string         `json:"columns,omitempty"`
	Rows         []map[string]any `json:"rows,omitempty"`
	RowsAffected int64            `json:"rows_affected"`
	LastInsertID int64            `json:"last_insert_id,omitempty"`
	ReturnsRows  bool             `json:"-"`
}

// Open opens or creates the database at path. ":memory:" opens a private
// in-memory database restricted to a single connection.
func Open(path string) (*DB, error) {
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open(driverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db: db, path: path, loc: time.Local}, nil
}

// SetLocation sets the zone used to interpret timestamps stored without an offset
func (d *DB) SetLocation(loc *time.Location) {
	if loc != nil {
		d.loc = loc
	}
}

// Path returns the database location
func (d *DB) Path() string {
	return d.path
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// Initialize creates the tables if they are absent. Safe to call on every start.
func (d *DB) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.Debug("store", "Schema ready at %s", d.path)
	return nil
}

// Execute runs one statement in its own transaction and returns its rows or
// its affected-row count. Statement failures are returned as *Error.
func (d *DB) Execute(ctx context.Context, statement string, args ...any) (*Result, error) {
	kind := classify(statement)
	if kind.empty {
		return nil, ErrEmptyStatement
	}
	if kind.multiple {
		return nil, &Error{Kind: KindSyntax, Err: ErrMultipleStatements}
	}

	if kind.readOnly {
		d.mu.RLock()
		defer d.mu.RUnlock()
	} else {
		d.mu.Lock()
		defer d.mu.Unlock()
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapError(err)
	}
	defer tx.Rollback()

	res, err := run(ctx, tx, statement, args)
	if err != nil {
		return nil, wrapError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapError(err)
	}
	return res, nil
}

// run executes the statement as a query. A statement the driver reports no
// columns for is a plain write: its effect is read back from changes() on the
// same connection.
func run(ctx context.Context, tx *sql.Tx, statement string, args []any) (*Result, error) {
	var rowidBefore int64
	if err := tx.QueryRowContext(ctx, `SELECT last_insert_rowid()`).Scan(&rowidBefore); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		// stepping runs the statement
		for rows.Next() {
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
		return changes(ctx, tx, rowidBefore)
	}

	res := &Result{Columns: columns, Rows: []map[string]any{}, ReturnsRows: true}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalize(values[i])
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	res.RowsAffected = int64(len(res.Rows))
	return res, nil
}

func changes(ctx context.Context, tx *sql.Tx, rowidBefore int64) (*Result, error) {
	var n, rowid int64
	if err := tx.QueryRowContext(ctx, `SELECT changes(), last_insert_rowid()`).Scan(&n, &rowid); err != nil {
		return nil, err
	}
	res := &Result{RowsAffected: n}
	if n > 0 && rowid != rowidBefore {
		res.LastInsertID = rowid
	}
	return res, nil
}

// normalize converts driver values into JSON-friendly ones
func normalize(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return val
	}
}
