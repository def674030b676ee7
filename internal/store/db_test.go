package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "lifeos.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return db
}

func TestInitialize_Idempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.Execute(ctx, `INSERT INTO notes (content) VALUES ('keep me')`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := db.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}

	res, err := db.Execute(ctx, `SELECT content FROM notes`)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0]["content"] != "keep me" {
		t.Errorf("expected existing note to survive re-initialization, got %v", res.Rows)
	}
}

func TestInitialize_CreatesExactlyThreeTables(t *testing.T) {
	db := openTestDB(t)
	res, err := db.Execute(context.Background(),
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	var names []string
	for _, row := range res.Rows {
		names = append(names, row["name"].(string))
	}
	want := []string{"notes", "reminders", "tasks"}
	if len(names) != len(want) {
		t.Fatalf("expected tables %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("expected table %q at %d, got %q", want[i], i, names[i])
		}
	}
}

func TestExecute_WriteReturnsAffectedRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	res, err := db.Execute(ctx, `INSERT INTO tasks (title) VALUES (?), (?)`, "buy milk", "call bank")
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if res.ReturnsRows {
		t.Error("insert without RETURNING should not return rows")
	}
	if res.RowsAffected != 2 {
		t.Errorf("expected 2 rows affected, got %d", res.RowsAffected)
	}
	if res.LastInsertID != 2 {
		t.Errorf("expected last insert id 2, got %d", res.LastInsertID)
	}

	res, err = db.Execute(ctx, `UPDATE tasks SET status = 'done' WHERE title = 'buy milk'`)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if res.RowsAffected != 1 {
		t.Errorf("expected 1 row affected, got %d", res.RowsAffected)
	}
}

func TestExecute_ReadReturnsRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	db.Execute(ctx, `INSERT INTO tasks (title, due_at) VALUES ('pay rent', '2026-02-01T09:00:00Z')`)

	res, err := db.Execute(ctx, `SELECT id, title, status, due_at FROM tasks`)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if !res.ReturnsRows {
		t.Fatal("expected rows")
	}
	if len(res.Columns) != 4 || res.Columns[0] != "id" {
		t.Errorf("unexpected columns: %v", res.Columns)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(res.Rows))
	}
	row := res.Rows[0]
	if row["title"] != "pay rent" || row["status"] != "open" {
		t.Errorf("unexpected row: %v", row)
	}
	if row["id"] != int64(1) {
		t.Errorf("expected id int64(1), got %#v", row["id"])
	}
}

func TestExecute_Returning(t *testing.T) {
	db := openTestDB(t)
	res, err := db.Execute(context.Background(),
		`INSERT INTO reminders (message, fire_at) VALUES ('stretch', '2026-01-01T10:00:00Z') RETURNING id, status`)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if !res.ReturnsRows || len(res.Rows) != 1 {
		t.Fatalf("expected one returned row, got %+v", res)
	}
	if res.Rows[0]["status"] != "pending" {
		t.Errorf("expected default status pending, got %v", res.Rows[0]["status"])
	}
}

func TestExecute_KeywordsInsideLiterals(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	res, err := db.Execute(ctx, `INSERT INTO notes (content) VALUES ('returning home')`)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if res.ReturnsRows {
		t.Errorf("expected no rows from a plain insert, got columns %v", res.Columns)
	}
	if res.RowsAffected != 1 {
		t.Errorf("expected 1 row affected, got %d", res.RowsAffected)
	}
	if res.LastInsertID != 1 {
		t.Errorf("expected last insert id 1, got %d", res.LastInsertID)
	}

	if _, err := db.Execute(ctx, `INSERT INTO notes (content) VALUES ('update the budget')`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	res, err = db.Execute(ctx,
		`WITH n AS (SELECT * FROM notes) SELECT content FROM n WHERE content LIKE '%update%'`)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if !res.ReturnsRows {
		t.Fatal("expected rows from a read-only CTE")
	}
	if len(res.Rows) != 1 || res.Rows[0]["content"] != "update the budget" {
		t.Errorf("expected the matching note, got %v", res.Rows)
	}
}

func TestExecute_UpdateReportsNoInsertID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	db.Execute(ctx, `INSERT INTO tasks (title) VALUES ('a')`)

	res, err := db.Execute(ctx, `UPDATE tasks SET status = 'done'`)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if res.RowsAffected != 1 {
		t.Errorf("expected 1 row affected, got %d", res.RowsAffected)
	}
	if res.LastInsertID != 0 {
		t.Errorf("expected no last insert id for an update, got %d", res.LastInsertID)
	}
}

func TestExecute_RejectsMultipleStatements(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	db.Execute(ctx, `INSERT INTO notes (content) VALUES ('keep')`)

	_, err := db.Execute(ctx, `SELECT 1; DELETE FROM notes`)
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if se.Kind != KindSyntax {
		t.Errorf("expected kind %q, got %q", KindSyntax, se.Kind)
	}
	if !errors.Is(err, ErrMultipleStatements) {
		t.Errorf("expected ErrMultipleStatements, got %v", err)
	}

	res, err := db.Execute(ctx, `SELECT COUNT(*) AS n FROM notes`)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if res.Rows[0]["n"] != int64(1) {
		t.Errorf("expected the note to survive, got count %v", res.Rows[0]["n"])
	}

	for _, stmt := range []string{`SELECT ';' AS s`, `SELECT 1;`} {
		if _, err := db.Execute(ctx, stmt); err != nil {
			t.Errorf("Execute(%q) failed: %v", stmt, err)
		}
	}
}

func TestExecute_ErrorKinds(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		statement string
		want      ErrorKind
	}{
		{"syntax", `SELEC * FROM tasks`, KindSyntax},
		{"unknown table", `SELECT * FROM projects`, KindSyntax},
		{"not null", `INSERT INTO notes (content) VALUES (NULL)`, KindConstraint},
		{"check", `INSERT INTO tasks (title, status) VALUES ('x', 'someday')`, KindConstraint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Execute(ctx, tt.statement)
			var se *Error
			if !errors.As(err, &se) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if se.Kind != tt.want {
				t.Errorf("expected kind %q, got %q (%v)", tt.want, se.Kind, se.Err)
			}
		})
	}
}

func TestExecute_Empty(t *testing.T) {
	db := openTestDB(t)
	for _, stmt := range []string{"", "   ", "-- nothing\n", ";"} {
		if _, err := db.Execute(context.Background(), stmt); !errors.Is(err, ErrEmptyStatement) {
			t.Errorf("Execute(%q): expected ErrEmptyStatement, got %v", stmt, err)
		}
	}
}

func TestExecute_FailedStatementLeavesNoPartialWrite(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// second row violates CHECK, so the whole statement rolls back
	_, err := db.Execute(ctx, `INSERT INTO tasks (title, status) VALUES ('a', 'open'), ('b', 'bogus')`)
	if err == nil {
		t.Fatal("expected constraint error")
	}
	res, _ := db.Execute(ctx, `SELECT COUNT(*) AS n FROM tasks`)
	if res.Rows[0]["n"] != int64(0) {
		t.Errorf("expected no rows after failed insert, got %v", res.Rows[0]["n"])
	}
}

func TestExecute_ConcurrentWriters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := db.Execute(ctx, `INSERT INTO notes (content) VALUES ('n')`)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := db.Execute(ctx, `SELECT COUNT(*) FROM notes`)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent statement failed: %v", err)
		}
	}

	counts, err := db.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts.Notes != 20 {
		t.Errorf("expected 20 notes, got %d", counts.Notes)
	}
}

func TestExecute_CancelledContext(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.Execute(ctx, `SELECT 1`)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	var se *Error
	if errors.As(err, &se) {
		t.Error("cancellation should not be reported as a statement error")
	}
}

func TestOpen_Memory(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	if err := db.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if _, err := db.Execute(ctx, `INSERT INTO notes (content) VALUES ('hi')`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	counts, _ := db.Counts(ctx)
	if counts.Notes != 1 {
		t.Errorf("expected 1 note in memory db, got %d", counts.Notes)
	}
}
