package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
	"github.com/vthunder/lifeos/internal/store"
)

func newTestStore(t *testing.T, name string) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return db
}

func args(query string, params ...any) string {
	m := map[string]any{"query": query}
	if len(params) > 0 {
		m["params"] = params
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func dump(t *testing.T, db *store.DB) map[string][]map[string]any {
	t.Helper()
	out := map[string][]map[string]any{}
	for _, table := range []string{"tasks", "reminders", "notes"} {
		res, err := db.Execute(context.Background(), "SELECT * FROM "+table+" ORDER BY id")
		if err != nil {
			t.Fatalf("dump %s failed: %v", table, err)
		}
		out[table] = res.Rows
	}
	return out
}

func TestGateway_MatchesDirectExecution(t *testing.T) {
	viaGateway := newTestStore(t, "gateway.db")
	direct := newTestStore(t, "direct.db")
	g := New(viaGateway, Options{})
	ctx := context.Background()

	statements := []string{
		`INSERT INTO tasks (title, description, due_at, created_at, updated_at) VALUES ('file taxes', 'before april', '2026-04-15T17:00:00-04:00', 'c', 'u')`,
		`INSERT INTO tasks (title, created_at, updated_at) VALUES ('buy milk', 'c', 'u')`,
		`UPDATE tasks SET status = 'done', updated_at = 'u2' WHERE title = 'buy milk'`,
		`INSERT INTO reminders (message, fire_at, created_at) VALUES ('call mom', '2026-01-15T17:00:00-05:00', 'c')`,
		`UPDATE reminders SET status = 'cancelled' WHERE id = 1`,
		`INSERT INTO notes (content, created_at) VALUES ('wifi password is on the fridge', 'c')`,
		`UPDATE notes SET content = content || '!' WHERE id = 1`,
		`INSERT INTO notes (content) VALUES (NULL)`, // fails in both
	}

	for _, stmt := range statements {
		if _, err := g.Execute(ctx, args(stmt)); err != nil {
			t.Fatalf("gateway Execute(%q) returned error: %v", stmt, err)
		}
		direct.Execute(ctx, stmt)
	}

	if a, b := dump(t, viaGateway), dump(t, direct); !reflect.DeepEqual(a, b) {
		t.Errorf("gateway state differs from direct execution\ngateway: %v\ndirect:  %v", a, b)
	}
}

func TestGateway_WriteResult(t *testing.T) {
	g := New(newTestStore(t, "w.db"), Options{})
	out, err := g.Execute(context.Background(), args(`INSERT INTO notes (content) VALUES (?)`, "hello"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if gjson.Get(out, "rows_affected").Int() != 1 {
		t.Errorf("expected rows_affected 1, got %s", out)
	}
	if gjson.Get(out, "last_insert_id").Int() != 1 {
		t.Errorf("expected last_insert_id 1, got %s", out)
	}
}

func TestGateway_ReadResult(t *testing.T) {
	db := newTestStore(t, "r.db")
	db.Execute(context.Background(), `INSERT INTO tasks (title) VALUES ('a'), ('b')`)
	g := New(db, Options{})

	out, _ := g.Execute(context.Background(), args(`SELECT id, title FROM tasks WHERE status = ? ORDER BY id`, "open"))
	if gjson.Get(out, "row_count").Int() != 2 {
		t.Fatalf("expected 2 rows, got %s", out)
	}
	if gjson.Get(out, "rows.1.title").String() != "b" {
		t.Errorf("expected second title b, got %s", out)
	}
	if gjson.Get(out, "columns.0").String() != "id" {
		t.Errorf("expected columns in select order, got %s", out)
	}
	if gjson.Get(out, "truncated").Exists() {
		t.Errorf("small result should not be truncated: %s", out)
	}
}

func TestGateway_StoreErrorsBecomeToolResults(t *testing.T) {
	g := New(newTestStore(t, "e.db"), Options{})
	tests := []struct {
		query string
		kind  string
	}{
		{`SELEC * FROM tasks`, "syntax"},
		{`SELECT * FROM projects`, "syntax"},
		{`INSERT INTO tasks (title, status) VALUES ('x', 'blocked')`, "constraint"},
	}
	for _, tt := range tests {
		out, err := g.Execute(context.Background(), args(tt.query))
		if err != nil {
			t.Fatalf("store error should not surface as Go error: %v", err)
		}
		if got := gjson.Get(out, "error.kind").String(); got != tt.kind {
			t.Errorf("%q: expected kind %q, got %q (%s)", tt.query, tt.kind, got, out)
		}
		if gjson.Get(out, "error.message").String() == "" {
			t.Errorf("%q: expected error message, got %s", tt.query, out)
		}
	}
}

func TestGateway_InvalidArguments(t *testing.T) {
	g := New(newTestStore(t, "a.db"), Options{})
	for _, raw := range []string{
		``,
		`not json`,
		`["SELECT 1"]`,
		`{}`,
		`{"query": 42}`,
		`{"query": "   "}`,
		`{"query": "SELECT 1", "params": "x"}`,
	} {
		out, err := g.Execute(context.Background(), raw)
		if err != nil {
			t.Fatalf("unexpected Go error for %q: %v", raw, err)
		}
		if gjson.Get(out, "error.kind").String() != "invalid_arguments" {
			t.Errorf("%q: expected invalid_arguments, got %s", raw, out)
		}
	}
}

func TestGateway_BindValues(t *testing.T) {
	db := newTestStore(t, "b.db")
	g := New(db, Options{})
	ctx := context.Background()

	out, _ := g.Execute(ctx, `{"query": "SELECT ? AS s, ? AS i, ? AS f, ? AS n", "params": ["x", 3, 1.5, null]}`)
	if gjson.Get(out, "rows.0.s").String() != "x" ||
		gjson.Get(out, "rows.0.i").Int() != 3 ||
		gjson.Get(out, "rows.0.f").Float() != 1.5 ||
		gjson.Get(out, "rows.0.n").Type != gjson.Null {
		t.Errorf("unexpected bound values: %s", out)
	}

	out, _ = g.Execute(ctx, `{"query": "SELECT ? AS tags", "params": [["a", "b"]]}`)
	if gjson.Get(out, "rows.0.tags").String() != `["a", "b"]` {
		t.Errorf("expected nested value stored as JSON text, got %s", out)
	}
}

func TestGateway_TruncatesRows(t *testing.T) {
	db := newTestStore(t, "t.db")
	ctx := context.Background()
	for i := 0; i < 120; i++ {
		db.Execute(ctx, `INSERT INTO notes (content) VALUES (?)`, fmt.Sprintf("note %d", i))
	}
	g := New(db, Options{MaxRows: 10})

	out, _ := g.Execute(ctx, args(`SELECT * FROM notes`))
	if gjson.Get(out, "row_count").Int() != 10 {
		t.Errorf("expected 10 rows, got %d", gjson.Get(out, "row_count").Int())
	}
	if !gjson.Get(out, "truncated").Bool() || gjson.Get(out, "total_rows").Int() != 120 {
		t.Errorf("expected truncation markers, got %s", out)
	}
}

func TestGateway_TruncatesBytes(t *testing.T) {
	db := newTestStore(t, "tb.db")
	ctx := context.Background()
	long := strings.Repeat("x", 900)
	for i := 0; i < 40; i++ {
		db.Execute(ctx, `INSERT INTO notes (content) VALUES (?)`, long)
	}
	g := New(db, Options{MaxRows: 100, MaxBytes: 4096})

	out, _ := g.Execute(ctx, args(`SELECT content FROM notes`))
	if len(out) > 4096 {
		t.Errorf("expected result under 4096 bytes, got %d", len(out))
	}
	if !gjson.Get(out, "truncated").Bool() {
		t.Error("expected truncated flag")
	}
	if gjson.Get(out, "row_count").Int() == 0 {
		t.Error("expected some rows to survive truncation")
	}
}

func TestGateway_ClipsLongCells(t *testing.T) {
	db := newTestStore(t, "c.db")
	db.Execute(context.Background(), `INSERT INTO notes (content) VALUES (?)`, strings.Repeat("y", 50))
	g := New(db, Options{MaxCell: 10})

	out, _ := g.Execute(context.Background(), args(`SELECT content FROM notes`))
	if got := gjson.Get(out, "rows.0.content").String(); got != strings.Repeat("y", 10)+"…" {
		t.Errorf("expected clipped cell, got %q", got)
	}
}

func TestGateway_CancelledContext(t *testing.T) {
	g := New(newTestStore(t, "x.db"), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Execute(ctx, args(`SELECT 1`)); err == nil {
		t.Error("expected error for cancelled context")
	}
	out := g.Call(ctx, args(`SELECT 1`))
	if gjson.Get(out, "error.kind").String() != "other" || !strings.Contains(out, "context canceled") {
		t.Errorf("expected cancellation as a tool result, got %s", out)
	}
}

func TestGateway_Definition(t *testing.T) {
	def := New(newTestStore(t, "d.db"), Options{}).Definition()
	if def.Name != "execute_sql" {
		t.Errorf("expected execute_sql, got %s", def.Name)
	}
	b, err := json.Marshal(def.Parameters)
	if err != nil {
		t.Fatalf("parameters not serializable: %v", err)
	}
	if gjson.GetBytes(b, "required.0").String() != "query" {
		t.Errorf("expected query to be required: %s", b)
	}
	if !strings.Contains(def.Description, "CREATE TABLE IF NOT EXISTS tasks") {
		t.Error("expected the schema in the description")
	}
}
