// Package gateway exposes the store to the model as a single execute_sql tool.
//
// Statements are forwarded verbatim. There is no allow-list and no query
// shape check: the model knows the schema and adapts to it. Failures come back
// as JSON tool results so the model can correct itself on the next turn.
package gateway

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/vthunder/lifeos/internal/logging"
	"github.com/vthunder/lifeos/internal/store"
	"github.com/vthunder/lifeos/internal/types"
)

// ToolName is the only tool the model is offered
const ToolName = "execute_sql"

const (
	DefaultMaxRows  = 50
	DefaultMaxBytes = 16 * 1024
	DefaultMaxCell  = 2000
	maxErrorMessage = 500
)

// Executor runs one statement. *store.DB implements it.
type Executor interface {
	Execute(ctx context.Context, statement string, args ...any) (*store.Result, error)
}

// Options bounds what is returned to the model
type Options struct {
	MaxRows  int // rows kept from a read result
	MaxBytes int // size of the encoded result
	MaxCell  int // runes kept per text value
	Schema   string
}

// Gateway executes execute_sql tool calls
type Gateway struct {
	exec Executor
	opts Options
}

// New creates a gateway over exec. Zero options take the defaults.
func New(exec Executor, opts Options) *Gateway {
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.MaxCell <= 0 {
		opts.MaxCell = DefaultMaxCell
	}
	if opts.Schema == "" {
		opts.Schema = store.Schema
	}
	return &Gateway{exec: exec, opts: opts}
}

// Definition returns the tool schema sent to the model
func (g *Gateway) Definition() types.ToolDefinition {
	return types.ToolDefinition{
		Name: ToolName,
		Description: "Execute one SQLite statement against the personal database (tasks, reminders, notes). " +
			"Reads return rows, writes return rows_affected. Errors come back as {\"error\":{\"kind\",\"message\"}}; fix the statement and retry.\n\n" +
			"Schema:\n" + g.opts.Schema,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "A single SQLite statement. Use ? placeholders with params for user-supplied text.",
				},
				"params": map[string]any{
					"type":        "array",
					"description": "Optional positional values bound to ? placeholders, in order.",
					"items":       map[string]any{"type": []string{"string", "number", "boolean", "null"}},
				},
			},
			"required":             []string{"query"},
			"additionalProperties": false,
		},
	}
}

// Schema returns the schema text to include in the model instructions
func (g *Gateway) Schema() string {
	return g.opts.Schema
}

// Execute runs one tool call. arguments is the JSON object the model sent.
// The returned string is always a JSON tool result; the error is non-nil only
// when ctx was cancelled, which ends the turn.
func (g *Gateway) Execute(ctx context.Context, arguments string) (string, error) {
	query, params, err := decodeArguments(arguments)
	if err != nil {
		return errorResult(store.KindArguments, err.Error()), nil
	}

	logging.Info("gateway", "Executing SQL: %s", logging.Truncate(query, 200))

	res, err := g.exec.Execute(ctx, query, params...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return g.failure(err), nil
	}

	out := g.encode(res)
	logging.Debug("gateway", "SQL result: %s", logging.Truncate(out, 300))
	return out, nil
}

// Call is Execute for callers that only want the tool result. A cancelled
// context is reported as an error result.
func (g *Gateway) Call(ctx context.Context, arguments string) string {
	out, err := g.Execute(ctx, arguments)
	if err != nil {
		return errorResult(store.KindOther, err.Error())
	}
	return out
}

func (g *Gateway) failure(err error) string {
	var se *store.Error
	if errors.As(err, &se) {
		logging.Info("gateway", "Statement failed (%s): %v", se.Kind, se.Err)
		return errorResult(se.Kind, se.Err.Error())
	}
	if errors.Is(err, store.ErrEmptyStatement) {
		return errorResult(store.KindArguments, "query is empty")
	}
	logging.Warn("gateway", "Statement failed: %v", err)
	return errorResult(store.KindOther, err.Error())
}

func decodeArguments(arguments string) (string, []any, error) {
	if strings.TrimSpace(arguments) == "" || !gjson.Valid(arguments) {
		return "", nil, errors.New("arguments must be a JSON object")
	}
	parsed := gjson.Parse(arguments)
	if !parsed.IsObject() {
		return "", nil, errors.New("arguments must be a JSON object")
	}

	q := parsed.Get("query")
	if q.Type != gjson.String || strings.TrimSpace(q.String()) == "" {
		return "", nil, errors.New("query (string) is required")
	}

	var params []any
	p := parsed.Get("params")
	switch {
	case !p.Exists(), p.Type == gjson.Null:
	case p.IsArray():
		for _, v := range p.Array() {
			params = append(params, bindValue(v))
		}
	default:
		return "", nil, errors.New("params must be an array")
	}
	return q.String(), params, nil
}

func bindValue(v gjson.Result) any {
	switch v.Type {
	case gjson.Null:
		return nil
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.Number:
		if f := v.Float(); f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return v.Int()
		}
		return v.Float()
	case gjson.String:
		return v.String()
	default:
		// nested objects and arrays are stored as their JSON text
		return v.Raw
	}
}

func (g *Gateway) encode(res *store.Result) string {
	if !res.ReturnsRows {
		out, _ := sjson.Set(`{}`, "rows_affected", res.RowsAffected)
		if res.LastInsertID > 0 {
			out, _ = sjson.Set(out, "last_insert_id", res.LastInsertID)
		}
		return out
	}

	total := len(res.Rows)
	rows := res.Rows
	if len(rows) > g.opts.MaxRows {
		rows = rows[:g.opts.MaxRows]
	}
	rows = g.clipCells(rows)

	out := g.rowsResult(res.Columns, rows, total)
	for len(out) > g.opts.MaxBytes && len(rows) > 0 {
		// drop from the end until the payload fits
		drop := len(rows) / 4
		if drop < 1 {
			drop = 1
		}
		rows = rows[:len(rows)-drop]
		out = g.rowsResult(res.Columns, rows, total)
	}
	return out
}

func (g *Gateway) rowsResult(columns []string, rows []map[string]any, total int) string {
	out, _ := sjson.Set(`{}`, "columns", columns)
	out, _ = sjson.Set(out, "rows", rows)
	out, _ = sjson.Set(out, "row_count", len(rows))
	if len(rows) < total {
		out, _ = sjson.Set(out, "truncated", true)
		out, _ = sjson.Set(out, "total_rows", total)
	}
	return out
}

func (g *Gateway) clipCells(rows []map[string]any) []map[string]any {
	clipped := make([]map[string]any, len(rows))
	for i, row := range rows {
		c := make(map[string]any, len(row))
		for k, v := range row {
			if s, ok := v.(string); ok {
				if r := []rune(s); len(r) > g.opts.MaxCell {
					v = string(r[:g.opts.MaxCell]) + "…"
				}
			}
			c[k] = v
		}
		clipped[i] = c
	}
	return clipped
}

func errorResult(kind store.ErrorKind, message string) string {
	if r := []rune(message); len(r) > maxErrorMessage {
		message = string(r[:maxErrorMessage]) + "…"
	}
	out, _ := sjson.Set(`{}`, "error.kind", string(kind))
	out, _ = sjson.Set(out, "error.message", message)
	return out
}
