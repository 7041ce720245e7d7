package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/risor-io/risor/object"

	"github.com/jward/lucid/internal/store"
)

// makeRunsFn creates the "runs" host function.
//
// runs() → every saved run, newest first
// runs(limit) → at most limit runs
func makeRunsFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("runs", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) > 1 {
			return object.Errorf("runs: expected 0 or 1 arguments, got %d", len(args))
		}
		limit := 0
		if len(args) == 1 {
			n, err := toInt64(args[0])
			if err != nil {
				return object.Errorf("runs: %v", err)
			}
			limit = int(n)
		}
		runs, err := s.Runs(limit)
		if err != nil {
			return object.Errorf("runs: %v", err)
		}
		out := make([]object.Object, 0, len(runs))
		for _, r := range runs {
			out = append(out, object.NewMap(map[string]object.Object{
				"id":               object.NewString(r.ID),
				"root":             object.NewString(r.Root),
				"entry_file":       object.NewString(r.EntryFile),
				"entry_point":      object.NewString(r.EntryPoint),
				"policy":           object.NewString(r.Policy),
				"started_at":       object.NewString(r.StartedAt.Format(time.RFC3339)),
				"duration_ms":      object.NewInt(r.Duration.Milliseconds()),
				"module_count":     object.NewInt(int64(r.ModuleCount)),
				"definition_count": object.NewInt(int64(r.DefinitionCount)),
				"tree_hash":        object.NewString(r.TreeHash),
			}))
		}
		return object.NewList(out)
	})
}

// makeDBQueryFn creates the "db_query" host function.
//
// db_query(sql, args...) → [{column: value}]; only SELECT is allowed
func makeDBQueryFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("db_query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 {
			return object.Errorf("db_query: expected at least 1 argument (sql), got %d", len(args))
		}
		sqlStr, err := toString(args[0])
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}

		// Only allow SELECT statements.
		trimmed := strings.TrimSpace(strings.ToUpper(sqlStr))
		if !strings.HasPrefix(trimmed, "SELECT") {
			return object.Errorf("db_query: only SELECT queries are allowed")
		}

		var queryArgs []any
		for _, arg := range args[1:] {
			switch v := arg.(type) {
			case *object.Int:
				queryArgs = append(queryArgs, v.Value())
			case *object.Float:
				queryArgs = append(queryArgs, v.Value())
			case *object.String:
				queryArgs = append(queryArgs, v.Value())
			case *object.Bool:
				queryArgs = append(queryArgs, v.Value())
			case *object.NilType:
				queryArgs = append(queryArgs, nil)
			default:
				queryArgs = append(queryArgs, fmt.Sprintf("%v", arg))
			}
		}

		rows, queryErr := s.DB().QueryContext(ctx, sqlStr, queryArgs...)
		if queryErr != nil {
			return object.Errorf("db_query: %v", queryErr)
		}
		defer rows.Close()

		cols, colErr := rows.Columns()
		if colErr != nil {
			return object.Errorf("db_query: columns: %v", colErr)
		}

		var results []object.Object
		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return object.Errorf("db_query: scan: %v", err)
			}
			row := make(map[string]object.Object, len(cols))
			for i, col := range cols {
				row[col] = sqlValueToObject(values[i])
			}
			results = append(results, object.NewMap(row))
		}
		if err := rows.Err(); err != nil {
			return object.Errorf("db_query: rows: %v", err)
		}
		if results == nil {
			results = []object.Object{}
		}
		return object.NewList(results)
	})
}

// sqlValueToObject converts a database value to a Risor object.
func sqlValueToObject(v any) object.Object {
	if v == nil {
		return object.Nil
	}
	switch val := v.(type) {
	case int64:
		return object.NewInt(val)
	case float64:
		return object.NewFloat(val)
	case string:
		return object.NewString(val)
	case bool:
		return object.NewBool(val)
	case []byte:
		return object.NewString(string(val))
	case time.Time:
		return object.NewString(val.Format(time.RFC3339))
	default:
		return object.NewString(fmt.Sprintf("%v", val))
	}
}
