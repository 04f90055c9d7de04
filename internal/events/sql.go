package events

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// Queryer is satisfied by *sql.DB.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// filter accumulates WHERE conditions. Each condition holds one %s for its
// placeholder; numbered placeholders ($1, $2, ...) are used for Postgres.
type filter struct {
	numbered bool
	conds    []string
	args     []any
}

func (f *filter) add(cond string, arg any) {
	f.args = append(f.args, arg)
	f.conds = append(f.conds, fmt.Sprintf(cond, f.placeholder(len(f.args))))
}

// in adds "column IN (...)" for values.
func (f *filter) in(column string, values []string) {
	ph := make([]string, len(values))
	for i, v := range values {
		f.args = append(f.args, v)
		ph[i] = f.placeholder(len(f.args))
	}
	f.conds = append(f.conds, fmt.Sprintf("%s IN (%s)", column, strings.Join(ph, ", ")))
}

// raw adds a condition without arguments.
func (f *filter) raw(cond string) {
	f.conds = append(f.conds, cond)
}

func (f *filter) placeholder(n int) string {
	if f.numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (f *filter) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conds, " AND ")
}

// scanCounts reads (key, count) rows into a map. Empty keys are skipped.
func scanCounts(rows *sql.Rows) (map[string]int64, error) {
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key sql.NullString
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrMalformed, err)
		}
		if !key.Valid || key.String == "" {
			continue
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: negative count for %q", ErrMalformed, key.String)
		}
		counts[key.String] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return counts, nil
}
