package database

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"photo-indexer/internal/errdefs"
)

// Condition is one search predicate. Logic joins it to the conditions
// before it ("AND" or "OR"); it is ignored on the first condition.
// Conditions combine strictly left to right: a OR b AND c means (a OR b) AND c.
type Condition struct {
	Logic    string `json:"logic"`
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

type fieldKind int

const (
	kindText fieldKind = iota
	kindTime
	kindInt
)

type searchField struct {
	expr string
	kind fieldKind
}

var searchFields = map[string]searchField{
	"file_path":  {expr: "path", kind: kindText},
	"created_at": {expr: "file_created_at", kind: kindTime},
	"world":      {expr: "json_extract(metadata_json, '$.world.name')", kind: kindText},
	"format":     {expr: "format", kind: kindText},
	"width":      {expr: "width", kind: kindInt},
	"height":     {expr: "height", kind: kindInt},
	"size":       {expr: "size", kind: kindInt},
}

var searchOperators = map[string]string{
	"EQ":   "=",
	"NE":   "!=",
	"GT":   ">",
	"GE":   ">=",
	"LT":   "<",
	"LE":   "<=",
	"LIKE": "LIKE",
}

// metadataKeyPattern restricts metadata.<key> lookups to dotted segments of
// tag-like names (letters, digits, '_', '-', ':').
var metadataKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_:\-]+(\.[A-Za-z0-9_:\-]+)*$`)

var searchTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Search returns the records matching every condition, newest first.
// An empty list matches everything. Conditions with an empty value are
// treated as absent. Unknown fields, operators or logic, and values that do
// not fit the field's type, fail with errdefs.ErrInvalidQuery before any
// query runs.
func (d *Database) Search(ctx context.Context, conds []Condition) (images []Image, err error) {
	done := observeQuery("search")
	defer func() { done(err) }()

	where, args, err := buildSearch(conds)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + imageColumns + " FROM images"
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY file_created_at DESC, path ASC"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("search", err)
	}
	defer rows.Close()

	images = []Image{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, storeErr("search", err)
		}
		images = append(images, *img)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("search", err)
	}
	return images, nil
}

// ValidateConditions checks conditions without querying.
func ValidateConditions(conds []Condition) error {
	_, _, err := buildSearch(conds)
	return err
}

func buildSearch(conds []Condition) (string, []any, error) {
	var where string
	var args []any

	for i, c := range conds {
		logic := strings.ToUpper(strings.TrimSpace(c.Logic))
		switch logic {
		case "", "AND", "OR":
		default:
			return "", nil, fmt.Errorf("condition %d: logic %q: %w", i, c.Logic, errdefs.ErrInvalidQuery)
		}
		if logic == "" {
			logic = "AND"
		}

		clause, clauseArgs, err := buildCondition(i, c)
		if err != nil {
			return "", nil, err
		}
		if clause == "" {
			continue
		}

		if where == "" {
			where = clause
		} else {
			where = "(" + where + ") " + logic + " " + clause
		}
		args = append(args, clauseArgs...)
	}

	return where, args, nil
}

func buildCondition(i int, c Condition) (string, []any, error) {
	opName := strings.ToUpper(strings.TrimSpace(c.Operator))
	op, ok := searchOperators[opName]
	if !ok {
		return "", nil, fmt.Errorf("condition %d: operator %q: %w", i, c.Operator, errdefs.ErrInvalidQuery)
	}

	field := strings.TrimSpace(c.Field)
	var expr, metaPath string
	kind := kindText
	isPlayer := false

	switch {
	case field == "player":
		isPlayer = true
	case strings.HasPrefix(field, "metadata."):
		key := strings.TrimPrefix(field, "metadata.")
		if !metadataKeyPattern.MatchString(key) {
			return "", nil, fmt.Errorf("condition %d: metadata key %q: %w", i, key, errdefs.ErrInvalidQuery)
		}
		metaPath = jsonPath(key)
		expr = "json_extract(metadata_json, '" + metaPath + "')"
	default:
		f, ok := searchFields[field]
		if !ok {
			return "", nil, fmt.Errorf("condition %d: field %q: %w", i, c.Field, errdefs.ErrInvalidQuery)
		}
		expr, kind = f.expr, f.kind
	}

	value := strings.TrimSpace(c.Value)
	if value == "" {
		return "", nil, nil
	}

	placeholder := "?"
	var args []any
	switch {
	case opName == "LIKE":
		if kind == kindInt {
			return "", nil, fmt.Errorf("condition %d: LIKE on numeric field %q: %w", i, field, errdefs.ErrInvalidQuery)
		}
		placeholder = "? ESCAPE '\\'"
		args = []any{"%" + escapeLike(value) + "%"}
	case kind == kindInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return "", nil, fmt.Errorf("condition %d: %q is not an integer: %w", i, value, errdefs.ErrInvalidQuery)
		}
		args = []any{n}
	case kind == kindTime:
		t, ok := normalizeSearchTime(value)
		if !ok {
			return "", nil, fmt.Errorf("condition %d: %q is not a timestamp: %w", i, value, errdefs.ErrInvalidQuery)
		}
		args = []any{t}
	case metaPath != "":
		// JSON numbers only compare equal to numeric parameters, JSON strings
		// only to text ones, so pick the binding by the stored type.
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			placeholder = "(CASE WHEN json_type(metadata_json, '" + metaPath + "') IN ('integer', 'real') THEN ? ELSE ? END)"
			args = []any{f, value}
		} else {
			args = []any{value}
		}
	default:
		args = []any{value}
	}

	if isPlayer {
		return "EXISTS (SELECT 1 FROM json_each(metadata_json, '$.players') AS p " +
			"WHERE json_extract(p.value, '$.displayName') " + op + " " + placeholder + ")", args, nil
	}
	return expr + " " + op + " " + placeholder, args, nil
}

// normalizeSearchTime renders a user timestamp in the stored layout. Date-only
// values keep the date form, which sorts before every time on that day.
func normalizeSearchTime(v string) (string, bool) {
	for _, layout := range searchTimeLayouts {
		t, err := time.Parse(layout, v)
		if err != nil {
			continue
		}
		if layout == "2006-01-02" {
			return t.Format("2006-01-02"), true
		}
		return FormatFileTime(t), true
	}
	return "", false
}

func jsonPath(dotted string) string {
	parts := strings.Split(dotted, ".")
	var b strings.Builder
	b.WriteString("$")
	for _, p := range parts {
		b.WriteString(`."`)
		b.WriteString(p)
		b.WriteString(`"`)
	}
	return b.String()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
