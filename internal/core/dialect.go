package core

import (
	"strconv"
	"strings"
)

// PlaceholderStyle selects how positional parameters are written.
type PlaceholderStyle int

const (
	// PlaceholderQuestion renders every parameter as "?".
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar renders parameters as "$1", "$2", ...
	PlaceholderDollar
)

// Dialect captures the few places where emitted SQL differs between backends.
type Dialect struct {
	Name        string
	Placeholder PlaceholderStyle
	Types       map[Kind]string
}

var (
	// SQLite is the dialect used by the sqlite3 backend.
	SQLite = Dialect{
		Name:        "sqlite",
		Placeholder: PlaceholderQuestion,
		Types: map[Kind]string{
			KindText:      "TEXT",
			KindInt16:     "SMALLINT",
			KindInt32:     "INTEGER",
			KindInt64:     "BIGINT",
			KindFloat32:   "REAL",
			KindFloat64:   "DOUBLE",
			KindBool:      "BOOLEAN",
			KindUUID:      "TEXT",
			KindTimestamp: "TIMESTAMP",
		},
	}

	// PostgreSQL is the dialect used by the pgx backend.
	PostgreSQL = Dialect{
		Name:        "postgresql",
		Placeholder: PlaceholderDollar,
		Types: map[Kind]string{
			KindText:      "TEXT",
			KindInt16:     "SMALLINT",
			KindInt32:     "INTEGER",
			KindInt64:     "BIGINT",
			KindFloat32:   "REAL",
			KindFloat64:   "DOUBLE PRECISION",
			KindBool:      "BOOLEAN",
			KindUUID:      "TEXT",
			KindTimestamp: "TIMESTAMP",
		},
	}

	// MySQL is the dialect used by the go-sql-driver backend. Text keys need
	// a bounded length, hence VARCHAR.
	MySQL = Dialect{
		Name:        "mysql",
		Placeholder: PlaceholderQuestion,
		Types: map[Kind]string{
			KindText:      "VARCHAR(255)",
			KindInt16:     "SMALLINT",
			KindInt32:     "INT",
			KindInt64:     "BIGINT",
			KindFloat32:   "FLOAT",
			KindFloat64:   "DOUBLE",
			KindBool:      "BOOLEAN",
			KindUUID:      "CHAR(36)",
			KindTimestamp: "DATETIME(6)",
		},
	}
)

// DialectByName returns the dialect registered under name.
func DialectByName(name string) (Dialect, bool) {
	switch strings.ToLower(name) {
	case SQLite.Name, "sqlite3":
		return SQLite, true
	case PostgreSQL.Name, "postgres":
		return PostgreSQL, true
	case MySQL.Name:
		return MySQL, true
	}
	return Dialect{}, false
}

// TypeName returns the column type for kind.
func (d Dialect) TypeName(kind Kind) (string, bool) {
	name, ok := d.Types[kind]
	return name, ok
}

// Rebind rewrites "?" placeholders into the dialect's style.
func (d Dialect) Rebind(query string) string {
	if d.Placeholder != PlaceholderDollar || !strings.Contains(query, "?") {
		return query
	}

	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '\'' {
			inQuote = !inQuote
		}
		if c == '?' && !inQuote {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}
