package db

import (
	"strconv"
	"strings"

	"github.com/regionkeep/regionstore/internal/config"
)

// dialect captures the SQL differences between the supported databases.
// Queries are written with '?' placeholders and rebound for dialects that
// use numbered parameters.
type dialect struct {
	name       string // config.Dialect* value
	driverName string // database/sql driver name
	numbered   bool   // $1, $2 ... placeholders
}

var (
	sqliteDialect   = dialect{name: config.DialectSQLite, driverName: "sqlite"}
	postgresDialect = dialect{name: config.DialectPostgres, driverName: "postgres", numbered: true}
)

func dialectFor(name string) (dialect, bool) {
	switch name {
	case config.DialectSQLite:
		return sqliteDialect, true
	case config.DialectPostgres:
		return postgresDialect, true
	}
	return dialect{}, false
}

// rebind rewrites '?' placeholders for the dialect. Queries never contain
// literal question marks.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// valuesList returns rows groups of "(?, ?, ...)" with cols markers each.
func valuesList(rows, cols int) string {
	group := "(" + placeholders(cols) + ")"
	parts := make([]string, rows)
	for i := range parts {
		parts[i] = group
	}
	return strings.Join(parts, ", ")
}

// tables holds the quoted, prefixed table names of one data source. The
// user and group tables collide with SQL keywords, so every name is quoted.
type tables struct {
	prefix string

	world       string
	region      string
	cuboid      string
	poly2d      string
	poly2dPoint string
	flag        string
	players     string
	groups      string
	user        string
	group       string
}

func newTables(prefix string) tables {
	q := func(name string) string { return `"` + prefix + name + `"` }
	return tables{
		prefix:      prefix,
		world:       q("world"),
		region:      q("region"),
		cuboid:      q("region_cuboid"),
		poly2d:      q("region_poly2d"),
		poly2dPoint: q("region_poly2d_point"),
		flag:        q("region_flag"),
		players:     q("region_players"),
		groups:      q("region_groups"),
		user:        q("user"),
		group:       q("group"),
	}
}

// raw returns the unquoted name of a table for catalog lookups.
func (t tables) raw(name string) string {
	return t.prefix + name
}

func (t tables) migrations() string {
	return t.prefix + "migrations"
}

// partition splits n items into consecutive [start, end) windows of at most
// size items.
func partition(n, size int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}
