package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebind(t *testing.T) {
	q := `SELECT id FROM t WHERE a = ? AND b IN (?, ?)`
	tests := []struct {
		dialect dialect
		want    string
	}{
		{sqliteDialect, q},
		{postgresDialect, `SELECT id FROM t WHERE a = $1 AND b IN ($2, $3)`},
	}
	for _, tt := range tests {
		if got := tt.dialect.rebind(q); got != tt.want {
			t.Errorf("%s: rebind = %q, want %q", tt.dialect.name, got, tt.want)
		}
	}
}

func TestPlaceholders(t *testing.T) {
	for n, want := range []string{"", "?", "?, ?", "?, ?, ?"} {
		if got := placeholders(n); got != want {
			t.Errorf("placeholders(%d) = %q, want %q", n, got, want)
		}
	}
	if got := valuesList(2, 2); got != "(?, ?), (?, ?)" {
		t.Errorf("valuesList(2, 2) = %q", got)
	}
}

func TestPartition(t *testing.T) {
	assert.Empty(t, partition(0, 100))
	assert.Equal(t, [][2]int{{0, 100}}, partition(100, 100))
	assert.Equal(t, [][2]int{{0, 100}, {100, 101}}, partition(101, 100))
}

func TestTables(t *testing.T) {
	tb := newTables("wg_")
	assert.Equal(t, `"wg_user"`, tb.user)
	assert.Equal(t, `"wg_group"`, tb.group)
	assert.Equal(t, `"wg_region_poly2d_point"`, tb.poly2dPoint)
	assert.Equal(t, "wg_region", tb.raw("region"))
	assert.Equal(t, "wg_migrations", tb.migrations())
}

func TestWithSQLitePragmas(t *testing.T) {
	assert.Equal(t, "r.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		withSQLitePragmas("r.db"))
	assert.Equal(t, "file:r.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		withSQLitePragmas("file:r.db?mode=rwc"))
	assert.Equal(t, "r.db?_pragma=foreign_keys(0)", withSQLitePragmas("r.db?_pragma=foreign_keys(0)"))
}
