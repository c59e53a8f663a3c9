package db

import (
	"context"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"

	"github.com/regionkeep/regionstore/internal/monitoring"
	"github.com/regionkeep/regionstore/internal/region"
	"github.com/regionkeep/regionstore/internal/testutil"
)

// setupTestDriver returns a Driver over a fresh SQLite file that is closed
// when the test ends.
func setupTestDriver(t *testing.T, opts ...DriverOption) *Driver {
	t.Helper()
	return setupTestDriverWithPrefix(t, "", opts...)
}

func setupTestDriverWithPrefix(t *testing.T, prefix string, opts ...DriverOption) *Driver {
	t.Helper()
	monitoring.SetLogger(nil)

	d, err := NewDriver(testutil.SQLiteDataSource(t, prefix), opts...)
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return d
}

// countRows counts the rows of a table matching an optional condition.
func countRows(t *testing.T, d *Driver, table, where string, args ...interface{}) int {
	t.Helper()
	q := `SELECT COUNT(*) FROM ` + table
	if where != "" {
		q += ` WHERE ` + where
	}
	var n int
	if err := d.db.QueryRowContext(context.Background(), d.dialect.rebind(q), args...).Scan(&n); err != nil {
		t.Fatalf("count %s failed: %v", table, err)
	}
	return n
}

func mustExec(t *testing.T, d *Driver, q string, args ...interface{}) {
	t.Helper()
	if _, err := d.db.ExecContext(context.Background(), d.dialect.rebind(q), args...); err != nil {
		t.Fatalf("exec %q failed: %v", q, err)
	}
}

type domainView struct {
	Players []string
	UUIDs   []uuid.UUID
	Groups  []string
}

type regionView struct {
	ID       string
	Kind     region.Kind
	Priority int
	Parent   string
	Flags    map[string]interface{}
	Owners   domainView
	Members  domainView
	Cuboid   *region.Cuboid
	Polygon  *region.Polygon
}

func viewDomain(d *region.Domain) domainView {
	if d == nil {
		return domainView{}
	}
	return domainView{Players: d.Players(), UUIDs: d.UUIDs(), Groups: d.Groups()}
}

// views flattens regions into comparable values ordered by id.
func views(regions []*region.Region) []regionView {
	out := make([]regionView, 0, len(regions))
	for _, r := range regions {
		v := regionView{
			ID:       r.ID,
			Kind:     r.Kind,
			Priority: r.Priority,
			Flags:    r.Flags,
			Owners:   viewDomain(r.Owners),
			Members:  viewDomain(r.Members),
			Cuboid:   r.Cuboid,
			Polygon:  r.Polygon,
		}
		if r.Parent != nil {
			v.Parent = r.Parent.ID
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// regionDiff returns a human readable difference between two region sets.
func regionDiff(want, got []*region.Region) string {
	return cmp.Diff(views(want), views(got), cmpopts.EquateEmpty())
}
