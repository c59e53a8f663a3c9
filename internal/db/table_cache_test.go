package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/regionkeep/regionstore/internal/region"
	"github.com/regionkeep/regionstore/internal/testutil"
)

func TestTableCacheFetchAndFind(t *testing.T) {
	ctx := context.Background()
	d := setupTestDriver(t)
	require.NoError(t, d.Initialize(ctx))
	mustExec(t, d, `INSERT INTO `+d.tables.user+` (id, name) VALUES (41, 'existing')`)

	c := newNameCache(d.dialect, d.tables.user, "user_name")
	_, ok := c.Find("existing")
	assert.False(t, ok, "Find never queries")

	require.NoError(t, c.Fetch(ctx, d.db, []string{"Existing", "newbie", "NEWBIE"}))
	id, ok := c.Find("EXISTING")
	require.True(t, ok)
	assert.Equal(t, int64(41), id)

	newbie, ok := c.Find("newbie")
	require.True(t, ok)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 1, countRows(t, d, d.tables.user, "id = ? AND name = 'newbie'", newbie))
}

func TestTableCacheMatchesStoredNamesOfAnyCase(t *testing.T) {
	ctx := context.Background()
	d := setupTestDriver(t)
	require.NoError(t, d.Initialize(ctx))
	mustExec(t, d, `INSERT INTO `+d.tables.user+` (id, name) VALUES (7, 'Notch')`)

	c := newNameCache(d.dialect, d.tables.user, "user_name")
	if err := c.Fetch(ctx, d.db, []string{"notch"}); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if id, ok := c.Find("NOTCH"); !ok || id != 7 {
		t.Errorf("Find(NOTCH) = %d, %v; want 7, true", id, ok)
	}
	if n := countRows(t, d, d.tables.user, ""); n != 1 {
		t.Errorf("user rows = %d, want 1", n)
	}
}

func TestTableCacheLooksUpInBatches(t *testing.T) {
	ctx := context.Background()
	d := setupTestDriver(t)
	require.NoError(t, d.Initialize(ctx))

	var names []string
	for i := 0; i < 2*MaxInListSize+5; i++ {
		names = append(names, fmt.Sprintf("player%03d", i))
	}
	seed := newNameCache(d.dialect, d.tables.user, "user_name")
	require.NoError(t, seed.Fetch(ctx, d.db, names))

	// A fresh cache must find every stored row without inserting.
	c := newNameCache(d.dialect, d.tables.user, "user_name")
	require.NoError(t, c.Fetch(ctx, d.db, names))
	assert.Equal(t, len(names), countRows(t, d, d.tables.user, ""))
	for _, n := range names {
		want, _ := seed.Find(n)
		got, ok := c.Find(n)
		require.True(t, ok, n)
		assert.Equal(t, want, got, n)
	}
}

func TestUUIDCache(t *testing.T) {
	ctx := context.Background()
	d := setupTestDriver(t)
	require.NoError(t, d.Initialize(ctx))

	c := newUUIDCache(d.dialect, d.tables.user)
	require.NoError(t, c.Fetch(ctx, d.db, []uuid.UUID{testutil.SteveUUID}))
	id, ok := c.Find(testutil.SteveUUID)
	require.True(t, ok)
	assert.Equal(t, 1, countRows(t, d, d.tables.user, "id = ? AND uuid = ? AND name IS NULL", id, testutil.SteveUUID.String()))
}

func TestPrincipalCacheConcurrentFetch(t *testing.T) {
	ctx := context.Background()
	d := setupTestDriver(t)
	require.NoError(t, d.Initialize(ctx))

	dom := region.NewDomain()
	dom.AddPlayer("Alice")
	dom.AddPlayerUUID(testutil.AlexUUID)
	dom.AddGroup("Builders")

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			conn, err := d.Conn(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()
			view := d.principals.Bind(conn)
			if err := view.Fetch(ctx, dom, nil); err != nil {
				return err
			}
			if _, ok := view.UserByName("alice"); !ok {
				return fmt.Errorf("alice not resolved")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 2, countRows(t, d, d.tables.user, ""))
	assert.Equal(t, 1, countRows(t, d, d.tables.group, ""))

	view := d.principals.Bind(d.db)
	_, ok := view.UserByUUID(testutil.AlexUUID)
	assert.True(t, ok)
	_, ok = view.GroupByName("BUILDERS")
	assert.True(t, ok)
}
