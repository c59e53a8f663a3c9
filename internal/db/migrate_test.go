package db

import (
	"context"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regionkeep/regionstore/internal/region"
)

// applyRawMigration runs an embedded migration file directly, bypassing the
// migration tracker, to recreate databases built by older releases.
func applyRawMigration(t *testing.T, d *Driver, name string) {
	t.Helper()
	f, err := prefixedFS{fsys: migrationsFS, prefix: d.tables.prefix}.Open("migrations/" + d.dialect.name + "/" + name)
	require.NoError(t, err)
	defer f.Close()
	sqlText, err := io.ReadAll(f)
	require.NoError(t, err)
	mustExec(t, d, string(sqlText))
}

func TestInitializeFreshDatabase(t *testing.T) {
	ctx := context.Background()
	d := setupTestDriver(t)

	require.NoError(t, d.Initialize(ctx))
	require.NoError(t, d.Initialize(ctx), "second call is a no-op")

	status, err := d.MigrationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, MigrationStatus{
		CurrentVersion:  versionNameNoCase,
		LatestVersion:   versionNameNoCase,
		MigrationsTable: true,
		RegionTables:    true,
	}, status)
	assert.False(t, status.Pending())

	hasUUID, err := d.columnExists(ctx, d.tables.raw("user"), "uuid")
	require.NoError(t, err)
	assert.True(t, hasUUID)
}

func TestMigrationStatusBeforeInitialize(t *testing.T) {
	d := setupTestDriver(t)

	status, err := d.MigrationStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint(0), status.CurrentVersion)
	assert.False(t, status.RegionTables)
	assert.True(t, status.Pending())
}

func TestInitializeBaselinesUnversionedTables(t *testing.T) {
	tests := []struct {
		name  string
		files []string
	}{
		{"before user uuids", []string{"000001_initial.up.sql"}},
		{"with user uuids", []string{"000001_initial.up.sql", "000002_user_uuid.up.sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			d := setupTestDriver(t)
			for _, f := range tt.files {
				applyRawMigration(t, d, f)
			}
			mustExec(t, d, `INSERT INTO `+d.tables.world+` (name) VALUES ('legacy')`)

			require.NoError(t, d.Initialize(ctx))

			status, err := d.MigrationStatus(ctx)
			require.NoError(t, err)
			assert.Equal(t, versionNameNoCase, status.CurrentVersion)
			assert.False(t, status.Dirty)

			hasUUID, err := d.columnExists(ctx, d.tables.raw("user"), "uuid")
			require.NoError(t, err)
			assert.True(t, hasUUID)
			assert.Equal(t, 1, countRows(t, d, d.tables.world, "name = 'legacy'"), "existing data kept")
		})
	}
}

func TestInitializeFoldsPrincipalNameCase(t *testing.T) {
	ctx := context.Background()
	d := setupTestDriver(t)
	applyRawMigration(t, d, "000001_initial.up.sql")
	applyRawMigration(t, d, "000002_user_uuid.up.sql")

	tb := d.tables
	mustExec(t, d, `INSERT INTO `+tb.world+` (id, name) VALUES (1, 'legacy')`)
	mustExec(t, d, `INSERT INTO `+tb.region+` (id, world_id, type, priority) VALUES ('spawn', 1, 'global', 0), ('farm', 1, 'global', 0)`)
	mustExec(t, d, `INSERT INTO `+tb.user+` (id, name) VALUES (1, 'Notch'), (2, 'notch'), (3, 'NOTCH')`)
	mustExec(t, d, `INSERT INTO `+tb.group+` (id, name) VALUES (1, 'Admins'), (2, 'admins')`)
	mustExec(t, d, `INSERT INTO `+tb.players+` (region_id, world_id, user_id, owner) VALUES
		('spawn', 1, 1, ?), ('spawn', 1, 2, ?), ('farm', 1, 2, ?), ('farm', 1, 3, ?)`, true, true, false, false)
	mustExec(t, d, `INSERT INTO `+tb.groups+` (region_id, world_id, group_id, owner) VALUES ('farm', 1, 2, ?)`, true)

	require.NoError(t, d.Initialize(ctx))

	if n := countRows(t, d, tb.user, "lower(name) = 'notch'"); n != 1 {
		t.Fatalf("user rows for notch = %d, want 1", n)
	}
	assert.Equal(t, 1, countRows(t, d, tb.players, "region_id = 'spawn' AND user_id = 1"))
	assert.Equal(t, 1, countRows(t, d, tb.players, "region_id = 'farm' AND user_id = 1"))
	assert.Equal(t, 2, countRows(t, d, tb.players, ""))
	assert.Equal(t, 1, countRows(t, d, tb.group, ""))
	assert.Equal(t, 1, countRows(t, d, tb.groups, "group_id = 1"))

	// Saving a region owned by any casing of the name reuses the stored row.
	world := d.Get("legacy")
	r := region.NewGlobal("spawn")
	r.Owners.AddPlayer("Notch")
	r.Owners.AddGroup("ADMINS")
	require.NoError(t, world.SaveAll(ctx, []*region.Region{r}))
	assert.Equal(t, 1, countRows(t, d, tb.user, ""))
	assert.Equal(t, 1, countRows(t, d, tb.group, ""))

	_, err := d.db.ExecContext(ctx, `INSERT INTO `+tb.user+` (name) VALUES ('nOtCh')`)
	assert.Error(t, err, "names differing only in case are rejected")
}

func TestInitializeRejectsTablesTooOld(t *testing.T) {
	ctx := context.Background()
	d := setupTestDriver(t)
	mustExec(t, d, `CREATE TABLE `+d.tables.cuboid+` (region_id TEXT, min_x INTEGER)`)

	err := d.Initialize(ctx)
	var me *MigrationError
	require.True(t, errors.As(err, &me), "got %v", err)
	assert.Contains(t, err.Error(), "too old")

	_, err = d.Get("overworld").LoadAll(ctx)
	require.True(t, errors.As(err, &me), "loads are refused: %v", err)
	err = d.Get("overworld").SaveAll(ctx, []*region.Region{region.NewGlobal("g")})
	require.True(t, errors.As(err, &me), "saves are refused: %v", err)

	// A failed migration is retried on the next call.
	mustExec(t, d, `DROP TABLE `+d.tables.cuboid)
	require.NoError(t, d.Initialize(ctx))
}

func TestTablePrefix(t *testing.T) {
	ctx := context.Background()
	d := setupTestDriverWithPrefix(t, "wg_")

	require.NoError(t, d.Get("overworld").SaveAll(ctx, []*region.Region{region.NewGlobal("g")}))

	for _, table := range []string{"wg_region", "wg_user", "wg_group", "wg_migrations"} {
		ok, err := d.tableExists(ctx, table)
		require.NoError(t, err)
		assert.True(t, ok, table)
	}
	ok, err := d.tableExists(ctx, "region")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPrefixedFS(t *testing.T) {
	f, err := prefixedFS{fsys: migrationsFS, prefix: "wg_"}.Open("migrations/sqlite/000002_user_uuid.up.sql")
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"wg_user"`)
	assert.NotContains(t, string(data), tablePrefixPlaceholder)

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), info.Size())
}

func TestLatestMigrationVersion(t *testing.T) {
	for _, dia := range []dialect{sqliteDialect, postgresDialect} {
		v, err := latestMigrationVersion(dia)
		require.NoError(t, err)
		if v != versionNameNoCase {
			t.Errorf("%s: latest version = %d, want %d", dia.name, v, versionNameNoCase)
		}
	}
}
