package db

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"path"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/regionkeep/regionstore/internal/monitoring"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// tablePrefixPlaceholder is replaced in every migration file by the
// configured table prefix.
const tablePrefixPlaceholder = "${tablePrefix}"

// Schema versions. The first two are baselines for unversioned tables.
const (
	versionInitial    uint = 1 // per-world schema without user UUIDs
	versionUserUUID   uint = 2 // adds user.uuid
	versionNameNoCase uint = 3 // case-insensitive principal names
)

// MigrationStatus summarizes the schema state of a data source.
type MigrationStatus struct {
	CurrentVersion  uint
	Dirty           bool
	LatestVersion   uint
	MigrationsTable bool
	RegionTables    bool
}

// Pending reports whether migrations remain to be applied.
func (s MigrationStatus) Pending() bool {
	return s.Dirty || s.CurrentVersion < s.LatestVersion
}

// migrate brings the schema up to date. It inspects the catalog first so
// that databases created before versioned migrations were introduced are
// baselined rather than re-created.
func (d *Driver) migrate(ctx context.Context) error {
	tablesExist, err := d.tableExists(ctx, d.tables.raw("region_cuboid"))
	if err != nil {
		return errors.WithMessage(err, "detecting region tables")
	}
	hasMigrations, err := d.tableExists(ctx, d.tables.migrations())
	if err != nil {
		return errors.WithMessage(err, "detecting migrations table")
	}

	var baseline uint
	if tablesExist {
		recent, err := d.columnExists(ctx, d.tables.raw("region_cuboid"), "world_id")
		if err != nil {
			return errors.WithMessage(err, "detecting per-world geometry")
		}
		if !recent {
			return errors.New("the region tables are too old to migrate; " +
				"upgrade them with an older release first")
		}
		if !hasMigrations {
			hasUUID, err := d.columnExists(ctx, d.tables.raw("user"), "uuid")
			if err != nil {
				return errors.WithMessage(err, "detecting user uuid column")
			}
			baseline = versionInitial
			if hasUUID {
				baseline = versionUserUUID
			}
		}
	}

	m, closeFn, err := d.newMigrate()
	if err != nil {
		return err
	}
	defer closeFn()

	if baseline > 0 {
		monitoring.Log.WithField("version", baseline).Info("baselining existing region tables")
		if err := m.Force(int(baseline)); err != nil {
			return errors.Wrapf(err, "baseline at version %d failed", baseline)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migration up failed")
	}
	return nil
}

// MigrationStatus reports the current and latest schema versions without
// applying anything.
func (d *Driver) MigrationStatus(ctx context.Context) (MigrationStatus, error) {
	var status MigrationStatus
	latest, err := latestMigrationVersion(d.dialect)
	if err != nil {
		return status, err
	}
	status.LatestVersion = latest

	if status.RegionTables, err = d.tableExists(ctx, d.tables.raw("region_cuboid")); err != nil {
		return status, storageErr("migration status", err)
	}
	if status.MigrationsTable, err = d.tableExists(ctx, d.tables.migrations()); err != nil {
		return status, storageErr("migration status", err)
	}
	if !status.MigrationsTable {
		return status, nil
	}

	row := d.db.QueryRowContext(ctx, `SELECT version, dirty FROM "`+d.tables.migrations()+`" LIMIT 1`)
	var version int64
	switch err := row.Scan(&version, &status.Dirty); {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return status, storageErr("migration status", err)
	case version > 0:
		status.CurrentVersion = uint(version)
	}
	return status, nil
}

// newMigrate opens a dedicated handle for golang-migrate. Closing a migrate
// instance closes the database it was given, so it must never share the
// driver's pool.
func (d *Driver) newMigrate() (*migrate.Migrate, func(), error) {
	src, err := iofs.New(prefixedFS{fsys: migrationsFS, prefix: d.tables.prefix}, path.Join("migrations", d.dialect.name))
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open embedded migrations")
	}

	conn, err := d.openDB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open migration connection")
	}

	var instance database.Driver
	switch d.dialect.name {
	case sqliteDialect.name:
		instance, err = sqlite.WithInstance(conn, &sqlite.Config{MigrationsTable: d.tables.migrations()})
	case postgresDialect.name:
		instance, err = postgres.WithInstance(conn, &postgres.Config{MigrationsTable: d.tables.migrations()})
	default:
		err = errors.Errorf("no migration driver for dialect %q", d.dialect.name)
	}
	if err != nil {
		conn.Close()
		return nil, nil, errors.Wrapf(err, "failed to create %s migration driver", d.dialect.name)
	}

	m, err := migrate.NewWithInstance("iofs", src, d.dialect.name, instance)
	if err != nil {
		instance.Close()
		return nil, nil, errors.Wrap(err, "failed to create migrate instance")
	}
	m.Log = migrateLogger{}

	return m, func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			monitoring.Log.WithFields(log.Fields{"source": srcErr, "database": dbErr}).
				Warn("closing migrator")
		}
	}, nil
}

// migrateLogger implements migrate.Logger on top of the package logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Log.WithField("component", "migrate").Infof(format, v...)
}

func (migrateLogger) Verbose() bool {
	return false
}

// latestMigrationVersion returns the highest embedded migration version for
// a dialect.
func latestMigrationVersion(d dialect) (uint, error) {
	entries, err := fs.Glob(migrationsFS, path.Join("migrations", d.name, "*.up.sql"))
	if err != nil {
		return 0, errors.Wrap(err, "failed to read migrations directory")
	}

	var maxVersion uint
	for _, entry := range entries {
		var version uint
		// Migration files follow format: 000001_name.up.sql
		if _, err := fmt.Sscanf(path.Base(entry), "%d_", &version); err == nil && version > maxVersion {
			maxVersion = version
		}
	}
	if maxVersion == 0 {
		return 0, errors.Errorf("no migration files found for %s", d.name)
	}
	return maxVersion, nil
}

// tableExists reports whether a table is present. Absence is not an error.
func (d *Driver) tableExists(ctx context.Context, table string) (bool, error) {
	var q string
	switch d.dialect.name {
	case postgresDialect.name:
		q = `SELECT COUNT(*) FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = ?`
	default:
		q = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	}
	var n int
	if err := d.db.QueryRowContext(ctx, d.dialect.rebind(q), table).Scan(&n); err != nil {
		return false, errors.Wrapf(err, "checking for table %s", table)
	}
	return n > 0, nil
}

// columnExists reports whether a table has a column. A missing table is
// reported as a missing column.
func (d *Driver) columnExists(ctx context.Context, table, column string) (bool, error) {
	var q string
	switch d.dialect.name {
	case postgresDialect.name:
		q = `SELECT COUNT(*) FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = ? AND column_name = ?`
	default:
		q = `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`
	}
	var n int
	if err := d.db.QueryRowContext(ctx, d.dialect.rebind(q), table, column).Scan(&n); err != nil {
		return false, errors.Wrapf(err, "checking for column %s.%s", table, column)
	}
	return n > 0, nil
}

// prefixedFS substitutes the table prefix into every file read from fsys.
type prefixedFS struct {
	fsys   fs.FS
	prefix string
}

func (p prefixedFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return fs.ReadDir(p.fsys, name)
}

func (p prefixedFS) Open(name string) (fs.File, error) {
	f, err := p.fsys.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		return f, nil
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	data = bytes.ReplaceAll(data, []byte(tablePrefixPlaceholder), []byte(p.prefix))
	return &prefixedFile{Reader: bytes.NewReader(data), info: sizedInfo{FileInfo: info, size: int64(len(data))}}, nil
}

type prefixedFile struct {
	*bytes.Reader
	info fs.FileInfo
}

func (f *prefixedFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *prefixedFile) Close() error               { return nil }

type sizedInfo struct {
	fs.FileInfo
	size int64
}

func (i sizedInfo) Size() int64 { return i.size }
