// Package db stores the regions of every world in a relational database.
//
// A Driver owns the connection pool, the schema migrations and the shared
// principal cache of one data source; RegionDatabase is the per-world view
// through which regions are loaded and saved.
package db

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
	_ "modernc.org/sqlite"

	"github.com/regionkeep/regionstore/internal/config"
	"github.com/regionkeep/regionstore/internal/metrics"
	"github.com/regionkeep/regionstore/internal/monitoring"
	"github.com/regionkeep/regionstore/internal/timeutil"
)

// sqlitePragmas are applied to every SQLite connection unless the DSN
// already sets pragmas of its own.
var sqlitePragmas = []string{
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
}

// Connector opens one connection. It must honor ctx cancellation.
type Connector func(ctx context.Context) (*sql.Conn, error)

// DriverOption customizes a Driver.
type DriverOption func(*Driver)

// WithClock sets the clock used to time-box connection acquisition.
func WithClock(c timeutil.Clock) DriverOption {
	return func(d *Driver) { d.clock = c }
}

// WithConnector replaces the function used to acquire connections.
func WithConnector(fn Connector) DriverOption {
	return func(d *Driver) { d.connect = fn }
}

// Driver is the entry point to one relational data source.
type Driver struct {
	cfg     config.DataSource
	dialect dialect
	tables  tables
	db      *sql.DB
	openDB  func() (*sql.DB, error)

	clock     timeutil.Clock
	connect   Connector
	timeout   time.Duration
	acquirers *semaphore.Weighted

	principals *PrincipalCache
	failpoint  func(stage string) error

	initMu      sync.Mutex
	initialized bool
}

// NewDriver prepares a Driver for cfg. No connection is made until the
// first operation needs one.
func NewDriver(cfg config.DataSource, opts ...DriverOption) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid data source")
	}
	dia, ok := dialectFor(cfg.GetDialect())
	if !ok {
		return nil, errors.Errorf("unsupported dialect %q", cfg.Dialect)
	}

	dsn := cfg.ConnectionString()
	if dia.name == sqliteDialect.name {
		dsn = withSQLitePragmas(dsn)
	}
	open := func() (*sql.DB, error) { return sql.Open(dia.driverName, dsn) }
	pool, err := open()
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s data source", dia.name)
	}

	d := &Driver{
		cfg:       cfg,
		dialect:   dia,
		tables:    newTables(cfg.TablePrefix),
		db:        pool,
		openDB:    open,
		clock:     timeutil.RealClock{},
		connect:   pool.Conn,
		timeout:   cfg.GetConnectTimeout(),
		acquirers: semaphore.NewWeighted(int64(cfg.GetAcquirers())),
		failpoint: noFailpoint,
	}
	d.principals = newPrincipalCache(d.dialect, d.tables)
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func withSQLitePragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(sqlitePragmas, "&")
}

// Get returns the region database of a world. It does no I/O.
func (d *Driver) Get(world string) *RegionDatabase {
	return newRegionDatabase(d, world)
}

// GetAll returns a region database for every world known to the store.
func (d *Driver) GetAll(ctx context.Context) ([]*RegionDatabase, error) {
	if err := d.Initialize(ctx); err != nil {
		return nil, err
	}
	var out []*RegionDatabase
	err := d.withConn(ctx, "list worlds", func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `SELECT name FROM `+d.tables.world+` ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			out = append(out, d.Get(name))
		}
		return rows.Err()
	})
	return out, err
}

// Initialize migrates the schema. It runs at most once successfully per
// Driver; a failed attempt is retried by the next call.
func (d *Driver) Initialize(ctx context.Context) error {
	d.initMu.Lock()
	defer d.initMu.Unlock()

	if d.initialized {
		return nil
	}
	if err := d.migrate(ctx); err != nil {
		monitoring.Log.WithField("err", err).Error("region schema migration failed")
		return &MigrationError{Err: err}
	}
	d.initialized = true
	return nil
}

// Conn acquires a connection within the configured connect timeout. On
// timeout the pending attempt is cancelled and any connection it still
// produces is closed.
func (d *Driver) Conn(ctx context.Context) (*sql.Conn, error) {
	start := d.clock.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		conn *sql.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		if err := d.acquirers.Acquire(ctx, 1); err != nil {
			done <- result{err: err}
			return
		}
		defer d.acquirers.Release(1)
		conn, err := d.connect(ctx)
		done <- result{conn: conn, err: err}
	}()

	timer := d.clock.NewTimer(d.timeout)
	defer timer.Stop()

	abandon := func() {
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
	}

	select {
	case r := <-done:
		if r.err != nil {
			return nil, storageErr("connect", r.err)
		}
		metrics.ConnectionAcquireSeconds.Observe(d.clock.Since(start).Seconds())
		return r.conn, nil
	case <-timer.C():
		cancel()
		abandon()
		metrics.ConnectionTimeoutsTotal.Inc()
		monitoring.Log.WithField("timeout", d.timeout).Warn("timed out acquiring a database connection")
		return nil, storageErr("connect", errors.WithStack(ErrConnectionTimeout))
	case <-ctx.Done():
		abandon()
		return nil, storageErr("connect", ctx.Err())
	}
}

// withConn runs fn on a borrowed connection and always returns it.
func (d *Driver) withConn(ctx context.Context, op string, fn func(conn *sql.Conn) error) error {
	conn, err := d.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return storageErr(op, fn(conn))
}

// Close releases the connection pool.
func (d *Driver) Close() error {
	return d.db.Close()
}
