package db

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/regionkeep/regionstore/internal/metrics"
	"github.com/regionkeep/regionstore/internal/monitoring"
	"github.com/regionkeep/regionstore/internal/region"
)

// RegionDatabase loads and saves the regions of one world.
type RegionDatabase struct {
	driver *Driver
	name   string

	mu       sync.Mutex
	worldID  int64
	resolved bool
}

func newRegionDatabase(d *Driver, world string) *RegionDatabase {
	return &RegionDatabase{driver: d, name: world}
}

// Name is the world name.
func (rd *RegionDatabase) Name() string {
	return rd.name
}

// WorldID returns the id of the world row, creating the row on first use.
// The schema is migrated first if the Driver has not done so yet.
func (rd *RegionDatabase) WorldID(ctx context.Context) (int64, error) {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	if rd.resolved {
		return rd.worldID, nil
	}
	if err := rd.driver.Initialize(ctx); err != nil {
		return 0, err
	}
	err := rd.driver.withConn(ctx, "resolve world", func(conn *sql.Conn) error {
		id, err := rd.resolveWorld(ctx, conn)
		if err != nil {
			return err
		}
		rd.worldID = id
		rd.resolved = true
		return nil
	})
	return rd.worldID, err
}

// resolveWorld selects the world row, inserting it if missing. A failed
// insert means another process created the row first, so the select is
// tried once more.
func (rd *RegionDatabase) resolveWorld(ctx context.Context, conn *sql.Conn) (int64, error) {
	d := rd.driver
	sel := d.dialect.rebind(`SELECT id FROM ` + d.tables.world + ` WHERE name = ?`)
	var id int64
	err := conn.QueryRowContext(ctx, sel, rd.name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrapf(err, "selecting world %q", rd.name)
	}

	ins := d.dialect.rebind(`INSERT INTO ` + d.tables.world + ` (name) VALUES (?) RETURNING id`)
	insErr := conn.QueryRowContext(ctx, ins, rd.name).Scan(&id)
	if insErr == nil {
		return id, nil
	}
	if err := conn.QueryRowContext(ctx, sel, rd.name).Scan(&id); err != nil {
		return 0, errors.Wrapf(insErr, "inserting world %q", rd.name)
	}
	return id, nil
}

func (rd *RegionDatabase) logger() log.FieldLogger {
	return monitoring.Log.WithField("world", rd.name)
}

// LoadAll reads every region of the world with parents linked.
func (rd *RegionDatabase) LoadAll(ctx context.Context) (regions []*region.Region, err error) {
	defer func() { metrics.LoadsTotal.WithLabelValues(metrics.Status(err)).Inc() }()

	worldID, err := rd.WorldID(ctx)
	if err != nil {
		return nil, storageErr("load", err)
	}
	d := rd.driver
	err = d.withConn(ctx, "load", func(conn *sql.Conn) error {
		var err error
		regions, err = newDataLoader(conn, d.dialect, d.tables, worldID, rd.logger()).load(ctx)
		return err
	})
	if err != nil {
		rd.logger().WithField("err", err).Error("loading regions failed")
		return nil, err
	}
	return regions, nil
}

// SaveAll replaces the stored regions of the world with regions.
func (rd *RegionDatabase) SaveAll(ctx context.Context, regions []*region.Region) (err error) {
	defer func() { metrics.SavesTotal.WithLabelValues(metrics.ModeSnapshot, metrics.Status(err)).Inc() }()

	err = rd.save(ctx, "save", func(u *dataUpdater) error {
		return u.saveAll(ctx, regions)
	})
	return storageErr("save", err)
}

// SaveChanges writes changed regions and deletes removed ones in one
// transaction. Regions in both sets are removed.
func (rd *RegionDatabase) SaveChanges(ctx context.Context, changed, removed []*region.Region) (err error) {
	defer func() { metrics.SavesTotal.WithLabelValues(metrics.ModeChanges, metrics.Status(err)).Inc() }()

	var applying bool
	err = rd.save(ctx, "save changes", func(u *dataUpdater) error {
		applying = true
		return u.saveChanges(ctx, changed, removed)
	})
	if err != nil && applying {
		var se *StorageError
		if errors.As(err, &se) && se.Op == "save changes" {
			err = se.Err
		}
		return &DifferenceSaveError{Err: err}
	}
	return storageErr("save changes", err)
}

func (rd *RegionDatabase) save(ctx context.Context, op string, fn func(u *dataUpdater) error) error {
	worldID, err := rd.WorldID(ctx)
	if err != nil {
		return err
	}
	d := rd.driver
	err = d.withConn(ctx, op, func(conn *sql.Conn) error {
		return fn(&dataUpdater{
			conn:    conn,
			dialect: d.dialect,
			tables:  d.tables,
			worldID: worldID,
			cache:   d.principals,
			hook:    d.failpoint,
			log:     rd.logger(),
		})
	})
	if err != nil {
		rd.logger().WithFields(log.Fields{"op": op, "err": err}).Error("saving regions failed")
	}
	return err
}
