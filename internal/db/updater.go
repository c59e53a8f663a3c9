package db

import (
	"context"
	"database/sql"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/regionkeep/regionstore/internal/region"
)

// WithFailpoint installs a hook called at fixed points of every save
// transaction. A non-nil return aborts the save and rolls it back.
func WithFailpoint(hook func(stage string) error) DriverOption {
	return func(d *Driver) {
		if hook == nil {
			hook = noFailpoint
		}
		d.failpoint = hook
	}
}

func noFailpoint(string) error { return nil }

// dataUpdater applies a snapshot or an incremental save of one world in a
// single transaction.
type dataUpdater struct {
	conn    *sql.Conn
	dialect dialect
	tables  tables
	worldID int64
	cache   *PrincipalCache
	hook    func(string) error
	log     log.FieldLogger
}

// saveAll replaces the world's stored regions with regions.
func (u *dataUpdater) saveAll(ctx context.Context, regions []*region.Region) error {
	return u.executeSave(ctx, regions, nil)
}

// saveChanges writes changed and deletes removed, leaving every other
// stored region untouched.
func (u *dataUpdater) saveChanges(ctx context.Context, changed, removed []*region.Region) error {
	if removed == nil {
		removed = []*region.Region{}
	}
	return u.executeSave(ctx, changed, removed)
}

// executeSave writes toUpdate. A nil toRemove means toUpdate is the whole
// world and every other stored region is deleted.
func (u *dataUpdater) executeSave(ctx context.Context, toUpdate, toRemove []*region.Region) error {
	existing, err := u.existingTypes(ctx)
	if err != nil {
		return errors.WithMessage(err, "reading stored regions")
	}

	for _, r := range toUpdate {
		if err := validateRegion(r); err != nil {
			return err
		}
	}

	removing := make(map[string]struct{}, len(toRemove))
	for _, r := range toRemove {
		removing[r.ID] = struct{}{}
	}

	cache := u.cache.Bind(u.conn)
	remover := newRegionRemover(u.dialect, u.tables, u.worldID)
	inserter := newRegionInserter(u.dialect, u.tables, u.worldID, u.hook)
	updater := newRegionUpdater(u.dialect, u.tables, u.worldID, cache, u.log)

	updating := make(map[string]struct{}, len(toUpdate))
	for _, r := range toUpdate {
		if _, ok := removing[r.ID]; ok {
			continue
		}
		if _, dup := updating[r.ID]; dup {
			return errors.Errorf("region %q saved twice", r.ID)
		}
		updating[r.ID] = struct{}{}

		if stored, ok := existing[r.ID]; ok {
			updater.updateRegionType(r)
			remover.removeGeometry(r, stored)
		} else {
			inserter.insertRegionType(r)
		}
		inserter.insertGeometry(r)
		updater.updateRegionProperties(r)
	}

	if toRemove != nil {
		for _, r := range toRemove {
			if _, ok := existing[r.ID]; ok {
				remover.removeRegion(r.ID)
			}
		}
	} else {
		for _, id := range sortedKeys(existing) {
			if _, ok := updating[id]; !ok {
				remover.removeRegion(id)
			}
		}
	}

	if err := checkParents(toUpdate, updating, existing, removing, toRemove == nil); err != nil {
		return err
	}

	// Principals are resolved in autocommit mode so the shared cache never
	// holds ids of rows from a transaction that is later rolled back.
	if err := cache.Fetch(ctx, updater.domains()...); err != nil {
		return errors.WithMessage(err, "resolving principals")
	}

	return u.inTx(ctx, func(tx *sql.Tx) error {
		if err := remover.apply(ctx, tx); err != nil {
			return err
		}
		if err := u.hook(StageAfterRemovals); err != nil {
			return err
		}
		if err := inserter.apply(ctx, tx); err != nil {
			return err
		}
		if err := updater.apply(ctx, tx); err != nil {
			return err
		}
		return u.hook(StageBeforeCommit)
	})
}

// validateRegion rejects regions that could not be loaded back once stored.
func validateRegion(r *region.Region) error {
	if !region.ValidID(r.ID) {
		return errors.Errorf("invalid region id %q", r.ID)
	}
	kind, err := region.ParseKind(string(r.Kind))
	if err != nil {
		return errors.Wrapf(err, "region %q", r.ID)
	}
	switch {
	case kind == region.KindCuboid && r.Cuboid == nil:
		return errors.Errorf("cuboid region %q has no bounds", r.ID)
	case kind == region.KindPolygon && r.Polygon == nil:
		return errors.Errorf("polygon region %q has no outline", r.ID)
	case kind == region.KindPolygon && len(r.Polygon.Points) < 3:
		return errors.Wrapf(region.ErrTooFewPoints, "region %q", r.ID)
	}
	return nil
}

// checkParents requires every parent to be a region of the world as it will
// stand after the save. A snapshot keeps only the saved regions; a change set
// keeps the stored ones that are not removed.
func checkParents(toUpdate []*region.Region, updating map[string]struct{},
	existing map[string]region.Kind, removing map[string]struct{}, snapshot bool) error {
	for _, r := range toUpdate {
		if r.Parent == nil {
			continue
		}
		if _, ok := updating[r.ID]; !ok {
			continue
		}
		parentID := r.Parent.ID
		_, kept := updating[parentID]
		if !kept && !snapshot {
			_, stored := existing[parentID]
			_, removed := removing[parentID]
			kept = stored && !removed
		}
		if !kept {
			return errors.Errorf("parent %q of region %q is not a region of this world", parentID, r.ID)
		}
	}
	return nil
}

func (u *dataUpdater) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := u.conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning save transaction")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "committing save transaction")
}

// existingTypes returns the stored kind of every region of the world.
func (u *dataUpdater) existingTypes(ctx context.Context) (map[string]region.Kind, error) {
	rows, err := u.conn.QueryContext(ctx,
		u.dialect.rebind(`SELECT id, type FROM `+u.tables.region+` WHERE world_id = ?`), u.worldID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := make(map[string]region.Kind)
	for rows.Next() {
		var id, kind string
		if err := rows.Scan(&id, &kind); err != nil {
			return nil, err
		}
		existing[id] = region.Kind(kind)
	}
	return existing, rows.Err()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
