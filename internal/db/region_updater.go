package db

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/regionkeep/regionstore/internal/flagcodec"
	"github.com/regionkeep/regionstore/internal/region"
)

// regionUpdater rewrites the mutable properties of saved regions: type,
// priority, parent, flags and domains.
type regionUpdater struct {
	dialect dialect
	tables  tables
	worldID int64
	cache   *DomainTableCache
	log     log.FieldLogger

	typeChanges []*region.Region
	regions     []*region.Region
}

func newRegionUpdater(d dialect, t tables, worldID int64, cache *DomainTableCache, logger log.FieldLogger) *regionUpdater {
	return &regionUpdater{dialect: d, tables: t, worldID: worldID, cache: cache, log: logger}
}

// updateRegionType queues a type and priority rewrite of an existing row.
func (u *regionUpdater) updateRegionType(r *region.Region) {
	u.typeChanges = append(u.typeChanges, r)
}

// updateRegionProperties queues the parent, flags and domains of a region.
func (u *regionUpdater) updateRegionProperties(r *region.Region) {
	u.regions = append(u.regions, r)
}

// domains returns every domain whose principals the apply step will need.
func (u *regionUpdater) domains() []*region.Domain {
	out := make([]*region.Domain, 0, 2*len(u.regions))
	for _, r := range u.regions {
		out = append(out, r.Owners, r.Members)
	}
	return out
}

func (u *regionUpdater) ids() []string {
	ids := make([]string, len(u.regions))
	for i, r := range u.regions {
		ids[i] = r.ID
	}
	return ids
}

func (u *regionUpdater) apply(ctx context.Context, q querier) error {
	steps := []struct {
		name string
		fn   func(context.Context, querier) error
	}{
		{"updating region types", u.applyTypes},
		{"linking parents", u.applyParents},
		{"replacing flags", u.applyFlags},
		{"replacing players", u.applyPlayers},
		{"replacing groups", u.applyGroups},
	}
	for _, s := range steps {
		if err := s.fn(ctx, q); err != nil {
			return errors.WithMessage(err, s.name)
		}
	}
	return nil
}

func (u *regionUpdater) applyTypes(ctx context.Context, q querier) error {
	stmt := u.dialect.rebind(`UPDATE ` + u.tables.region + ` SET type = ?, priority = ? WHERE id = ? AND world_id = ?`)
	for _, r := range u.typeChanges {
		if _, err := q.ExecContext(ctx, stmt, string(r.Kind), r.Priority, r.ID, u.worldID); err != nil {
			return err
		}
	}
	return nil
}

func (u *regionUpdater) applyParents(ctx context.Context, q querier) error {
	stmt := u.dialect.rebind(`UPDATE ` + u.tables.region + ` SET parent = ? WHERE id = ? AND world_id = ?`)
	for _, r := range u.regions {
		if r.Parent == nil {
			// Region rows are inserted with no parent and a removed
			// parent is unlinked by the remover.
			continue
		}
		if _, err := q.ExecContext(ctx, stmt, r.Parent.ID, r.ID, u.worldID); err != nil {
			return err
		}
	}
	return u.clearParents(ctx, q)
}

// clearParents unsets the stored parent of existing regions that no longer
// have one.
func (u *regionUpdater) clearParents(ctx context.Context, q querier) error {
	stmt := u.dialect.rebind(`UPDATE ` + u.tables.region + ` SET parent = NULL WHERE id = ? AND world_id = ? AND parent IS NOT NULL`)
	for _, r := range u.regions {
		if r.Parent != nil {
			continue
		}
		if _, err := q.ExecContext(ctx, stmt, r.ID, u.worldID); err != nil {
			return err
		}
	}
	return nil
}

func (u *regionUpdater) deleteRows(ctx context.Context, q querier, table string) error {
	remover := regionRemover{dialect: u.dialect, tables: u.tables, worldID: u.worldID}
	return remover.deleteWhereIn(ctx, q, table, "region_id", u.ids())
}

func (u *regionUpdater) applyFlags(ctx context.Context, q querier) error {
	if err := u.deleteRows(ctx, q, u.tables.flag); err != nil {
		return err
	}
	batch := insertBatch(q, u.dialect, u.tables.flag, "region_id", "world_id", "flag", "value")
	for _, r := range u.regions {
		for _, name := range sortedFlagNames(r.Flags) {
			raw, err := flagcodec.Marshal(r.Flags[name])
			if err != nil {
				u.log.WithFields(log.Fields{"region": r.ID, "flag": name, "err": err}).
					Warn("skipping flag that could not be encoded")
				continue
			}
			if err := batch.Add(ctx, r.ID, u.worldID, name, raw); err != nil {
				return err
			}
		}
	}
	return batch.Flush(ctx)
}

func (u *regionUpdater) applyPlayers(ctx context.Context, q querier) error {
	if err := u.deleteRows(ctx, q, u.tables.players); err != nil {
		return err
	}
	batch := insertBatch(q, u.dialect, u.tables.players, "region_id", "world_id", "user_id", "owner")
	for _, r := range u.regions {
		for _, side := range []struct {
			domain *region.Domain
			owner  bool
		}{{r.Owners, true}, {r.Members, false}} {
			if side.domain == nil {
				continue
			}
			seen := make(map[int64]struct{})
			add := func(id int64, ok bool, principal interface{}) error {
				if !ok {
					return errors.Errorf("no user id resolved for %v", principal)
				}
				if _, dup := seen[id]; dup {
					return nil
				}
				seen[id] = struct{}{}
				return batch.Add(ctx, r.ID, u.worldID, id, side.owner)
			}
			for _, name := range side.domain.Players() {
				id, ok := u.cache.UserByName(name)
				if err := add(id, ok, name); err != nil {
					return err
				}
			}
			for _, uid := range side.domain.UUIDs() {
				id, ok := u.cache.UserByUUID(uid)
				if err := add(id, ok, uid); err != nil {
					return err
				}
			}
		}
	}
	return batch.Flush(ctx)
}

func (u *regionUpdater) applyGroups(ctx context.Context, q querier) error {
	if err := u.deleteRows(ctx, q, u.tables.groups); err != nil {
		return err
	}
	batch := insertBatch(q, u.dialect, u.tables.groups, "region_id", "world_id", "group_id", "owner")
	for _, r := range u.regions {
		for _, side := range []struct {
			domain *region.Domain
			owner  bool
		}{{r.Owners, true}, {r.Members, false}} {
			if side.domain == nil {
				continue
			}
			for _, name := range side.domain.Groups() {
				id, ok := u.cache.GroupByName(name)
				if !ok {
					return errors.Errorf("no group id resolved for %q", name)
				}
				if err := batch.Add(ctx, r.ID, u.worldID, id, side.owner); err != nil {
					return err
				}
			}
		}
	}
	return batch.Flush(ctx)
}

func sortedFlagNames(flags map[string]interface{}) []string {
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
