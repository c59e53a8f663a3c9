package db

import (
	"context"

	"github.com/pkg/errors"

	"github.com/regionkeep/regionstore/internal/region"
)

// regionRemover deletes whole regions and the geometry of regions whose
// shape is about to be rewritten.
type regionRemover struct {
	dialect dialect
	tables  tables
	worldID int64

	removed  []string
	cuboids  []string
	polygons []string
}

func newRegionRemover(d dialect, t tables, worldID int64) *regionRemover {
	return &regionRemover{dialect: d, tables: t, worldID: worldID}
}

// removeRegion queues a region and every row that belongs to it.
func (r *regionRemover) removeRegion(id string) {
	r.removed = append(r.removed, id)
}

// removeGeometry queues the stored geometry of a region for deletion.
// stored is the kind currently in the database, which may differ from the
// kind being saved.
func (r *regionRemover) removeGeometry(reg *region.Region, stored region.Kind) {
	switch stored {
	case region.KindCuboid:
		r.cuboids = append(r.cuboids, reg.ID)
	case region.KindPolygon:
		r.polygons = append(r.polygons, reg.ID)
	case region.KindGlobal:
	default:
		r.cuboids = append(r.cuboids, reg.ID)
		r.polygons = append(r.polygons, reg.ID)
	}
}

func (r *regionRemover) apply(ctx context.Context, q querier) error {
	t := r.tables
	if err := r.deleteWhereIn(ctx, q, t.cuboid, "region_id", r.cuboids); err != nil {
		return errors.WithMessage(err, "removing cuboid geometry")
	}
	if err := r.deleteWhereIn(ctx, q, t.poly2dPoint, "region_id", r.polygons); err != nil {
		return errors.WithMessage(err, "removing polygon points")
	}
	if err := r.deleteWhereIn(ctx, q, t.poly2d, "region_id", r.polygons); err != nil {
		return errors.WithMessage(err, "removing polygon geometry")
	}

	if len(r.removed) == 0 {
		return nil
	}
	if err := r.execWhereIn(ctx, q, `UPDATE `+t.region+` SET parent = NULL`, "parent", r.removed); err != nil {
		return errors.WithMessage(err, "unlinking children of removed regions")
	}
	for _, table := range []string{t.flag, t.players, t.groups, t.poly2dPoint, t.poly2d, t.cuboid} {
		if err := r.deleteWhereIn(ctx, q, table, "region_id", r.removed); err != nil {
			return errors.WithMessage(err, "removing region rows")
		}
	}
	if err := r.deleteWhereIn(ctx, q, t.region, "id", r.removed); err != nil {
		return errors.WithMessage(err, "removing regions")
	}
	return nil
}

func (r *regionRemover) deleteWhereIn(ctx context.Context, q querier, table, column string, ids []string) error {
	return r.execWhereIn(ctx, q, `DELETE FROM `+table, column, ids)
}

// execWhereIn runs stmt restricted to this world and to column values in
// ids, MaxInListSize values at a time.
func (r *regionRemover) execWhereIn(ctx context.Context, q querier, stmt, column string, ids []string) error {
	for _, w := range partition(len(ids), MaxInListSize) {
		batch := ids[w[0]:w[1]]
		args := make([]interface{}, 0, len(batch)+1)
		args = append(args, r.worldID)
		for _, id := range batch {
			args = append(args, id)
		}
		query := stmt + ` WHERE world_id = ? AND ` + column + ` IN (` + placeholders(len(batch)) + `)`
		if _, err := q.ExecContext(ctx, r.dialect.rebind(query), args...); err != nil {
			return err
		}
	}
	return nil
}
