package db

import (
	"context"

	"github.com/pkg/errors"

	"github.com/regionkeep/regionstore/internal/region"
)

// Stages passed to the failpoint hook.
const (
	StageAfterRemovals   = "after-removals"
	StageAfterRegionRows = "after-region-rows"
	StageBeforeCommit    = "before-commit"
)

// regionInserter writes region rows and geometry in multi-row batches.
// Parents are always written as NULL here and linked by the updater once
// every region row exists.
type regionInserter struct {
	dialect dialect
	tables  tables
	worldID int64
	hook    func(stage string) error

	regions  []*region.Region
	cuboids  []*region.Region
	polygons []*region.Region
}

func newRegionInserter(d dialect, t tables, worldID int64, hook func(string) error) *regionInserter {
	return &regionInserter{dialect: d, tables: t, worldID: worldID, hook: hook}
}

// insertRegionType queues the region row of a region new to the world.
func (i *regionInserter) insertRegionType(r *region.Region) {
	i.regions = append(i.regions, r)
}

// insertGeometry queues the geometry rows for the region's kind.
func (i *regionInserter) insertGeometry(r *region.Region) {
	switch r.Kind {
	case region.KindCuboid:
		i.cuboids = append(i.cuboids, r)
	case region.KindPolygon:
		i.polygons = append(i.polygons, r)
	}
}

func (i *regionInserter) apply(ctx context.Context, q querier) error {
	t := i.tables

	rows := insertBatch(q, i.dialect, t.region, "id", "world_id", "type", "priority", "parent")
	for _, r := range i.regions {
		if err := rows.Add(ctx, r.ID, i.worldID, string(r.Kind), r.Priority, nil); err != nil {
			return errors.Wrap(err, "inserting region rows")
		}
	}
	if err := rows.Flush(ctx); err != nil {
		return errors.Wrap(err, "inserting region rows")
	}
	if err := i.hook(StageAfterRegionRows); err != nil {
		return err
	}

	cuboids := insertBatch(q, i.dialect, t.cuboid,
		"region_id", "world_id", "min_x", "min_y", "min_z", "max_x", "max_y", "max_z")
	for _, r := range i.cuboids {
		c := r.Cuboid
		if c == nil {
			return errors.Errorf("cuboid region %q has no bounds", r.ID)
		}
		if err := cuboids.Add(ctx, r.ID, i.worldID, c.Min.X, c.Min.Y, c.Min.Z, c.Max.X, c.Max.Y, c.Max.Z); err != nil {
			return errors.Wrap(err, "inserting cuboids")
		}
	}
	if err := cuboids.Flush(ctx); err != nil {
		return errors.Wrap(err, "inserting cuboids")
	}

	polygons := insertBatch(q, i.dialect, t.poly2d, "region_id", "world_id", "min_y", "max_y")
	points := insertBatch(q, i.dialect, t.poly2dPoint, "region_id", "world_id", "x", "z")
	for _, r := range i.polygons {
		p := r.Polygon
		if p == nil {
			return errors.Errorf("polygon region %q has no outline", r.ID)
		}
		if err := polygons.Add(ctx, r.ID, i.worldID, p.MinY, p.MaxY); err != nil {
			return errors.Wrap(err, "inserting polygons")
		}
	}
	// Points reference their polygon row, so polygons are flushed first.
	if err := polygons.Flush(ctx); err != nil {
		return errors.Wrap(err, "inserting polygons")
	}
	for _, r := range i.polygons {
		for _, pt := range r.Polygon.Points {
			if err := points.Add(ctx, r.ID, i.worldID, pt.X, pt.Z); err != nil {
				return errors.Wrap(err, "inserting polygon points")
			}
		}
	}
	return errors.Wrap(points.Flush(ctx), "inserting polygon points")
}
