package db

import (
	"context"
	"database/sql"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/regionkeep/regionstore/internal/flagcodec"
	"github.com/regionkeep/regionstore/internal/metrics"
	"github.com/regionkeep/regionstore/internal/region"
)

// dataLoader materializes the regions of one world with a fixed number of
// bulk queries. Query failures abort the load; bad rows are logged and
// skipped.
type dataLoader struct {
	q       querier
	dialect dialect
	tables  tables
	worldID int64
	log     log.FieldLogger

	loaded  map[string]*region.Region
	parents map[string]string
}

func newDataLoader(q querier, d dialect, t tables, worldID int64, logger log.FieldLogger) *dataLoader {
	return &dataLoader{
		q:       q,
		dialect: d,
		tables:  t,
		worldID: worldID,
		log:     logger,
		loaded:  make(map[string]*region.Region),
		parents: make(map[string]string),
	}
}

func (l *dataLoader) load(ctx context.Context) ([]*region.Region, error) {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"cuboids", l.loadCuboids},
		{"polygons", l.loadPolygons},
		{"globals", l.loadGlobals},
		{"flags", l.loadFlags},
		{"players", l.loadPlayers},
		{"groups", l.loadGroups},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return nil, errors.WithMessagef(err, "loading %s", s.name)
		}
	}

	for _, problem := range region.RelinkParents(l.loaded, l.parents) {
		metrics.SkippedRowsTotal.WithLabelValues(metrics.SkipParentLink).Inc()
		l.log.WithFields(log.Fields{"region": problem.RegionID, "parent": problem.ParentID}).
			Warnf("parent link dropped: %s", problem.Problem)
	}

	ids := make([]string, 0, len(l.loaded))
	for id := range l.loaded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*region.Region, len(ids))
	for i, id := range ids {
		out[i] = l.loaded[id]
	}
	metrics.RegionsLoadedTotal.Add(float64(len(out)))
	return out, nil
}

func (l *dataLoader) query(ctx context.Context, q string) (*sql.Rows, error) {
	return l.q.QueryContext(ctx, l.dialect.rebind(q), l.worldID)
}

// add registers a region read from the region table.
func (l *dataLoader) add(r *region.Region, priority int, parent sql.NullString) {
	r.Priority = priority
	l.loaded[r.ID] = r
	if parent.Valid && parent.String != "" {
		l.parents[r.ID] = parent.String
	}
}

func (l *dataLoader) loadCuboids(ctx context.Context) error {
	t := l.tables
	rows, err := l.query(ctx, `
		SELECT r.id, r.priority, r.parent,
			g.min_x, g.min_y, g.min_z, g.max_x, g.max_y, g.max_z
		FROM `+t.cuboid+` g
		INNER JOIN `+t.region+` r ON r.id = g.region_id AND r.world_id = g.world_id
		WHERE g.world_id = ?`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id       string
			priority int
			parent   sql.NullString
			a, b     region.Vector3
		)
		if err := rows.Scan(&id, &priority, &parent, &a.X, &a.Y, &a.Z, &b.X, &b.Y, &b.Z); err != nil {
			return err
		}
		l.add(region.NewCuboid(id, a, b), priority, parent)
	}
	return rows.Err()
}

func (l *dataLoader) loadPolygons(ctx context.Context) error {
	t := l.tables
	points := make(map[string][]region.Vector2)
	rows, err := l.query(ctx, `
		SELECT region_id, x, z FROM `+t.poly2dPoint+`
		WHERE world_id = ?
		ORDER BY region_id, id`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var p region.Vector2
		if err := rows.Scan(&id, &p.X, &p.Z); err != nil {
			return err
		}
		points[id] = append(points[id], p)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	rows, err = l.query(ctx, `
		SELECT r.id, r.priority, r.parent, g.min_y, g.max_y
		FROM `+t.poly2d+` g
		INNER JOIN `+t.region+` r ON r.id = g.region_id AND r.world_id = g.world_id
		WHERE g.world_id = ?`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id         string
			priority   int
			parent     sql.NullString
			minY, maxY int
		)
		if err := rows.Scan(&id, &priority, &parent, &minY, &maxY); err != nil {
			return err
		}
		r, err := region.NewPolygon(id, points[id], minY, maxY)
		if err != nil {
			metrics.SkippedRowsTotal.WithLabelValues(metrics.SkipPolygonPoints).Inc()
			l.log.WithFields(log.Fields{"region": id, "points": len(points[id])}).
				Warn("skipping polygon region with fewer than 3 points")
			continue
		}
		l.add(r, priority, parent)
	}
	return rows.Err()
}

func (l *dataLoader) loadGlobals(ctx context.Context) error {
	rows, err := l.query(ctx, `
		SELECT id, priority, parent FROM `+l.tables.region+`
		WHERE world_id = ? AND type = '`+string(region.KindGlobal)+`'`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id       string
			priority int
			parent   sql.NullString
		)
		if err := rows.Scan(&id, &priority, &parent); err != nil {
			return err
		}
		l.add(region.NewGlobal(id), priority, parent)
	}
	return rows.Err()
}

func (l *dataLoader) loadFlags(ctx context.Context) error {
	rows, err := l.query(ctx, `
		SELECT region_id, flag, value FROM `+l.tables.flag+`
		WHERE world_id = ?
		ORDER BY region_id, id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	flags := make(map[string]map[string]interface{})
	for rows.Next() {
		var id, flag, raw string
		if err := rows.Scan(&id, &flag, &raw); err != nil {
			return err
		}
		if _, ok := l.loaded[id]; !ok {
			continue
		}
		value, ok := flagcodec.Unmarshal(raw)
		if !ok {
			l.log.WithFields(log.Fields{"region": id, "flag": flag}).
				Debug("flag value is not structured; keeping raw text")
		}
		if flags[id] == nil {
			flags[id] = make(map[string]interface{})
		}
		flags[id][flag] = value
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for id, values := range flags {
		r := l.loaded[id]
		for name, v := range values {
			r.SetFlag(name, v)
		}
	}
	return nil
}

func (l *dataLoader) domain(id string, owner bool) *region.Domain {
	r, ok := l.loaded[id]
	if !ok {
		return nil
	}
	if owner {
		return r.Owners
	}
	return r.Members
}

func (l *dataLoader) loadPlayers(ctx context.Context) error {
	t := l.tables
	rows, err := l.query(ctx, `
		SELECT p.region_id, u.name, u.uuid, p.owner
		FROM `+t.players+` p
		INNER JOIN `+t.user+` u ON u.id = p.user_id
		WHERE p.world_id = ?`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id         string
			name, rawUUID sql.NullString
			owner      bool
		)
		if err := rows.Scan(&id, &name, &rawUUID, &owner); err != nil {
			return err
		}
		d := l.domain(id, owner)
		if d == nil {
			continue
		}
		switch {
		case name.Valid && name.String != "":
			d.AddPlayer(name.String)
		case rawUUID.Valid:
			parsed, ok := parseUUID(rawUUID.String)
			if !ok {
				metrics.SkippedRowsTotal.WithLabelValues(metrics.SkipPlayerUUID).Inc()
				l.log.WithFields(log.Fields{"region": id, "uuid": rawUUID.String}).
					Warn("skipping player with invalid UUID")
				continue
			}
			d.AddPlayerUUID(parsed)
		}
	}
	return rows.Err()
}

func (l *dataLoader) loadGroups(ctx context.Context) error {
	t := l.tables
	rows, err := l.query(ctx, `
		SELECT g.region_id, n.name, g.owner
		FROM `+t.groups+` g
		INNER JOIN `+t.group+` n ON n.id = g.group_id
		WHERE g.world_id = ?`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id, name string
			owner    bool
		)
		if err := rows.Scan(&id, &name, &owner); err != nil {
			return err
		}
		if d := l.domain(id, owner); d != nil {
			d.AddGroup(name)
		}
	}
	return rows.Err()
}

func parseUUID(s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	return id, err == nil
}
