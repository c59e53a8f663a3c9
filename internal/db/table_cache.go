package db

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/regionkeep/regionstore/internal/metrics"
	"github.com/regionkeep/regionstore/internal/region"
)

// MaxInListSize bounds the number of values in one IN (...) lookup.
const MaxInListSize = 100

// querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TableCache maps the values of one unique column to the ids of their rows,
// inserting rows for values not yet stored. Name columns are matched on
// lower(name) so rows written with any casing are found. It is not safe for concurrent
// use; PrincipalCache serializes access.
type TableCache[K comparable] struct {
	dialect dialect
	table   string
	column  string
	match   string // expression compared with encoded entries
	label   string

	normalize func(K) K
	encode    func(K) interface{}
	decode    func(string) (K, bool)

	ids map[K]int64
}

// Fetch makes every entry resolvable by Find. Entries already cached cost
// nothing; the rest are looked up in batches and any still missing are
// inserted one at a time.
func (c *TableCache[K]) Fetch(ctx context.Context, q querier, entries []K) error {
	var missing []K
	seen := make(map[K]struct{}, len(entries))
	for _, e := range entries {
		e = c.normalize(e)
		if _, ok := c.ids[e]; ok {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		missing = append(missing, e)
	}
	if len(missing) == 0 {
		return nil
	}

	for _, w := range partition(len(missing), MaxInListSize) {
		if err := c.lookup(ctx, q, missing[w[0]:w[1]]); err != nil {
			return err
		}
	}

	insert := c.dialect.rebind(`INSERT INTO ` + c.table + ` (` + c.column + `) VALUES (?) RETURNING id`)
	for _, e := range missing {
		if _, ok := c.ids[e]; ok {
			continue
		}
		var id int64
		if err := q.QueryRowContext(ctx, insert, c.encode(e)).Scan(&id); err != nil {
			return errors.Wrapf(err, "inserting %s %v", c.label, e)
		}
		c.ids[e] = id
		metrics.PrincipalInsertsTotal.WithLabelValues(c.label).Inc()
	}
	return nil
}

func (c *TableCache[K]) lookup(ctx context.Context, q querier, batch []K) error {
	args := make([]interface{}, len(batch))
	for i, e := range batch {
		args[i] = c.encode(e)
	}
	query := c.dialect.rebind(`SELECT id, ` + c.column + ` FROM ` + c.table +
		` WHERE ` + c.match + ` IN (` + placeholders(len(batch)) + `)`)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "looking up %s ids", c.label)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var value string
		if err := rows.Scan(&id, &value); err != nil {
			return errors.Wrapf(err, "scanning %s", c.label)
		}
		if k, ok := c.decode(value); ok {
			c.ids[c.normalize(k)] = id
		}
	}
	return errors.Wrapf(rows.Err(), "looking up %s ids", c.label)
}

// Find returns the cached id of entry. It never queries the database.
func (c *TableCache[K]) Find(entry K) (int64, bool) {
	id, ok := c.ids[c.normalize(entry)]
	return id, ok
}

// Len is the number of cached entries.
func (c *TableCache[K]) Len() int {
	return len(c.ids)
}

func identity[K any](k K) K { return k }

func newNameCache(d dialect, table, label string) *TableCache[string] {
	return &TableCache[string]{
		dialect:   d,
		table:     table,
		column:    "name",
		match:     "lower(name)",
		label:     label,
		normalize: strings.ToLower,
		encode:    func(s string) interface{} { return s },
		decode:    func(s string) (string, bool) { return s, true },
		ids:       make(map[string]int64),
	}
}

func newUUIDCache(d dialect, table string) *TableCache[uuid.UUID] {
	return &TableCache[uuid.UUID]{
		dialect:   d,
		table:     table,
		column:    "uuid",
		match:     "uuid",
		label:     metrics.KindUserUUID,
		normalize: identity[uuid.UUID],
		encode:    func(id uuid.UUID) interface{} { return id.String() },
		decode: func(s string) (uuid.UUID, bool) {
			id, err := uuid.Parse(s)
			return id, err == nil
		},
		ids: make(map[uuid.UUID]int64),
	}
}

// PrincipalCache holds the user and group ids of one data source. It is
// shared by every world of a Driver and lives as long as the Driver; one
// lock serializes every fetch-or-insert so two saves never insert the same
// principal twice.
type PrincipalCache struct {
	mu         sync.Mutex
	userNames  *TableCache[string]
	userUUIDs  *TableCache[uuid.UUID]
	groupNames *TableCache[string]
}

func newPrincipalCache(d dialect, t tables) *PrincipalCache {
	return &PrincipalCache{
		userNames:  newNameCache(d, t.user, metrics.KindUserName),
		userUUIDs:  newUUIDCache(d, t.user),
		groupNames: newNameCache(d, t.group, metrics.KindGroup),
	}
}

// Bind returns a view of the cache that resolves through q.
func (p *PrincipalCache) Bind(q querier) *DomainTableCache {
	return &DomainTableCache{cache: p, q: q}
}

// DomainTableCache resolves the principals of region domains through one
// connection for the length of a single save.
type DomainTableCache struct {
	cache *PrincipalCache
	q     querier
}

// Fetch resolves every principal named by domains, inserting those the
// database does not know yet.
func (v *DomainTableCache) Fetch(ctx context.Context, domains ...*region.Domain) error {
	var names, groups []string
	var ids []uuid.UUID
	for _, d := range domains {
		if d == nil {
			continue
		}
		names = append(names, d.Players()...)
		ids = append(ids, d.UUIDs()...)
		groups = append(groups, d.Groups()...)
	}

	p := v.cache
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.userNames.Fetch(ctx, v.q, names); err != nil {
		return err
	}
	if err := p.userUUIDs.Fetch(ctx, v.q, ids); err != nil {
		return err
	}
	return p.groupNames.Fetch(ctx, v.q, groups)
}

// UserByName returns the user id of a player name.
func (v *DomainTableCache) UserByName(name string) (int64, bool) {
	v.cache.mu.Lock()
	defer v.cache.mu.Unlock()
	return v.cache.userNames.Find(name)
}

// UserByUUID returns the user id of a player UUID.
func (v *DomainTableCache) UserByUUID(id uuid.UUID) (int64, bool) {
	v.cache.mu.Lock()
	defer v.cache.mu.Unlock()
	return v.cache.userUUIDs.Find(id)
}

// GroupByName returns the id of a group.
func (v *DomainTableCache) GroupByName(name string) (int64, bool) {
	v.cache.mu.Lock()
	defer v.cache.mu.Unlock()
	return v.cache.groupNames.Find(name)
}
