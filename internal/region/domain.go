package region

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Domain is a set of player and group principals. Player names and group
// names are case-insensitive and kept lower-cased.
type Domain struct {
	players map[string]struct{}
	uuids   map[uuid.UUID]struct{}
	groups  map[string]struct{}
}

// NewDomain returns an empty domain.
func NewDomain() *Domain {
	return &Domain{
		players: make(map[string]struct{}),
		uuids:   make(map[uuid.UUID]struct{}),
		groups:  make(map[string]struct{}),
	}
}

// AddPlayer adds a player by name.
func (d *Domain) AddPlayer(name string) {
	d.players[strings.ToLower(name)] = struct{}{}
}

// AddPlayerUUID adds a player by UUID.
func (d *Domain) AddPlayerUUID(id uuid.UUID) {
	d.uuids[id] = struct{}{}
}

// AddGroup adds a group by name.
func (d *Domain) AddGroup(name string) {
	d.groups[strings.ToLower(name)] = struct{}{}
}

// Players returns the sorted player names.
func (d *Domain) Players() []string {
	return sortedKeys(d.players)
}

// UUIDs returns the player UUIDs in string order.
func (d *Domain) UUIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(d.uuids))
	for id := range d.uuids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Groups returns the sorted group names.
func (d *Domain) Groups() []string {
	return sortedKeys(d.groups)
}

// Size is the total number of principals.
func (d *Domain) Size() int {
	return len(d.players) + len(d.uuids) + len(d.groups)
}

// Equal reports whether both domains hold the same principals.
func (d *Domain) Equal(o *Domain) bool {
	if d == nil || o == nil {
		return (d == nil || d.Size() == 0) && (o == nil || o.Size() == 0)
	}
	if len(d.players) != len(o.players) || len(d.uuids) != len(o.uuids) || len(d.groups) != len(o.groups) {
		return false
	}
	for k := range d.players {
		if _, ok := o.players[k]; !ok {
			return false
		}
	}
	for k := range d.uuids {
		if _, ok := o.uuids[k]; !ok {
			return false
		}
	}
	for k := range d.groups {
		if _, ok := o.groups[k]; !ok {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
