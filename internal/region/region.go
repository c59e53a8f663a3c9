// Package region holds the in-memory form of a world's protection regions as
// the store hands them to (and receives them from) the region engine.
package region

import (
	"errors"
	"fmt"
	"regexp"
)

// Kind discriminates the geometry payload carried by a Region. The values are
// the type names written to the region table.
type Kind string

const (
	KindCuboid  Kind = "cuboid"
	KindPolygon Kind = "poly2d"
	KindGlobal  Kind = "global"
)

// GlobalID is the conventional id of a world's global region.
const GlobalID = "__global__"

var (
	// ErrCircularInheritance is returned by SetParent when the new parent
	// would make the region its own ancestor.
	ErrCircularInheritance = errors.New("circular inheritance")
	// ErrTooFewPoints is returned for polygons with fewer than three vertices.
	ErrTooFewPoints = errors.New("polygon needs at least 3 points")
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_,'\-+/]+$`)

// ValidID reports whether id may be used as a region id.
func ValidID(id string) bool {
	return validID.MatchString(id)
}

// ParseKind maps a stored type name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCuboid, KindPolygon, KindGlobal:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown region type %q", s)
}

// Region is a named, prioritized and optionally parented protection area.
// Exactly one of Cuboid or Polygon is set for the matching Kind; global
// regions carry neither.
type Region struct {
	ID       string
	Kind     Kind
	Priority int
	Parent   *Region
	Flags    map[string]interface{}
	Owners   *Domain
	Members  *Domain

	Cuboid  *Cuboid
	Polygon *Polygon
}

func newRegion(id string, kind Kind) *Region {
	return &Region{
		ID:      id,
		Kind:    kind,
		Flags:   make(map[string]interface{}),
		Owners:  NewDomain(),
		Members: NewDomain(),
	}
}

// NewCuboid returns an axis-aligned box region spanning a and b.
func NewCuboid(id string, a, b Vector3) *Region {
	r := newRegion(id, KindCuboid)
	r.Cuboid = &Cuboid{Min: a.Min(b), Max: a.Max(b)}
	return r
}

// NewPolygon returns a polygonal prism region. The Y bounds are swapped if
// given out of order.
func NewPolygon(id string, points []Vector2, minY, maxY int) (*Region, error) {
	if len(points) < 3 {
		return nil, fmt.Errorf("region %q: %w (got %d)", id, ErrTooFewPoints, len(points))
	}
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	r := newRegion(id, KindPolygon)
	r.Polygon = &Polygon{
		Points: append([]Vector2(nil), points...),
		MinY:   minY,
		MaxY:   maxY,
	}
	return r, nil
}

// NewGlobal returns a region covering a whole world.
func NewGlobal(id string) *Region {
	return newRegion(id, KindGlobal)
}

// SetParent links r under parent. A nil parent clears the link.
func (r *Region) SetParent(parent *Region) error {
	if parent == nil {
		r.Parent = nil
		return nil
	}
	for p := parent; p != nil; p = p.Parent {
		if p == r {
			return fmt.Errorf("region %q under %q: %w", r.ID, parent.ID, ErrCircularInheritance)
		}
	}
	r.Parent = parent
	return nil
}

// SetFlag stores a flag value; a nil value removes the flag.
func (r *Region) SetFlag(name string, value interface{}) {
	if value == nil {
		delete(r.Flags, name)
		return
	}
	if r.Flags == nil {
		r.Flags = make(map[string]interface{})
	}
	r.Flags[name] = value
}

func (r *Region) String() string {
	return fmt.Sprintf("%s(%s)", r.ID, r.Kind)
}
