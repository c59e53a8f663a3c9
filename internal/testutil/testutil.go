// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/uuid"

	"github.com/regionkeep/regionstore/internal/config"
	"github.com/regionkeep/regionstore/internal/region"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// SQLiteDataSource returns a data source backed by a fresh database file in
// a per-test temporary directory.
func SQLiteDataSource(t *testing.T, tablePrefix string) config.DataSource {
	t.Helper()
	return config.DataSource{
		Dialect:     config.DialectSQLite,
		DSN:         filepath.Join(t.TempDir(), "regions.db"),
		TablePrefix: tablePrefix,
	}
}

// Fixed principals used by the sample world.
var (
	SteveUUID = uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5")
	AlexUUID  = uuid.MustParse("ec561538-f3fd-461d-aff5-086b22154bce")
)

// SampleWorld returns a small world touching every region kind, flag shape
// and principal kind. Each call returns new regions.
func SampleWorld(t *testing.T) []*region.Region {
	t.Helper()

	global := region.NewGlobal(region.GlobalID)
	global.SetFlag("pvp", "deny")

	spawn := region.NewCuboid("spawn", region.Vector3{X: -50, Y: 0, Z: -50}, region.Vector3{X: 50, Y: 255, Z: 50})
	spawn.Priority = 10
	spawn.SetFlag("greeting", "Welcome to spawn!")
	spawn.SetFlag("deny-spawn", []interface{}{"creeper", "zombie"})
	spawn.SetFlag("teleport", map[string]interface{}{"x": 0, "y": 64, "z": 0})
	spawn.Owners.AddPlayer("Notch")
	spawn.Owners.AddGroup("admins")
	spawn.Members.AddPlayerUUID(SteveUUID)

	market, err := region.NewPolygon("market", []region.Vector2{{X: 0, Z: 0}, {X: 20, Z: 0}, {X: 20, Z: 15}, {X: 5, Z: 25}}, 60, 90)
	if err != nil {
		t.Fatalf("NewPolygon failed: %v", err)
	}
	market.Priority = 5
	if err := market.SetParent(spawn); err != nil {
		t.Fatalf("SetParent failed: %v", err)
	}
	market.SetFlag("use", "allow")
	market.Owners.AddPlayerUUID(AlexUUID)
	market.Members.AddPlayer("jeb_")
	market.Members.AddGroup("traders")

	stall := region.NewCuboid("market_stall-1", region.Vector3{X: 1, Y: 60, Z: 1}, region.Vector3{X: 4, Y: 70, Z: 4})
	if err := stall.SetParent(market); err != nil {
		t.Fatalf("SetParent failed: %v", err)
	}
	stall.Owners.AddPlayer("jeb_")

	return []*region.Region{global, spawn, market, stall}
}

// ByID indexes regions by id.
func ByID(regions []*region.Region) map[string]*region.Region {
	out := make(map[string]*region.Region, len(regions))
	for _, r := range regions {
		out[r.ID] = r
	}
	return out
}

// SortByID sorts regions in place by id and returns them.
func SortByID(regions []*region.Region) []*region.Region {
	sort.Slice(regions, func(i, j int) bool { return regions[i].ID < regions[j].ID })
	return regions
}
