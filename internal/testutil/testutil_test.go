package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/regionkeep/regionstore/internal/config"
	"github.com/regionkeep/regionstore/internal/region"
)

func TestSampleWorld(t *testing.T) {
	regions := SampleWorld(t)
	byID := ByID(regions)

	assert.Len(t, byID, len(regions), "ids must be unique")
	for _, r := range regions {
		assert.True(t, region.ValidID(r.ID), r.ID)
	}
	assert.Same(t, byID["spawn"], byID["market"].Parent)
	assert.Same(t, byID["market"], byID["market_stall-1"].Parent)

	again := SampleWorld(t)
	assert.NotSame(t, regions[0], again[0])
}

func TestSQLiteDataSource(t *testing.T) {
	ds := SQLiteDataSource(t, "wg_")
	assert.NoError(t, ds.Validate())
	assert.Equal(t, config.DialectSQLite, ds.GetDialect())
	assert.Equal(t, "wg_", ds.TablePrefix)
}

func TestSortByID(t *testing.T) {
	regions := SortByID([]*region.Region{region.NewGlobal("b"), region.NewGlobal("a")})
	assert.Equal(t, "a", regions[0].ID)
}
