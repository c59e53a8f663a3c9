// Package metrics defines the Prometheus collectors exported by the region
// store. Collectors are package-level and registered explicitly by the
// embedding process through Register.
package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Label values shared by the store.
const (
	Ok   = "ok"
	Fail = "fail"

	ModeSnapshot = "snapshot"
	ModeChanges  = "changes"

	KindUserName = "user_name"
	KindUserUUID = "user_uuid"
	KindGroup    = "group"

	SkipPolygonPoints = "polygon_points"
	SkipPlayerUUID    = "player_uuid"
	SkipParentLink    = "parent_link"
	SkipRegionType    = "region_type"
)

// Connection acquisition.
var (
	ConnectionAcquireSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "regionstore_connection_acquire_seconds",
		Help:    "Time taken to acquire a database connection.",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 2, 6},
	})
	ConnectionTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "regionstore_connection_timeouts_total",
		Help: "Connection acquisitions abandoned after the connect timeout.",
	})
)

// Loads and saves.
var (
	LoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regionstore_loads_total",
		Help: "World loads by status.",
	}, []string{"status"})
	SavesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regionstore_saves_total",
		Help: "World saves by mode and status.",
	}, []string{"mode", "status"})
	RegionsLoadedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "regionstore_regions_loaded_total",
		Help: "Regions materialized by loads.",
	})
	SkippedRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regionstore_skipped_rows_total",
		Help: "Stored rows skipped while loading, by reason.",
	}, []string{"reason"})
)

// PrincipalInsertsTotal counts user and group rows created by the principal cache.
var PrincipalInsertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "regionstore_principal_inserts_total",
	Help: "Principal rows inserted, by kind.",
}, []string{"kind"})

// Collectors returns every collector defined by this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		ConnectionAcquireSeconds,
		ConnectionTimeoutsTotal,
		LoadsTotal,
		SavesTotal,
		RegionsLoadedTotal,
		SkippedRowsTotal,
		PrincipalInsertsTotal,
	}
}

// Register registers the store's collectors with reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			return errors.Wrap(err, "registering collector")
		}
	}
	return nil
}

// Status maps an operation error to a status label value.
func Status(err error) string {
	if err != nil {
		return Fail
	}
	return Ok
}
