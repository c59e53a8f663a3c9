package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/regionkeep/regionstore/internal/db"
	"github.com/regionkeep/regionstore/internal/monitoring"
	"github.com/regionkeep/regionstore/internal/region"
	"github.com/regionkeep/regionstore/internal/version"
)

// openDriver opens the configured store. The caller closes it.
func openDriver() (*db.Driver, error) {
	ds, err := Config.Store.DataSource()
	if err != nil {
		return nil, err
	}
	return db.NewDriver(*ds)
}

func withDriver(fn func(ctx context.Context, d *db.Driver) error) error {
	d, err := openDriver()
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(context.Background(), d)
}

type cmdMigrate struct {
	Up     cmdMigrateUp     `command:"up" description:"Apply all pending migrations"`
	Status cmdMigrateStatus `command:"status" description:"Show the schema version"`
}

type cmdMigrateUp struct{}

func (cmdMigrateUp) Execute([]string) error {
	return withDriver(func(ctx context.Context, d *db.Driver) error {
		if err := d.Initialize(ctx); err != nil {
			return err
		}
		status, err := d.MigrationStatus(ctx)
		if err != nil {
			return err
		}
		monitoring.Log.WithField("version", status.CurrentVersion).Info("schema is up to date")
		fmt.Fprintf(stdout, "schema at version %d\n", status.CurrentVersion)
		return nil
	})
}

type cmdMigrateStatus struct{}

func (cmdMigrateStatus) Execute([]string) error {
	return withDriver(func(ctx context.Context, d *db.Driver) error {
		status, err := d.MigrationStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "current version:   %d\n", status.CurrentVersion)
		fmt.Fprintf(stdout, "latest version:    %d\n", status.LatestVersion)
		fmt.Fprintf(stdout, "dirty:             %t\n", status.Dirty)
		fmt.Fprintf(stdout, "region tables:     %t\n", status.RegionTables)
		fmt.Fprintf(stdout, "migrations table:  %t\n", status.MigrationsTable)
		switch {
		case status.Dirty:
			fmt.Fprintln(stdout, "\nthe schema is dirty; a migration failed part way and needs manual repair")
		case status.Pending():
			fmt.Fprintln(stdout, "\nmigrations are pending; run 'regionctl migrate up'")
		}
		return nil
	})
}

type cmdWorlds struct{}

func (cmdWorlds) Execute([]string) error {
	return withDriver(func(ctx context.Context, d *db.Driver) error {
		worlds, err := d.GetAll(ctx)
		if err != nil {
			return err
		}
		for _, w := range worlds {
			fmt.Fprintln(stdout, w.Name())
		}
		return nil
	})
}

type cmdDump struct {
	World string `long:"world" required:"true" description:"World to dump"`
}

func (c cmdDump) Execute([]string) error {
	return withDriver(func(ctx context.Context, d *db.Driver) error {
		regions, err := d.Get(c.World).LoadAll(ctx)
		if err != nil {
			return err
		}
		docs := make([]regionDoc, len(regions))
		for i, r := range regions {
			docs[i] = newRegionDoc(r)
		}
		out, err := yaml.Marshal(docs)
		if err != nil {
			return errors.Wrap(err, "encoding regions")
		}
		_, err = stdout.Write(out)
		return err
	})
}

type cmdCopy struct {
	From string `long:"from" required:"true" description:"Source world"`
	To   string `long:"to" required:"true" description:"Target world"`
}

func (c cmdCopy) Execute([]string) error {
	if c.From == c.To {
		return errors.New("--from and --to name the same world")
	}
	return withDriver(func(ctx context.Context, d *db.Driver) error {
		regions, err := d.Get(c.From).LoadAll(ctx)
		if err != nil {
			return err
		}
		if err := d.Get(c.To).SaveAll(ctx, regions); err != nil {
			return err
		}
		monitoring.Log.WithFields(log.Fields{"from": c.From, "to": c.To, "regions": len(regions)}).
			Info("copied regions")
		fmt.Fprintf(stdout, "copied %d regions from %s to %s\n", len(regions), c.From, c.To)
		return nil
	})
}

type cmdVersion struct{}

func (cmdVersion) Execute([]string) error {
	_, err := fmt.Fprintln(stdout, version.String())
	return err
}

type domainDoc struct {
	Players []string `yaml:"players,omitempty"`
	UUIDs   []string `yaml:"uuids,omitempty"`
	Groups  []string `yaml:"groups,omitempty"`
}

type regionDoc struct {
	ID       string                 `yaml:"id"`
	Type     string                 `yaml:"type"`
	Priority int                    `yaml:"priority"`
	Parent   string                 `yaml:"parent,omitempty"`
	Min      *region.Vector3        `yaml:"min,omitempty,flow"`
	Max      *region.Vector3        `yaml:"max,omitempty,flow"`
	Points   [][2]int               `yaml:"points,omitempty,flow"`
	MinY     *int                   `yaml:"min-y,omitempty"`
	MaxY     *int                   `yaml:"max-y,omitempty"`
	Flags    map[string]interface{} `yaml:"flags,omitempty"`
	Owners   domainDoc              `yaml:"owners,omitempty"`
	Members  domainDoc              `yaml:"members,omitempty"`
}

func newDomainDoc(d *region.Domain) domainDoc {
	if d == nil {
		return domainDoc{}
	}
	doc := domainDoc{Players: d.Players(), Groups: d.Groups()}
	for _, id := range d.UUIDs() {
		doc.UUIDs = append(doc.UUIDs, id.String())
	}
	return doc
}

func newRegionDoc(r *region.Region) regionDoc {
	doc := regionDoc{
		ID:       r.ID,
		Type:     string(r.Kind),
		Priority: r.Priority,
		Flags:    r.Flags,
		Owners:   newDomainDoc(r.Owners),
		Members:  newDomainDoc(r.Members),
	}
	if r.Parent != nil {
		doc.Parent = r.Parent.ID
	}
	if c := r.Cuboid; c != nil {
		doc.Min, doc.Max = &c.Min, &c.Max
	}
	if p := r.Polygon; p != nil {
		for _, pt := range p.Points {
			doc.Points = append(doc.Points, [2]int{pt.X, pt.Z})
		}
		doc.MinY, doc.MaxY = &p.MinY, &p.MaxY
	}
	return doc
}
