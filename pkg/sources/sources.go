// Package sources registers the legislature portals legmirror can harvest.
package sources

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"legmirror/pkg/config"
	"legmirror/pkg/harvest"
	"legmirror/pkg/httpclient"
	"legmirror/pkg/logger"
	"legmirror/pkg/sources/karnataka"
	"legmirror/pkg/sources/rajyasabha"
	"legmirror/pkg/sources/telangana"
	"legmirror/pkg/workunit"
)

// Entry describes one registered source.
type Entry struct {
	Name        string
	Description string
	Kind        workunit.Kind
	// MinInterval is the default gap between calls to the portal.
	MinInterval time.Duration
	// Seedable sources can rebuild their checkpoint from the archive.
	Seedable bool

	build func(cfg *config.Config, client *httpclient.Client, log logger.Logger, now time.Time) (harvest.Source, harvest.Transform, error)
}

var registry = []Entry{
	{
		Name:        rajyasabha.Name,
		Description: "Rajya Sabha debates digital library (rsdebate.nic.in)",
		Kind:        workunit.KindID,
		MinInterval: 500 * time.Millisecond,
		Seedable:    true,
		build: func(cfg *config.Config, client *httpclient.Client, _ logger.Logger, _ time.Time) (harvest.Source, harvest.Transform, error) {
			rs := cfg.Sources.RajyaSabha
			src, err := rajyasabha.New(client, rajyasabha.Options{
				BaseURL: rs.BaseURL,
				StartID: rs.StartID,
				EndID:   rs.EndID,
			})
			if err != nil {
				return nil, nil, err
			}
			return src, rajyasabha.Transform, nil
		},
	},
	{
		Name:        karnataka.Name,
		Description: "Karnataka Legislative Assembly debates search API",
		Kind:        workunit.KindDate,
		MinInterval: time.Second,
		build: func(cfg *config.Config, client *httpclient.Client, log logger.Logger, now time.Time) (harvest.Source, harvest.Transform, error) {
			ka := cfg.Sources.Karnataka
			start := karnataka.FirstSitting
			if ka.StartDate != "" {
				d, err := workunit.ParseDate(ka.StartDate)
				if err != nil {
					return nil, nil, err
				}
				start = d
			}
			end := workunit.DateOf(now)
			if ka.EndDate != "" {
				d, err := workunit.ParseDate(ka.EndDate)
				if err != nil {
					return nil, nil, err
				}
				end = d
			}
			src, err := karnataka.New(client, karnataka.Options{
				BaseURL: ka.BaseURL,
				Start:   start,
				End:     end,
				Logger:  log,
			})
			if err != nil {
				return nil, nil, err
			}
			return src, karnataka.Transform, nil
		},
	},
	{
		Name:        telangana.Name,
		Description: "Telangana Legislature debates archive tree",
		Kind:        workunit.KindPath,
		MinInterval: time.Second,
		build: func(cfg *config.Config, client *httpclient.Client, log logger.Logger, _ time.Time) (harvest.Source, harvest.Transform, error) {
			ts := cfg.Sources.Telangana
			src, err := telangana.New(client, telangana.Options{
				BaseURL: ts.BaseURL,
				MinYear: ts.MinYear,
				Logger:  log,
			})
			if err != nil {
				return nil, nil, err
			}
			return src, telangana.Transform, nil
		},
	},
}

// Names lists registered sources in registration order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for _, e := range registry {
		names = append(names, e.Name)
	}
	return names
}

// Entries returns a copy of the registry.
func Entries() []Entry {
	return slices.Clone(registry)
}

// Lookup finds a source by name, ignoring case.
func Lookup(name string) (Entry, bool) {
	for _, e := range registry {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return Entry{}, false
}

// Build constructs the named source and its transform. The enumeration
// range of date sources is fixed to now's calendar day.
func Build(name string, cfg *config.Config, client *httpclient.Client, log logger.Logger, now time.Time) (harvest.Source, harvest.Transform, error) {
	e, ok := Lookup(name)
	if !ok {
		return nil, nil, fmt.Errorf("unknown source %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return e.build(cfg, client, log, now)
}

// MinInterval is the configured pacing for a source, falling back to the
// source's own default.
func MinInterval(e Entry, cfg *config.Config) time.Duration {
	if cfg.Harvest.MinInterval > 0 {
		return cfg.Harvest.MinInterval
	}
	return e.MinInterval
}
