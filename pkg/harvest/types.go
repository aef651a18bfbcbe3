package harvest

import (
	"context"
	"io"
	"iter"

	"legmirror/pkg/metadata"
	"legmirror/pkg/workunit"
)

// FileRef points at a file the source can serve.
type FileRef struct {
	// Name is the filename the file is staged and uploaded under.
	Name string
	URL  string
	// ContentType, when set, is the type the response must carry.
	ContentType string
}

// Document is one record found on a unit's page or listing.
type Document struct {
	// Key identifies the document within its unit.
	Key       string
	Title     string
	Fields    map[string]string
	Files     []FileRef
	SourceURL string
}

// Raw is what a source returns for one unit.
type Raw struct {
	Unit      workunit.Unit
	SourceURL string
	Documents []Document
}

// StagedFile is a downloaded file waiting for upload.
type StagedFile struct {
	Name string
	Path string
	Size int64
}

// Artifact is one item destined for the sink.
type Artifact struct {
	// ID is the natural key in the sink.
	ID       string
	Metadata metadata.Metadata
	Files    []FileRef
	// Staged is filled by the harvester after downloading Files.
	Staged []StagedFile
}

// Source enumerates and fetches work units from one portal.
type Source interface {
	Name() string
	// Enumerate yields every unit in order. The range is fixed when the
	// source is built, so a run never chases a moving "today".
	Enumerate(ctx context.Context) (iter.Seq[workunit.Unit], error)
	// Fetch returns the unit's documents. Errors are typed: network,
	// not_found or parsing.
	Fetch(ctx context.Context, unit workunit.Unit) (*Raw, error)
	// Download streams one file into w.
	Download(ctx context.Context, ref FileRef, w io.Writer) (int64, error)
}

// KeyResolver is implemented by sources whose past uploads can be found in
// the sink and mapped back to units.
type KeyResolver interface {
	// SeedQuery is the sink search query matching this source's items.
	SeedQuery() string
	// UnitForKey maps a sink identifier back to its unit.
	UnitForKey(id string) (workunit.Unit, bool)
}

// Transform turns fetched content into sink artifacts. It must be pure.
type Transform func(raw *Raw) ([]*Artifact, error)

// Sink stores artifacts.
type Sink interface {
	// Exists reports whether an item with id is already stored.
	Exists(ctx context.Context, id string) (bool, error)
	// Upload stores the artifact and returns its remote identifier.
	Upload(ctx context.Context, artifact *Artifact) (string, error)
}

// Lister is implemented by sinks that can search their items.
type Lister interface {
	List(ctx context.Context, query string) ([]string, error)
}

// Verifier is implemented by sinks that can check credentials up front.
type Verifier interface {
	Verify(ctx context.Context) error
}
