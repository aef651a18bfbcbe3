// Package rajyasabha harvests the Rajya Sabha debates digital library, a
// DSpace repository addressed by sequential handle numbers.
package rajyasabha

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/url"
	"path"
	"strconv"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	errs "legmirror/pkg/errors"
	"legmirror/pkg/harvest"
	"legmirror/pkg/httpclient"
	"legmirror/pkg/workunit"
)

const (
	Name = "rajyasabha"

	handlePrefix     = "/handle/123456789/"
	identifierPrefix = "rsdebate.nic.in."
	collectionMarker = "Appears in Collections"
)

type Options struct {
	BaseURL string
	StartID int64
	EndID   int64
}

// Source walks handle IDs StartID..EndID.
type Source struct {
	client    *httpclient.Client
	base      *url.URL
	opts      Options
	converter *md.Converter
}

func New(client *httpclient.Client, opts Options) (*Source, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid rajyasabha base url %q", opts.BaseURL)
	}
	if opts.StartID <= 0 || opts.EndID < opts.StartID {
		return nil, fmt.Errorf("invalid rajyasabha id range %d..%d", opts.StartID, opts.EndID)
	}
	return &Source{
		client:    client,
		base:      base,
		opts:      opts,
		converter: md.NewConverter("", true, nil),
	}, nil
}

func (s *Source) Name() string { return Name }

func (s *Source) Enumerate(ctx context.Context) (iter.Seq[workunit.Unit], error) {
	return workunit.IDRange(s.opts.StartID, s.opts.EndID), nil
}

// PageURL is the item page for a handle ID.
func (s *Source) PageURL(id workunit.ID) string {
	return s.base.ResolveReference(&url.URL{Path: handlePrefix + id.Key()}).String()
}

// Fetch loads the item page. Handles that 404 or that render without a
// collection link are reported as not found.
func (s *Source) Fetch(ctx context.Context, unit workunit.Unit) (*harvest.Raw, error) {
	id, ok := unit.(workunit.ID)
	if !ok {
		return nil, errs.Parse(nil, "rajyasabha expects id units, got %s %q", unit.Kind(), unit.Key())
	}

	pageURL := s.PageURL(id)
	doc, err := s.client.GetDocument(ctx, pageURL, nil)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(doc.Text(), collectionMarker) {
		return nil, errs.NotFound("handle %d is not a debate item", id)
	}

	fields := s.parseFields(doc)
	files := s.parseFiles(doc)

	return &harvest.Raw{
		Unit:      unit,
		SourceURL: pageURL,
		Documents: []harvest.Document{{
			Key:       id.Key(),
			Title:     fields["debate_title"],
			Fields:    fields,
			Files:     files,
			SourceURL: pageURL,
		}},
	}, nil
}

// parseFields reads the label/value rows of the item display table.
func (s *Source) parseFields(doc *goquery.Document) map[string]string {
	fields := make(map[string]string)
	doc.Find("table.itemDisplayTable").First().Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		label := strings.TrimSuffix(httpclient.SelectionText(cells.Eq(0)), ":")
		key := fieldKey(label)
		if key == "" {
			return
		}
		fields[key] = s.cellValue(cells.Eq(1))
	})
	return fields
}

// cellValue keeps line breaks and links of marked-up cells as markdown.
func (s *Source) cellValue(cell *goquery.Selection) string {
	if cell.Children().Length() == 0 {
		return httpclient.SelectionText(cell)
	}
	inner, err := cell.Html()
	if err != nil {
		return httpclient.SelectionText(cell)
	}
	text, err := s.converter.ConvertString(inner)
	if err != nil || strings.TrimSpace(text) == "" {
		return httpclient.SelectionText(cell)
	}
	return strings.TrimSpace(text)
}

func (s *Source) parseFiles(doc *goquery.Document) []harvest.FileRef {
	var files []harvest.FileRef
	doc.Find("table.panel-body").First().Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 5 {
			return
		}
		links := httpclient.Anchors(cells.First().Find("a").First(), s.base)
		if len(links) == 0 || !strings.HasSuffix(strings.ToLower(links[0].Href), ".pdf") {
			return
		}
		files = append(files, harvest.FileRef{
			Name: fileName(links[0].Href, len(files)),
			URL:  links[0].Href,
		})
	})
	return files
}

func (s *Source) Download(ctx context.Context, ref harvest.FileRef, w io.Writer) (int64, error) {
	return s.client.Download(ctx, ref.URL, ref.ContentType, w)
}

// SeedQuery matches every item this source has uploaded.
func (s *Source) SeedQuery() string {
	return `creator:"` + Creator + `"`
}

// UnitForKey maps rsdebate.nic.in.{id} back to its handle ID.
func (s *Source) UnitForKey(id string) (workunit.Unit, bool) {
	rest, ok := strings.CutPrefix(id, identifierPrefix)
	if !ok {
		return nil, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n <= 0 {
		return nil, false
	}
	return workunit.ID(n), true
}

// Identifier is the archive item name for a handle ID.
func Identifier(key string) string {
	return identifierPrefix + key
}

var keyRepairs = strings.NewReplacer("minsitry", "ministry")

// fieldKey turns a table label into a field key, repairing the portal's
// known misspellings.
func fieldKey(label string) string {
	key := strings.ToLower(strings.TrimSpace(label))
	key = strings.Join(strings.Fields(key), "_")
	return strings.Trim(keyRepairs.Replace(key), "_")
}

func fileName(href string, index int) string {
	if u, err := url.Parse(href); err == nil {
		if name, err := url.PathUnescape(path.Base(u.Path)); err == nil && strings.HasSuffix(strings.ToLower(name), ".pdf") {
			return strings.ReplaceAll(name, " ", "_")
		}
	}
	return fmt.Sprintf("document_%d.pdf", index+1)
}
