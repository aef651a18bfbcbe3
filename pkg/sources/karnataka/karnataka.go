// Package karnataka harvests Karnataka Legislative Assembly debates through
// the portal's search API, one sitting date at a time.
package karnataka

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/url"
	"sort"
	"strconv"
	"strings"

	errs "legmirror/pkg/errors"
	"legmirror/pkg/harvest"
	"legmirror/pkg/httpclient"
	"legmirror/pkg/logger"
	"legmirror/pkg/workunit"
)

const (
	Name = "karnataka"

	listPath = "/api/sd/sh"
	pdfPath  = "/api/fs/section/debates/kla"
)

// FirstSitting is the first day the assembly met.
var FirstSitting = workunit.NewDate(1952, 6, 18)

type Options struct {
	BaseURL string
	// Start and End bound the dates walked, both inclusive. End is fixed
	// when the source is built.
	Start  workunit.Date
	End    workunit.Date
	Logger logger.Logger
}

type Source struct {
	client *httpclient.Client
	base   *url.URL
	opts   Options
	log    logger.Logger
}

func New(client *httpclient.Client, opts Options) (*Source, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid karnataka base url %q", opts.BaseURL)
	}
	if opts.Start.After(opts.End) {
		return nil, fmt.Errorf("karnataka start %s is after end %s", opts.Start, opts.End)
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Source{
		client: client,
		base:   base,
		opts:   opts,
		log:    log.WithField("source", Name),
	}, nil
}

func (s *Source) Name() string { return Name }

func (s *Source) Enumerate(ctx context.Context) (iter.Seq[workunit.Unit], error) {
	return workunit.DateRange(s.opts.Start, s.opts.End), nil
}

type listResponse struct {
	DebateResults []struct {
		Source map[string]interface{} `json:"_source"`
	} `json:"debateResults"`
}

// searchParams mirrors the portal's search form; every filter but the
// section date is left blank.
func searchParams(date string) map[string]string {
	params := map[string]string{"qt": "PRC", "sectionDateFrm": date, "sectionDateTo": date}
	for _, blank := range []string{
		"ln", "srt", "qp", "dtf", "anf", "snf", "dsubfEng", "dsubfKan", "dpfEng",
		"dpfKan", "dbf", "ytf", "issfEng", "issfKan", "tagfKan", "tagfEng",
	} {
		params[blank] = ""
	}
	return params
}

// Fetch lists the debates recorded on one date. A date without sittings
// yields no documents.
func (s *Source) Fetch(ctx context.Context, unit workunit.Unit) (*harvest.Raw, error) {
	date, ok := unit.(workunit.Date)
	if !ok {
		return nil, errs.Parse(nil, "karnataka expects date units, got %s %q", unit.Kind(), unit.Key())
	}

	listURL := s.resolve(listPath)
	var out listResponse
	if err := s.client.GetJSON(ctx, listURL, searchParams(date.Key()), &out); err != nil {
		return nil, err
	}

	raw := &harvest.Raw{Unit: unit, SourceURL: listURL + "?sectionDateFrm=" + date.Key()}
	seen := make(map[string]bool)
	for _, result := range out.DebateResults {
		fields := flatten(result.Source)
		book, start, end := fields["bookId"], fields["startPage"], fields["endPage"]
		if book == "" || start == "" || end == "" {
			s.log.WarnWithFields("debate without page range", map[string]interface{}{
				"date":   date.Key(),
				"fields": len(fields),
			})
			continue
		}

		key := book + "_" + start + "_" + end
		if seen[key] {
			continue
		}
		seen[key] = true

		pdfURL := s.resolve(fmt.Sprintf("%s/%s/%s/%s", pdfPath, url.PathEscape(book), url.PathEscape(start), url.PathEscape(end)))
		raw.Documents = append(raw.Documents, harvest.Document{
			Key:    key,
			Title:  fields["debate_subject_kan"],
			Fields: fields,
			Files: []harvest.FileRef{{
				Name:        key + ".pdf",
				URL:         pdfURL,
				ContentType: "application/pdf",
			}},
			SourceURL: pdfURL,
		})
	}
	return raw, nil
}

func (s *Source) Download(ctx context.Context, ref harvest.FileRef, w io.Writer) (int64, error) {
	return s.client.Download(ctx, ref.URL, ref.ContentType, w)
}

func (s *Source) resolve(p string) string {
	return s.base.ResolveReference(&url.URL{Path: strings.TrimRight(s.base.Path, "/") + p}).String()
}

// flatten renders a search hit as strings. Lists are joined with ", " and
// whole floats lose their fraction, so page 12 stays "12".
func flatten(source map[string]interface{}) map[string]string {
	out := make(map[string]string, len(source))
	for k, v := range source {
		if s := stringify(v); s != "" {
			out[k] = s
		}
	}
	return out
}

func stringify(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := stringify(v[k]); s != "" {
				parts = append(parts, k+": "+s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}
