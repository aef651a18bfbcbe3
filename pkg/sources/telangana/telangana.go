// Package telangana harvests the Telangana Legislature debates archive. The
// whole archive is one nested list (house, term, session, sitting, day) on
// a single page, so enumeration fetches and flattens that tree.
package telangana

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"iter"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	errs "legmirror/pkg/errors"
	"legmirror/pkg/harvest"
	"legmirror/pkg/httpclient"
	"legmirror/pkg/logger"
	"legmirror/pkg/workunit"
)

const (
	Name = "telangana"

	archivePath = "/debates"
)

// Segment positions within a leaf's path.
const (
	segHouse = iota
	segTerm
	segSession
	segSitting
	segDay
	segFile
	segCount
)

type Options struct {
	BaseURL string
	// MinYear drops terms that started before the state was formed.
	MinYear int
	Logger  logger.Logger
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
		return nil, fmt.Errorf("invalid telangana base url %q", opts.BaseURL)
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

// Enumerate fetches the archive page and yields one Path per downloadable
// day in document order.
func (s *Source) Enumerate(ctx context.Context) (iter.Seq[workunit.Unit], error) {
	pageURL := s.base.ResolveReference(&url.URL{Path: archivePath}).String()
	doc, err := s.client.GetDocument(ctx, pageURL, nil)
	if err != nil {
		return nil, err
	}
	leaves, err := s.walk(doc)
	if err != nil {
		return nil, err
	}
	s.log.InfoWithFields("archive tree parsed", map[string]interface{}{
		"documents": len(leaves),
	})
	return workunit.Slice(leaves), nil
}

func (s *Source) walk(doc *goquery.Document) ([]workunit.Path, error) {
	tree := doc.Find("ul.tree").First()
	if tree.Length() == 0 {
		return nil, errs.Parse(nil, "archive page has no ul.tree")
	}

	var leaves []workunit.Path
	seen := make(map[string]bool)
	add := func(p workunit.Path) {
		key := p.Key()
		if seen[key] {
			return
		}
		seen[key] = true
		p.Index = len(leaves)
		leaves = append(leaves, p)
	}

	tree.ChildrenFiltered("li").Each(func(_ int, houseLi *goquery.Selection) {
		houseSpan := houseLi.Find("span.English.toggler").First()
		if houseSpan.Length() == 0 {
			return
		}
		house := houseName(httpclient.SelectionText(houseSpan))

		houseLi.Find("ul").First().ChildrenFiltered("li").Each(func(_ int, termLi *goquery.Selection) {
			term := firstSpanText(termLi)
			if term == "" {
				return
			}
			if html, _ := goquery.OuterHtml(termLi); strings.Contains(html, "unitedCouncilID") || strings.Contains(html, "aplegislature.org") {
				s.log.DebugWithFields("skipping pre-bifurcation term", map[string]interface{}{"house": house, "term": term})
				return
			}

			children(termLi, func(sessionLi *goquery.Selection) {
				session := firstSpanText(sessionLi)
				if session == "" {
					return
				}
				children(sessionLi, func(sittingLi *goquery.Selection) {
					sitting := firstSpanText(sittingLi)
					if sitting == "" {
						return
					}
					children(sittingLi, func(dayLi *goquery.Selection) {
						link := dayLi.Find("a").First()
						if link.Length() == 0 {
							return
						}
						href := strings.TrimSpace(link.AttrOr("href", ""))
						label := httpclient.SelectionText(link)
						if href == "" || href == "#" || strings.Contains(href, "No PDF Found") {
							return
						}
						if s.skip(href, term, session) {
							s.log.DebugWithFields("skipping non-Telangana document", map[string]interface{}{"term": term, "day": label})
							return
						}
						name := FileName(href, label)
						if name == "" {
							return
						}
						ref, err := s.base.Parse(href)
						if err != nil {
							return
						}
						segments := make([]string, segCount)
						segments[segHouse] = house
						segments[segTerm] = term
						segments[segSession] = session
						segments[segSitting] = sitting
						segments[segDay] = dayLabel(label)
						segments[segFile] = name
						add(workunit.Path{Segments: segments, Ref: ref.String()})
					})
				})
			})
		})
	})
	return leaves, nil
}

// children calls fn for every li of every ul directly under li.
func children(li *goquery.Selection, fn func(*goquery.Selection)) {
	li.ChildrenFiltered("ul").Each(func(_ int, ul *goquery.Selection) {
		ul.ChildrenFiltered("li").Each(func(_ int, child *goquery.Selection) {
			fn(child)
		})
	})
}

func firstSpanText(li *goquery.Selection) string {
	return httpclient.SelectionText(li.Find("span").First())
}

func houseName(text string) string {
	switch {
	case strings.Contains(text, "Assembly"):
		return "Assembly"
	case strings.Contains(text, "Council"):
		return "Council"
	default:
		return "Unknown"
	}
}

var yearPattern = regexp.MustCompile(`\d{4}`)

// skip drops documents from the united Andhra Pradesh legislature and the
// old Hyderabad state.
func (s *Source) skip(href, term, session string) bool {
	if strings.Contains(href, "aplegislature.org") {
		return true
	}
	t, sess := strings.ToLower(term), strings.ToLower(session)
	if strings.Contains(t, "hyderabad") && !strings.Contains(t, "telangana") {
		return true
	}
	if strings.Contains(t, "andhra pradesh") || strings.Contains(sess, "andhra pradesh") {
		return true
	}
	if y := yearPattern.FindString(term); y != "" && s.opts.MinYear > 0 {
		if year, _ := strconv.Atoi(y); year < s.opts.MinYear {
			return true
		}
	}
	return false
}

var (
	fileNameParam = regexp.MustCompile(`fileName=([^&]+)`)
	dayDate       = regexp.MustCompile(`(\d{2})-(\d{2})-(\d{4})`)
	dayNumber     = regexp.MustCompile(`(?i)day\s*(\d+)`)
)

// FileName picks the staged name for a day's PDF: the fileName parameter of
// the link (plain or inside a base64 q= parameter), else one made from the
// day label. Empty means no name could be found.
func FileName(href, label string) string {
	name := ""
	if m := fileNameParam.FindStringSubmatch(href); m != nil {
		name = m[1]
	} else if _, q, ok := strings.Cut(href, "q="); ok {
		name = fileNameFromToken(q)
	}
	if name != "" {
		if unescaped, err := url.QueryUnescape(name); err == nil {
			name = unescaped
		}
		name = strings.ReplaceAll(path.Base(strings.ReplaceAll(name, "\\", "/")), " ", "_")
		if name != "." && name != "/" {
			return name
		}
	}

	if m := dayDate.FindStringSubmatch(label); m != nil {
		return fmt.Sprintf("day_%s_%s_%s.pdf", m[1], m[2], m[3])
	}
	if m := dayNumber.FindStringSubmatch(label); m != nil {
		return "day_" + m[1] + ".pdf"
	}
	return ""
}

func fileNameFromToken(token string) string {
	if unescaped, err := url.PathUnescape(token); err == nil {
		token = unescaped
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		decoded, err := enc.DecodeString(token)
		if err != nil {
			continue
		}
		if m := fileNameParam.FindStringSubmatch(string(decoded)); m != nil {
			return m[1]
		}
	}
	return ""
}

var labelNoise = strings.NewReplacer("Day", "", "(", " ", ")", " ")

func dayLabel(label string) string {
	return strings.Join(strings.Fields(labelNoise.Replace(label)), " ")
}

// Fetch needs no request: the tree walk already found the document.
func (s *Source) Fetch(ctx context.Context, unit workunit.Unit) (*harvest.Raw, error) {
	p, ok := unit.(workunit.Path)
	if !ok || len(p.Segments) != segCount {
		return nil, errs.Parse(nil, "telangana expects archive tree paths, got %s %q", unit.Kind(), unit.Key())
	}

	fields := map[string]string{
		"house":   p.Segments[segHouse],
		"term":    p.Segments[segTerm],
		"session": p.Segments[segSession],
		"sitting": p.Segments[segSitting],
		"day":     p.Segments[segDay],
	}
	return &harvest.Raw{
		Unit:      unit,
		SourceURL: p.Ref,
		Documents: []harvest.Document{{
			Key:    p.Segments[segFile],
			Title:  p.Segments[segHouse] + " (" + p.Segments[segDay] + ")",
			Fields: fields,
			Files: []harvest.FileRef{{
				Name:        p.Segments[segFile],
				URL:         p.Ref,
				ContentType: "application/pdf",
			}},
			SourceURL: p.Ref,
		}},
	}, nil
}

func (s *Source) Download(ctx context.Context, ref harvest.FileRef, w io.Writer) (int64, error) {
	return s.client.Download(ctx, ref.URL, ref.ContentType, w)
}
