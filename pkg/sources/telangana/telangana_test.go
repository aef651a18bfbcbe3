package telangana

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "legmirror/pkg/errors"
	"legmirror/pkg/httpclient"
	"legmirror/pkg/logger"
	"legmirror/pkg/metadata"
	"legmirror/pkg/workunit"
)

const archivePage = `<html><body>
<ul class="tree">
  <li><span class="English toggler">Telangana Legislative Assembly</span>
    <ul>
      <li><span>Second Assembly (2018-2023)</span>
        <ul>
          <li><span>First Session</span>
            <ul>
              <li><span>Sitting 1</span>
                <ul>
                  <li><a href="/PreviewPage.do?fileName=Uploads/ASSEMBLY-19-01-2019.pdf">Day 1 (19-01-2019)</a></li>
                  <li><a href="#">Day 2</a></li>
                  <li><a href="/PreviewPage.do?q=bW9kdWxlPWRlYmF0ZXMmZmlsZU5hbWU9VXBsb2FkcyUyRkFTU0VNQkxZLTIxLTAxLTIwMTkucGRm">Day 3 (21-01-2019)</a></li>
                  <li><a href="/view?id=9">Day 4 (22-01-2019)</a></li>
                  <li><a href="/PreviewPage.do?fileName=Uploads/ASSEMBLY-19-01-2019.pdf">Day 1 (19-01-2019)</a></li>
                </ul>
              </li>
            </ul>
          </li>
          <li><span>Andhra Pradesh Reorganisation Session</span>
            <ul><li><span>Sitting 1</span><ul><li><a href="/PreviewPage.do?fileName=AP.pdf">Day 1</a></li></ul></li></ul>
          </li>
        </ul>
      </li>
      <li><span>Thirteenth Assembly (2009-2014)</span>
        <ul><li><span>Session</span><ul><li><span>Sitting</span><ul><li><a href="/PreviewPage.do?fileName=OLD.pdf">Day 1</a></li></ul></li></ul></li></ul>
      </li>
    </ul>
  </li>
  <li><span class="English toggler">Legislative Council</span>
    <ul>
      <li><span id="unitedCouncilID">United Council</span>
        <ul><li><span>Session</span><ul><li><span>Sitting</span><ul><li><a href="/PreviewPage.do?fileName=UNITED.pdf">Day 1</a></li></ul></li></ul></li></ul>
      </li>
      <li><span>Composite Council</span>
        <ul><li><span>Session 1</span><ul><li><span>Sitting 1</span><ul>
          <li><a href="http://www.aplegislature.org/x.pdf">Day 1</a></li>
          <li><a href="/PreviewPage.do?fileName=COMPOSITE.pdf">Day 2</a></li>
        </ul></li></ul></li></ul>
      </li>
      <li><span>Council (2014-)</span>
        <ul><li><span>Session 3</span><ul><li><span>Sitting 2</span><ul>
          <li><a href="#">Day 1</a></li>
          <li><a href="/PreviewPage.do?fileName=COUNCIL-05-03-2015.pdf">Day 2 (05-03-2015)</a></li>
        </ul></li></ul></li></ul>
      </li>
    </ul>
  </li>
</ul>
</body></html>`

func newTestSource(t *testing.T, page string) *Source {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /debates", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, page)
	})
	mux.HandleFunc("GET /PreviewPage.do", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF "+r.URL.RawQuery)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := httpclient.New(httpclient.Options{Logger: logger.NewNopLogger()})
	src, err := New(client, Options{BaseURL: srv.URL, MinYear: 2014, Logger: logger.NewNopLogger()})
	require.NoError(t, err)
	return src
}

func enumerate(t *testing.T, src *Source) []workunit.Path {
	t.Helper()
	seq, err := src.Enumerate(context.Background())
	require.NoError(t, err)
	var out []workunit.Path
	for u := range seq {
		out = append(out, u.(workunit.Path))
	}
	return out
}

func TestEnumerateWalksTree(t *testing.T) {
	src := newTestSource(t, archivePage)
	paths := enumerate(t, src)
	require.Len(t, paths, 4)

	var files []string
	for i, p := range paths {
		assert.Equal(t, i, p.Index)
		files = append(files, p.Segments[segFile])
	}
	assert.Equal(t, []string{
		"ASSEMBLY-19-01-2019.pdf",
		"ASSEMBLY-21-01-2019.pdf",
		"day_22_01_2019.pdf",
		"COUNCIL-05-03-2015.pdf",
	}, files)

	first := paths[0]
	assert.Equal(t, []string{
		"Assembly", "Second Assembly (2018-2023)", "First Session", "Sitting 1", "1 19-01-2019", "ASSEMBLY-19-01-2019.pdf",
	}, first.Segments)
	assert.Equal(t, src.base.String()+"/PreviewPage.do?fileName=Uploads/ASSEMBLY-19-01-2019.pdf", first.Ref)
	assert.Equal(t, "Council", paths[3].Segments[segHouse])
}

func TestEnumerateWithoutTree(t *testing.T) {
	src := newTestSource(t, "<html><body><p>maintenance</p></body></html>")
	_, err := src.Enumerate(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeParsing))
}

func TestFileName(t *testing.T) {
	tests := []struct {
		href, label, want string
	}{
		{"/PreviewPage.do?fileName=Uploads/A-1.pdf&x=1", "", "A-1.pdf"},
		{"/PreviewPage.do?fileName=My%20File.pdf", "", "My_File.pdf"},
		{"/PreviewPage.do?q=bW9kdWxlPWRlYmF0ZXMmZmlsZU5hbWU9VXBsb2FkcyUyRkFTU0VNQkxZLTIxLTAxLTIwMTkucGRm", "", "ASSEMBLY-21-01-2019.pdf"},
		{"/PreviewPage.do?q=not-base64!", "Day 3", "day_3.pdf"},
		{"/view", "Day 4 (22-01-2019)", "day_22_01_2019.pdf"},
		{"/view", "Index", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileName(tt.href, tt.label), tt.href)
	}
}

func TestFetchAndTransform(t *testing.T) {
	src := newTestSource(t, archivePage)
	paths := enumerate(t, src)

	raw, err := src.Fetch(context.Background(), paths[0])
	require.NoError(t, err)
	require.Len(t, raw.Documents, 1)
	doc := raw.Documents[0]
	assert.Equal(t, "Assembly (1 19-01-2019)", doc.Title)
	assert.Equal(t, "First Session", doc.Fields["session"])

	arts, err := Transform(raw)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	art := arts[0]
	assert.Equal(t, "telanganalegislature.assembly.ASSEMBLY.19.01.2019", art.ID)

	m := art.Metadata
	assert.NoError(t, m.Validate())
	assert.Equal(t, Creator, m.Get(metadata.Creator))
	assert.Equal(t, []string{"Telugu", "English"}, m[metadata.Language])
	assert.Equal(t, "2019-01-19", m.Get(metadata.Date))
	assert.Equal(t, "Telangana State Legislature Assembly proceedings - Second Assembly (2018-2023), First Session, Sitting 1, Day 1 19-01-2019", m.Get(metadata.Description))
	assert.Equal(t, "Sitting 1", m.Get("tsl_sitting"))
	assert.Equal(t, paths[0].Ref, m.Get(metadata.Source))

	var buf bytes.Buffer
	_, err = src.Download(context.Background(), art.Files[0], &buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "ASSEMBLY-19-01-2019.pdf")
}

func TestFetchRejectsOtherUnits(t *testing.T) {
	src := newTestSource(t, archivePage)
	_, err := src.Fetch(context.Background(), workunit.ID(1))
	assert.True(t, errs.IsType(err, errs.ErrorTypeParsing))
	_, err = src.Fetch(context.Background(), workunit.Path{Segments: []string{"Assembly"}})
	assert.True(t, errs.IsType(err, errs.ErrorTypeParsing))
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, "telanganalegislature.council.COUNCIL.05.03.2015", Identifier("Council", "COUNCIL-05-03-2015.pdf"))
	assert.Equal(t, "telanganalegislature.assembly.day_3", Identifier("Assembly", "day_3.pdf"))
	assert.Equal(t, "telanganalegislature.assembly.a_b_", Identifier("Assembly", "a(b).pdf"))
}
