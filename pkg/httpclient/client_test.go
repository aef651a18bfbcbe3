package httpclient

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "legmirror/pkg/errors"
	"legmirror/pkg/logger"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.UserAgent(), "legmirror-test")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><a href="/doc.pdf"> Debate
		  1999 </a><a href="https://other.example/x">x</a></body></html>`))
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("\xef\xbb\xbf" + `{"q":"` + r.URL.Query().Get("q") + `"}`))
	})
	mux.HandleFunc("/doc.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7 body"))
	})
	mux.HandleFunc("/error.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>File not available</html>"))
	})
	mux.HandleFunc("/busy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(srv *httptest.Server) *Client {
	return New(Options{
		BaseURL:   srv.URL,
		UserAgent: "legmirror-test",
		Logger:    logger.NewTestLogger(),
	})
}

func TestGetDocumentAndAnchors(t *testing.T) {
	srv := newServer(t)
	c := newClient(srv)

	doc, err := c.GetDocument(context.Background(), "/page", nil)
	require.NoError(t, err)

	base, _ := url.Parse(srv.URL + "/page")
	anchors := Anchors(doc.Find("a"), base)
	require.Len(t, anchors, 2)
	assert.Equal(t, Anchor{Name: "Debate 1999", Href: srv.URL + "/doc.pdf"}, anchors[0])
	assert.Equal(t, "https://other.example/x", anchors[1].Href)
}

func TestGetJSONStripsBOM(t *testing.T) {
	c := newClient(newServer(t))

	var out struct{ Q string }
	require.NoError(t, c.GetJSON(context.Background(), "/json", map[string]string{"q": "PRC"}, &out))
	assert.Equal(t, "PRC", out.Q)
}

func TestStatusClassification(t *testing.T) {
	c := newClient(newServer(t))
	ctx := context.Background()

	_, err := c.GetDocument(ctx, "/missing", nil)
	assert.True(t, errs.IsNotFound(err))

	_, err = c.GetDocument(ctx, "/busy", nil)
	assert.True(t, errs.IsType(err, errs.ErrorTypeServerError))
	assert.True(t, errs.Retryable(err))
}

func TestDownload(t *testing.T) {
	c := newClient(newServer(t))
	ctx := context.Background()

	var buf bytes.Buffer
	n, err := c.Download(ctx, "/doc.pdf", "application/pdf", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(13), n)
	assert.Equal(t, "%PDF-1.7 body", buf.String())

	buf.Reset()
	_, err = c.Download(ctx, "/error.html", "application/pdf", &buf)
	assert.True(t, errs.IsType(err, errs.ErrorTypeParsing))
	assert.Zero(t, buf.Len(), "nothing is written for the wrong content type")

	_, err = c.Download(ctx, "/missing.pdf", "", &buf)
	assert.True(t, errs.IsNotFound(err))
}

func TestTimeoutIsNetworkError(t *testing.T) {
	c := newClient(newServer(t))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.GetDocument(ctx, "/slow", nil)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeNetwork))
	assert.True(t, errs.Retryable(err))
}

func TestClean(t *testing.T) {
	assert.Equal(t, "a b c", Clean("  a\n\t b  c \u200b"))
}

func TestSelectionText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(`<table><tr><td>Debate <b>Title</b></td><td>2</td></tr></table>`))
	require.NoError(t, err)
	assert.Equal(t, "Debate Title 2", SelectionText(doc.Find("td")))
}
