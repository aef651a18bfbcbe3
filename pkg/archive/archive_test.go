package archive

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"legmirror/pkg/config"
	errs "legmirror/pkg/errors"
	"legmirror/pkg/harvest"
	"legmirror/pkg/logger"
	"legmirror/pkg/metadata"
)

type putRequest struct {
	Path   string
	Header http.Header
	Body   []byte
}

type fakeArchive struct {
	mu    sync.Mutex
	items map[string]bool
	puts  []putRequest
	// putStatus overrides the status of every PUT.
	putStatus int
	overLimit int
	searchIDs []string
}

func (f *fakeArchive) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metadata/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		f.mu.Lock()
		found := f.items[r.PathValue("id")]
		f.mu.Unlock()
		if !found {
			io.WriteString(w, "{}")
			return
		}
		io.WriteString(w, `{"files":[{"name":"a.pdf"}],"metadata":{"identifier":"x"}}`)
	})
	mux.HandleFunc("GET /advancedsearch.php", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "identifier", r.URL.Query().Get("fl[]"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		rows, _ := strconv.Atoi(r.URL.Query().Get("rows"))
		start := (page - 1) * rows
		end := min(start+rows, len(f.searchIDs))

		var out searchResponse
		out.Response.NumFound = len(f.searchIDs)
		for _, id := range f.searchIDs[min(start, end):end] {
			out.Response.Docs = append(out.Response.Docs, struct {
				Identifier string `json:"identifier"`
			}{id})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("GET /s3/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("check_limit"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(limitResponse{OverLimit: f.overLimit, Detail: "queue busy"})
	})
	mux.HandleFunc("PUT /s3/{id}/{file}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.puts = append(f.puts, putRequest{Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
		status := f.putStatus
		if status == 0 {
			f.items[r.PathValue("id")] = true
		}
		f.mu.Unlock()
		if status != 0 {
			http.Error(w, "<Error><Code>SlowDown</Code></Error>", status)
		}
	})
	return mux
}

func newTestClient(t *testing.T, fa *fakeArchive, mutate func(*Options)) *Client {
	t.Helper()
	srv := httptest.NewServer(fa.handler(t))
	t.Cleanup(srv.Close)

	opts := Options{
		MetadataURL: srv.URL + "/metadata",
		UploadURL:   srv.URL + "/s3",
		SearchURL:   srv.URL + "/advancedsearch.php",
		Collection:  "opensource",
		QueueDerive: true,
		Credentials: Credentials{AccessKey: "access", SecretKey: "secret"},
		Logger:      logger.NewTestLogger(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts)
}

func stagedArtifact(t *testing.T, id string, names ...string) *harvest.Artifact {
	t.Helper()
	dir := t.TempDir()
	md := metadata.New()
	md.Set(metadata.Title, "Debate on the Budget (1999-03-02)")
	md.Set(metadata.Creator, "Karnataka Legislative Assembly Secretariat")
	md.Set(metadata.Language, "English", "Kannada")
	md.Set("kla_subject", "ಬಜೆಟ್ ಚರ್ಚೆ")

	art := &harvest.Artifact{ID: id, Metadata: md}
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 "+name), 0644))
		art.Files = append(art.Files, harvest.FileRef{Name: name})
		art.Staged = append(art.Staged, harvest.StagedFile{Name: name, Path: path})
	}
	return art
}

func TestExists(t *testing.T) {
	fa := &fakeArchive{items: map[string]bool{"known-item": true}}
	c := newTestClient(t, fa, nil)

	ok, err := c.Exists(context.Background(), "known-item")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Exists(context.Background(), "missing-item")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExistsServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Options{MetadataURL: srv.URL, Logger: logger.NewNopLogger()})
	_, err := c.Exists(context.Background(), "any")
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeService))
	assert.True(t, errs.Retryable(err))
}

func TestUploadSendsFilesAndMetadata(t *testing.T) {
	fa := &fakeArchive{items: map[string]bool{}}
	c := newTestClient(t, fa, nil)
	art := stagedArtifact(t, "kla.debates.12.1.9", "a.pdf", "b.pdf")

	id, err := c.Upload(context.Background(), art)
	require.NoError(t, err)
	assert.Equal(t, "kla.debates.12.1.9", id)

	require.Len(t, fa.puts, 2)
	first, second := fa.puts[0], fa.puts[1]
	assert.Equal(t, "/s3/kla.debates.12.1.9/a.pdf", first.Path)
	assert.Equal(t, "LOW access:secret", first.Header.Get("Authorization"))
	assert.Equal(t, "1", first.Header.Get("x-amz-auto-make-bucket"))
	assert.Equal(t, "Debate on the Budget (1999-03-02)", first.Header.Get("x-archive-meta-title"))
	assert.Equal(t, "opensource", first.Header.Get("x-archive-meta-collection"))
	assert.Equal(t, "English", first.Header.Get("x-archive-meta00-language"))
	assert.Equal(t, "Kannada", first.Header.Get("x-archive-meta01-language"))
	assert.Contains(t, first.Header.Get("x-archive-meta-kla--subject"), "uri(")
	assert.Equal(t, "0", first.Header.Get("x-archive-queue-derive"))

	sum := md5.Sum(first.Body)
	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), first.Header.Get("Content-MD5"))

	assert.Empty(t, second.Header.Get("x-archive-meta-title"))
	assert.Equal(t, "1", second.Header.Get("x-archive-queue-derive"))

	ok, err := c.Exists(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUploadErrors(t *testing.T) {
	t.Run("slow down is retryable", func(t *testing.T) {
		fa := &fakeArchive{items: map[string]bool{}, putStatus: http.StatusServiceUnavailable}
		c := newTestClient(t, fa, nil)

		_, err := c.Upload(context.Background(), stagedArtifact(t, "item", "a.pdf"))
		require.Error(t, err)
		assert.True(t, errs.IsType(err, errs.ErrorTypeUpload))
		assert.True(t, errs.Retryable(err))
		assert.Contains(t, err.Error(), "SlowDown")
	})

	t.Run("bad request is final", func(t *testing.T) {
		fa := &fakeArchive{items: map[string]bool{}, putStatus: http.StatusBadRequest}
		c := newTestClient(t, fa, nil)

		_, err := c.Upload(context.Background(), stagedArtifact(t, "item", "a.pdf"))
		require.Error(t, err)
		assert.False(t, errs.Retryable(err))
	})

	t.Run("missing creator", func(t *testing.T) {
		fa := &fakeArchive{items: map[string]bool{}}
		c := newTestClient(t, fa, nil)
		art := stagedArtifact(t, "item", "a.pdf")
		delete(art.Metadata, metadata.Creator)

		_, err := c.Upload(context.Background(), art)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing creator")
		assert.Empty(t, fa.puts)
	})
}

func TestDryRunSkipsUploadAndVerify(t *testing.T) {
	fa := &fakeArchive{items: map[string]bool{}}
	c := newTestClient(t, fa, func(o *Options) {
		o.DryRun = true
		o.Credentials = Credentials{}
	})

	require.NoError(t, c.Verify(context.Background()))
	id, err := c.Upload(context.Background(), stagedArtifact(t, "item", "a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "item", id)
	assert.Empty(t, fa.puts)
}

func TestDryRunWritesMetadata(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dry-run")
	c := newTestClient(t, &fakeArchive{items: map[string]bool{}}, func(o *Options) {
		o.DryRun = true
		o.DryRunDir = dir
		o.Collection = "indianlegislatures"
	})

	_, err := c.Upload(context.Background(), stagedArtifact(t, "item", "a.pdf"))
	require.NoError(t, err)

	md, err := metadata.Load(filepath.Join(dir, "item.json"))
	require.NoError(t, err)
	assert.Equal(t, "indianlegislatures", md.Get(metadata.Collection))
}

func TestVerify(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		c := newTestClient(t, &fakeArchive{items: map[string]bool{}}, nil)
		assert.NoError(t, c.Verify(context.Background()))
	})

	t.Run("missing credentials", func(t *testing.T) {
		c := newTestClient(t, &fakeArchive{items: map[string]bool{}}, func(o *Options) {
			o.Credentials = Credentials{AccessKey: "access"}
		})
		err := c.Verify(context.Background())
		require.Error(t, err)
		assert.True(t, errs.IsType(err, errs.ErrorTypeAuth))
	})

	t.Run("over limit", func(t *testing.T) {
		c := newTestClient(t, &fakeArchive{items: map[string]bool{}, overLimit: 1}, nil)
		err := c.Verify(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "over limit")
	})
}

func TestListPagesThroughResults(t *testing.T) {
	var ids []string
	for i := 0; i < searchPageSize+3; i++ {
		ids = append(ids, "rsdebate.nic.in."+strconv.Itoa(i))
	}
	c := newTestClient(t, &fakeArchive{items: map[string]bool{}, searchIDs: ids}, nil)

	got, err := c.List(context.Background(), "identifier:rsdebate.nic.in.*")
	require.NoError(t, err)
	assert.Equal(t, ids, got)
}

func TestMetaHeaders(t *testing.T) {
	md := metadata.Metadata{
		"title":          {"Plain title"},
		"subject":        {"Parliament of India", "Rajya Sabha"},
		"rsdebate_notes": {"line one\nline two"},
	}

	got := MetaHeaders(md)
	assert.Equal(t, map[string]string{
		"x-archive-meta-title":           "Plain title",
		"x-archive-meta00-subject":       "Parliament of India",
		"x-archive-meta01-subject":       "Rajya Sabha",
		"x-archive-meta-rsdebate--notes": "uri(line%20one%0Aline%20two)",
	}, got)
}

func TestOptionsFromConfigAddsUploadCap(t *testing.T) {
	opts := OptionsFromConfig(configWithCap(12))
	require.NotNil(t, opts.Limiter)
	assert.Equal(t, "access", opts.Credentials.AccessKey)

	assert.Nil(t, OptionsFromConfig(configWithCap(0)).Limiter)
}

func configWithCap(perMinute int) config.ArchiveConfig {
	cfg := config.DefaultConfig().Archive
	cfg.AccessKey = "access"
	cfg.SecretKey = "secret"
	cfg.UploadsPerMinute = perMinute
	return cfg
}
