package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"legmirror/pkg/checkpoint"
	"legmirror/pkg/config"
	"legmirror/pkg/harvest"
	"legmirror/pkg/logger"
)

const debatePage = `<html><body>
<table class="itemDisplayTable">
  <tr><td>Debate Title:</td><td>Motion of Thanks on the President's Address</td></tr>
  <tr><td>Debate Date:</td><td>25-02-2004</td></tr>
</table>
<table class="panel-body">
  <tr><th>File</th><th>Description</th><th>Size</th><th>Format</th><th></th></tr>
  <tr><td><a href="/bitstream/123456789/5/1/PR_25022004.pdf">PR_25022004.pdf</a></td><td></td><td>1 MB</td><td>Adobe PDF</td><td>View</td></tr>
</table>
<div>Appears in Collections: Debates</div>
</body></html>`

// mirrorServer serves a three-handle debate portal and the archive.org
// endpoints the sink uses.
type mirrorServer struct {
	mu    sync.Mutex
	items map[string]bool
	puts  []string
	pages int
}

func (m *mirrorServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /handle/123456789/{id}", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.pages++
		m.mu.Unlock()
		switch r.PathValue("id") {
		case "5":
			io.WriteString(w, debatePage)
		case "6":
			io.WriteString(w, "<html><body>Community list</body></html>")
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("GET /bitstream/123456789/5/1/PR_25022004.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.4 debate")
	})
	mux.HandleFunc("GET /metadata/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		m.mu.Lock()
		found := m.items[r.PathValue("id")]
		m.mu.Unlock()
		if found {
			io.WriteString(w, `{"files":[{"name":"PR_25022004.pdf"}]}`)
			return
		}
		io.WriteString(w, "{}")
	})
	mux.HandleFunc("GET /s3/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"over_limit":0}`)
	})
	mux.HandleFunc("PUT /s3/{id}/{file}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		m.mu.Lock()
		m.items[r.PathValue("id")] = true
		m.puts = append(m.puts, r.URL.Path)
		m.mu.Unlock()
	})
	return mux
}

func mirrorConfig(t *testing.T, url string) *config.Config {
	t.Helper()
	cfg := testConfig(t)
	cfg.Archive.DryRun = false
	cfg.Archive.AccessKey, cfg.Archive.SecretKey = "access", "secret"
	cfg.Archive.MetadataURL = url + "/metadata"
	cfg.Archive.UploadURL = url + "/s3"
	cfg.Archive.SearchURL = url + "/advancedsearch.php"
	cfg.Archive.UploadsPerMinute = 0
	cfg.Sources.RajyaSabha.BaseURL = url
	cfg.Sources.RajyaSabha.StartID = 4
	cfg.Sources.RajyaSabha.EndID = 6
	cfg.Harvest.MinInterval = time.Millisecond
	cfg.Retry.MaxAttempts = 1
	cfg.Retry.BaseDelay = time.Millisecond
	return cfg
}

func TestPipelineHarvestsAndResumes(t *testing.T) {
	mirror := &mirrorServer{items: make(map[string]bool)}
	srv := httptest.NewServer(mirror.handler())
	defer srv.Close()

	cfg := mirrorConfig(t, srv.URL)

	var (
		mu     sync.Mutex
		events []harvest.UnitEvent
	)
	observer := harvest.ObserverFunc(func(ev harvest.UnitEvent, _ harvest.Summary) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	p, err := buildPipeline(cfg, "rajyasabha", logger.NewNopLogger(), observer, time.Now())
	require.NoError(t, err)

	sum, err := p.harvester.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, harvest.StopExhausted, sum.StopReason)
	assert.Equal(t, 3, sum.Processed)
	assert.Equal(t, 1, sum.Uploaded)
	assert.Equal(t, 2, sum.Failed, "missing handles are recorded as failures")
	assert.Equal(t, []string{"/s3/rsdebate.nic.in.5/PR_25022004.pdf"}, mirror.puts)
	assert.Len(t, events, 3)

	for _, key := range []string{"4", "5", "6"} {
		assert.True(t, p.store.IsDone(key), key)
	}
	rec, ok := p.store.Get("5")
	require.True(t, ok)
	assert.Equal(t, []string{"rsdebate.nic.in.5"}, rec.ArtifactIDs)

	st := p.store.Stats()
	assert.Equal(t, 1, st.Uploaded)
	assert.Equal(t, 2, st.Permanent)

	// A second run over the same checkpoint does no work.
	again, err := buildPipeline(cfg, "rajyasabha", logger.NewNopLogger(), nil, time.Now())
	require.NoError(t, err)
	pagesBefore := mirror.pages

	sum, err = again.harvester.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Skipped)
	assert.Zero(t, sum.Processed)
	assert.Equal(t, pagesBefore, mirror.pages)
	assert.Len(t, mirror.puts, 1)
}

func TestPipelineDryRunUploadsNothing(t *testing.T) {
	mirror := &mirrorServer{items: make(map[string]bool)}
	srv := httptest.NewServer(mirror.handler())
	defer srv.Close()

	cfg := mirrorConfig(t, srv.URL)
	cfg.Archive.DryRun = true
	cfg.Archive.AccessKey, cfg.Archive.SecretKey = "", ""

	p, err := buildPipeline(cfg, "rajyasabha", logger.NewNopLogger(), nil, time.Now())
	require.NoError(t, err)

	sum, err := p.harvester.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Uploaded)
	assert.Empty(t, mirror.puts)
	assert.FileExists(t, filepath.Join(cfg.Harvest.StagingDir, "dry-run", "rajyasabha", "rsdebate.nic.in.5.json"))

	livePath, err := checkpoint.PathFor(cfg.Harvest.DataDir, "rajyasabha")
	require.NoError(t, err)
	assert.NoFileExists(t, livePath, "dry runs keep their own checkpoint")
	assert.NotEqual(t, livePath, p.store.Path())

	// The next real run still uploads the handle the dry run saw.
	cfg.Archive.DryRun = false
	cfg.Archive.AccessKey, cfg.Archive.SecretKey = "access", "secret"
	live, err := buildPipeline(cfg, "rajyasabha", logger.NewNopLogger(), nil, time.Now())
	require.NoError(t, err)

	sum, err = live.harvester.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Skipped)
	assert.Equal(t, 1, sum.Uploaded)
	assert.Equal(t, []string{"/s3/rsdebate.nic.in.5/PR_25022004.pdf"}, mirror.puts)
	rec, ok := live.store.Get("5")
	require.True(t, ok)
	assert.Equal(t, checkpoint.StatusUploaded, rec.Status)
}
