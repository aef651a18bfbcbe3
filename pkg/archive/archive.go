// Package archive is the Internet Archive sink: existence checks against the
// metadata API, uploads through the S3-compatible endpoint and identifier
// search for seeding checkpoints.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"legmirror/pkg/config"
	errs "legmirror/pkg/errors"
	"legmirror/pkg/logger"
	"legmirror/pkg/ratelimit"
)

const searchPageSize = 500

// Credentials are archive.org S3-style keys.
type Credentials struct {
	AccessKey string
	SecretKey string
}

func (c Credentials) Empty() bool {
	return c.AccessKey == "" || c.SecretKey == ""
}

type Options struct {
	MetadataURL string
	UploadURL   string
	SearchURL   string
	// Collection is set on items whose metadata names none.
	Collection  string
	QueueDerive bool
	DryRun      bool
	// DryRunDir receives <identifier>.json with the metadata a dry run
	// would have sent. Empty writes nothing.
	DryRunDir   string
	UserAgent   string
	Timeout     time.Duration
	Credentials Credentials
	// Limiter paces file uploads; nil uploads as fast as the server allows.
	Limiter ratelimit.Limiter
	Logger  logger.Logger
}

// OptionsFromConfig maps the archive config section onto Options.
func OptionsFromConfig(cfg config.ArchiveConfig) Options {
	opts := Options{
		MetadataURL: cfg.MetadataURL,
		UploadURL:   cfg.UploadURL,
		SearchURL:   cfg.SearchURL,
		Collection:  cfg.Collection,
		QueueDerive: cfg.QueueDerive,
		DryRun:      cfg.DryRun,
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.Timeout,
		Credentials: Credentials{AccessKey: cfg.AccessKey, SecretKey: cfg.SecretKey},
	}
	if cfg.UploadsPerMinute > 0 {
		opts.Limiter = ratelimit.NewSlidingWindow(cfg.UploadsPerMinute, time.Minute)
	}
	return opts
}

// Client talks to archive.org. It implements harvest.Sink, harvest.Lister
// and harvest.Verifier.
type Client struct {
	http *resty.Client
	opts Options
	log  logger.Logger
}

func New(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("component", "archive")

	client := resty.New()
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	client.SetTimeout(opts.Timeout)
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		logger.LogRequest(log, res.Request.Method, res.Request.URL, res.StatusCode(), res.Time())
		return nil
	})

	return &Client{http: client, opts: opts, log: log}
}

func (c *Client) authorization() string {
	return fmt.Sprintf("LOW %s:%s", c.opts.Credentials.AccessKey, c.opts.Credentials.SecretKey)
}

type itemMetadata struct {
	Files  []json.RawMessage `json:"files"`
	IsDark bool              `json:"is_dark"`
}

// Exists reports whether the item id holds any files. An unknown identifier
// comes back from the metadata API as an empty object.
func (c *Client) Exists(ctx context.Context, id string) (bool, error) {
	var item itemMetadata
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&item).
		Get(joinURL(c.opts.MetadataURL, id))
	if err != nil {
		return false, errs.Service(0, err, "metadata lookup %s", id)
	}
	if res.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	if res.StatusCode() != http.StatusOK {
		return false, errs.Service(res.StatusCode(), nil, "metadata lookup %s: %s", id, res.Status())
	}
	return len(item.Files) > 0 || item.IsDark, nil
}

type searchResponse struct {
	Response struct {
		NumFound int `json:"numFound"`
		Docs     []struct {
			Identifier string `json:"identifier"`
		} `json:"docs"`
	} `json:"response"`
}

// List returns every identifier matching an advancedsearch query.
func (c *Client) List(ctx context.Context, query string) ([]string, error) {
	var ids []string
	for page := 1; ; page++ {
		var out searchResponse
		res, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"q":      query,
				"fl[]":   "identifier",
				"rows":   fmt.Sprint(searchPageSize),
				"page":   fmt.Sprint(page),
				"output": "json",
			}).
			SetResult(&out).
			Get(c.opts.SearchURL)
		if err != nil {
			return ids, errs.Service(0, err, "search %q", query)
		}
		if res.StatusCode() != http.StatusOK {
			return ids, errs.Service(res.StatusCode(), nil, "search %q: %s", query, res.Status())
		}

		for _, doc := range out.Response.Docs {
			ids = append(ids, doc.Identifier)
		}
		if len(out.Response.Docs) == 0 || len(ids) >= out.Response.NumFound {
			break
		}
	}

	c.log.DebugWithFields("search complete", map[string]interface{}{
		"query":   query,
		"results": len(ids),
	})
	return ids, nil
}

type limitResponse struct {
	OverLimit int    `json:"over_limit"`
	Detail    string `json:"detail"`
}

// Verify checks that credentials are present and the account is not over
// its upload limit. Dry runs skip both checks.
func (c *Client) Verify(ctx context.Context) error {
	if c.opts.DryRun {
		c.log.Info("dry run, uploads will only be logged")
		return nil
	}
	if c.opts.Credentials.Empty() {
		return errs.New(errs.ErrorTypeAuth, "archive.org access and secret keys are not configured")
	}

	var out limitResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"check_limit": "1",
			"accesskey":   c.opts.Credentials.AccessKey,
			"bucket":      "legmirror",
		}).
		SetResult(&out).
		Get(joinURL(c.opts.UploadURL, ""))
	if err != nil {
		return errs.Service(0, err, "check upload limit")
	}
	if res.StatusCode() == http.StatusUnauthorized || res.StatusCode() == http.StatusForbidden {
		return errs.FromStatus(res.StatusCode(), "archive.org rejected the credentials")
	}
	if res.StatusCode() != http.StatusOK {
		return errs.Service(res.StatusCode(), nil, "check upload limit: %s", res.Status())
	}
	if out.OverLimit != 0 {
		return errs.Service(http.StatusServiceUnavailable, nil, "archive.org upload queue is over limit: %s", out.Detail)
	}
	return nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
