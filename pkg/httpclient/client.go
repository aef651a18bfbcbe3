// Package httpclient is the shared resty-based transport for source adapters.
// It maps HTTP outcomes onto the typed errors in pkg/errors.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	errs "legmirror/pkg/errors"
	"legmirror/pkg/logger"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

type Options struct {
	BaseURL   string
	UserAgent string
	// Timeout caps a whole request including the body; zero leaves it to
	// the caller's context.
	Timeout time.Duration
	Logger  logger.Logger
}

// Client wraps a resty client configured for scraping legislature portals.
type Client struct {
	http *resty.Client
	log  logger.Logger
}

func New(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	client := resty.New()
	if opts.BaseURL != "" {
		client.SetBaseURL(opts.BaseURL)
	}
	if jar, err := cookiejar.New(nil); err == nil {
		client.SetCookieJar(jar)
	}
	client.SetHeader("User-Agent", ua)
	client.SetTimeout(opts.Timeout)
	client.SetLogger(restyLogger{log})
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		logger.LogRequest(log, res.Request.Method, res.Request.URL, res.StatusCode(), res.Time())
		return nil
	})

	return &Client{http: client, log: log}
}

// Resty exposes the underlying client for callers that need raw requests.
func (c *Client) Resty() *resty.Client {
	return c.http
}

// R starts a request bound to ctx.
func (c *Client) R(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx)
}

// Check converts a resty outcome into a typed error, or nil on 2xx.
func Check(res *resty.Response, err error, what string) error {
	if err != nil {
		return errs.Network(err, "%s", what)
	}
	if res.IsError() || res.StatusCode() >= 300 {
		return errs.FromStatus(res.StatusCode(), fmt.Sprintf("%s: %s", what, res.Status()))
	}
	return nil
}

// GetDocument fetches url and parses it as HTML.
func (c *Client) GetDocument(ctx context.Context, url string, query map[string]string) (*goquery.Document, error) {
	res, err := c.R(ctx).SetQueryParams(query).Get(url)
	if err := Check(res, err, "GET "+url); err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, errs.Parse(err, "parse html from %s", url)
	}
	return doc, nil
}

// GetJSON fetches url and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, url string, query map[string]string, out interface{}) error {
	res, err := c.R(ctx).
		SetQueryParams(query).
		SetHeader("Accept", "application/json").
		Get(url)
	if err := Check(res, err, "GET "+url); err != nil {
		return err
	}
	if err := decodeJSON(res.Body(), out); err != nil {
		return errs.Parse(err, "decode json from %s", url)
	}
	return nil
}

// Download streams url into w. When wantType is set the response
// Content-Type must match it, otherwise a parse error is returned before any
// bytes are written.
func (c *Client) Download(ctx context.Context, url, wantType string, w io.Writer) (int64, error) {
	res, err := c.R(ctx).SetDoNotParseResponse(true).Get(url)
	if err != nil {
		return 0, errs.Network(err, "GET %s", url)
	}
	body := res.RawBody()
	defer body.Close()

	if res.StatusCode() >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
		return 0, errs.FromStatus(res.StatusCode(), fmt.Sprintf("GET %s: %s", url, res.Status()))
	}

	if wantType != "" {
		got, _, _ := mime.ParseMediaType(res.Header().Get("Content-Type"))
		if !strings.EqualFold(got, wantType) {
			return 0, errs.Parse(nil, "GET %s: content type %q, want %q", url, got, wantType)
		}
	}

	n, err := io.Copy(w, body)
	if err != nil {
		return n, errs.Network(err, "read body of %s", url)
	}
	return n, nil
}

type restyLogger struct {
	log logger.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.log.WithField("component", "resty").Warn(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.log.WithField("component", "resty").Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.log.WithField("component", "resty").Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
