package archive

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	errs "legmirror/pkg/errors"
	"legmirror/pkg/harvest"
	"legmirror/pkg/metadata"
)

// Upload PUTs every staged file of art into the item named by art.ID. The
// item is created by the first PUT, which also carries the metadata; the
// derive queue is only requested with the last file.
func (c *Client) Upload(ctx context.Context, art *harvest.Artifact) (string, error) {
	md := metadata.New()
	if art.Metadata != nil {
		md = art.Metadata.Clone()
	}
	if md.Get(metadata.Collection) == "" && c.opts.Collection != "" {
		md.Set(metadata.Collection, c.opts.Collection)
	}
	if err := md.Validate(); err != nil {
		return "", errs.Upload(http.StatusBadRequest, err, "metadata for %s", art.ID)
	}
	if len(art.Staged) == 0 {
		return "", errs.Upload(http.StatusBadRequest, nil, "%s has no files to upload", art.ID)
	}

	if c.opts.DryRun {
		c.log.InfoWithFields("dry run upload", map[string]interface{}{
			"identifier": art.ID,
			"files":      len(art.Staged),
			"title":      md.Get(metadata.Title),
		})
		if c.opts.DryRunDir != "" {
			if err := os.MkdirAll(c.opts.DryRunDir, 0755); err != nil {
				return "", errs.Upload(0, err, "dry run directory")
			}
			if err := md.Save(filepath.Join(c.opts.DryRunDir, art.ID+".json")); err != nil {
				return "", errs.Upload(0, err, "dry run metadata for %s", art.ID)
			}
		}
		return art.ID, nil
	}

	for i, file := range art.Staged {
		first, last := i == 0, i == len(art.Staged)-1
		if err := c.put(ctx, art.ID, file, md, first, last); err != nil {
			return "", err
		}
	}

	c.log.InfoWithFields("item uploaded", map[string]interface{}{
		"identifier": art.ID,
		"files":      len(art.Staged),
	})
	return art.ID, nil
}

func (c *Client) put(ctx context.Context, id string, file harvest.StagedFile, md metadata.Metadata, first, last bool) error {
	if c.opts.Limiter != nil {
		if err := c.opts.Limiter.Wait(ctx); err != nil {
			return errs.Upload(0, err, "waiting to upload %s/%s", id, file.Name)
		}
	}

	data, err := os.ReadFile(file.Path)
	if err != nil {
		return errs.Upload(http.StatusBadRequest, err, "read staged file %s", file.Path)
	}
	sum := md5.Sum(data)

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", c.authorization()).
		SetHeader("Content-MD5", base64.StdEncoding.EncodeToString(sum[:])).
		SetHeader("x-archive-keep-old-version", "0").
		SetBody(data)

	derive := "0"
	if last && c.opts.QueueDerive {
		derive = "1"
	}
	req.SetHeader("x-archive-queue-derive", derive)

	if first {
		req.SetHeader("x-amz-auto-make-bucket", "1")
		for name, value := range MetaHeaders(md) {
			req.SetHeader(name, value)
		}
	}

	res, err := req.Put(joinURL(c.opts.UploadURL, url.PathEscape(id)+"/"+url.PathEscape(file.Name)))
	if err != nil {
		return errs.Upload(0, err, "PUT %s/%s", id, file.Name)
	}
	if res.StatusCode() != http.StatusOK {
		return errs.Upload(res.StatusCode(), nil, "PUT %s/%s: %s %s", id, file.Name, res.Status(), snippet(res.Body()))
	}
	return nil
}

// MetaHeaders renders metadata as x-archive-meta headers. Repeated values
// are numbered (x-archive-meta00-subject), underscores in field names become
// "--" and values that are not plain ASCII are wrapped as uri(...).
func MetaHeaders(md metadata.Metadata) map[string]string {
	headers := make(map[string]string)
	for _, field := range md.Fields() {
		values := md[field]
		name := strings.ReplaceAll(field, "_", "--")
		if len(values) == 1 {
			headers["x-archive-meta-"+name] = headerValue(values[0])
			continue
		}
		for i, v := range values {
			headers[fmt.Sprintf("x-archive-meta%02d-%s", i, name)] = headerValue(v)
		}
	}
	return headers
}

func headerValue(v string) string {
	for _, r := range v {
		if r > unicode.MaxASCII || r == '\n' || r == '\r' {
			return "uri(" + url.PathEscape(v) + ")"
		}
	}
	return v
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
