package substack

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/starford/herald/internal/apperr"
)

// UploadResult is the outcome of UploadImage. Failures are data: Success is
// false and Error holds a user-facing reason.
type UploadResult struct {
	Filename string
	Success  bool
	URL      string
	Error    string
	Status   int
}

// UploadImage sends data as a base64 data URI and returns its CDN URL.
// filename only labels the upload in logs and in the result; the API takes
// no name.
func (c *Client) UploadImage(ctx context.Context, publication string, data []byte, filename, mimeType string) UploadResult {
	res := c.uploadImage(ctx, publication, data, mimeType)
	res.Filename = filename
	if !res.Success {
		c.log.Warn("image upload failed",
			slog.String("filename", filename),
			slog.Int("status", res.Status),
			slog.String("error", res.Error),
		)
		return res
	}
	c.log.Debug("image uploaded", slog.String("filename", filename), slog.Int("bytes", len(data)), slog.String("url", res.URL))
	return res
}

func (c *Client) uploadImage(ctx context.Context, publication string, data []byte, mimeType string) UploadResult {
	form := url.Values{}
	form.Set("image", "data:"+mimeType+";base64,"+base64.StdEncoding.EncodeToString(data))

	resp, body, err := c.do(ctx, http.MethodPost, c.endpoint(publication, "/image"),
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return UploadResult{Error: err.Error()}
	}
	if !resp.OK() {
		return UploadResult{Status: resp.Status, Error: apperr.Describe(resp.Status, "upload image")}
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := decode(resp, body, &out); err != nil {
		return UploadResult{Status: resp.Status, Error: err.Error()}
	}
	if out.URL == "" {
		return UploadResult{Status: resp.Status, Error: "upload response has no url"}
	}
	return UploadResult{Success: true, URL: out.URL, Status: resp.Status}
}
