package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/starford/herald/internal/apperr"
	"github.com/starford/herald/internal/substack"
	"github.com/starford/herald/internal/vault"
)

// DefaultMaxImageBytes is the upload size limit used when none is configured.
const DefaultMaxImageBytes = 10 << 20

var imageRefRe = regexp.MustCompile(`!\[([^\]]*)\]\(([^\s)]+)(?:\s+"([^"]+)")?\)`)

var imageMIME = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// ImageRef is one ![alt](path "title") occurrence in a note.
type ImageRef struct {
	Match string
	Alt   string
	Path  string
	Title string
	Local bool
}

// UploadedImage maps a local reference to its CDN URL.
type UploadedImage struct {
	OriginalPath string `json:"original_path"`
	URL          string `json:"url"`
}

// ImageError is a per-image failure. Publishing continues past it.
type ImageError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// ImageResult is the outcome of processing a note's images.
type ImageResult struct {
	Markdown string
	Uploaded []UploadedImage
	Errors   []ImageError
}

// Uploader sends image bytes to the remote CDN.
type Uploader interface {
	UploadImage(ctx context.Context, publication string, data []byte, filename, mimeType string) substack.UploadResult
}

// ParseImageRefs returns every image reference in source order.
func ParseImageRefs(markdown string) []ImageRef {
	var refs []ImageRef
	for _, m := range imageRefRe.FindAllStringSubmatch(markdown, -1) {
		if m[2] == "" {
			continue
		}
		refs = append(refs, ImageRef{
			Match: m[0],
			Alt:   m[1],
			Path:  m[2],
			Title: m[3],
			Local: isLocalPath(m[2]),
		})
	}
	return refs
}

func isLocalPath(p string) bool {
	return !strings.HasPrefix(p, "http://") &&
		!strings.HasPrefix(p, "https://") &&
		!strings.HasPrefix(p, "data:")
}

// ResolveImagePath resolves an image reference against the note directory.
// A leading "/" means the vault root; "." and ".." segments are applied and
// never climb above the root.
func ResolveImagePath(imagePath, noteDir string) string {
	imagePath = strings.ReplaceAll(imagePath, `\`, "/")
	if unescaped, err := url.PathUnescape(imagePath); err == nil {
		imagePath = unescaped
	}
	if strings.HasPrefix(imagePath, "/") {
		return strings.TrimPrefix(path.Clean(imagePath), "/")
	}

	var parts []string
	for _, p := range strings.Split(strings.ReplaceAll(noteDir, `\`, "/"), "/") {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	for _, p := range strings.Split(imagePath, "/") {
		switch p {
		case "", ".":
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "/")
}

func extension(p string) string {
	base := path.Base(p)
	i := strings.LastIndex(base, ".")
	if i < 0 || i == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}

// ImageProcessor uploads a note's local images and rewrites their references.
type ImageProcessor struct {
	vault    *vault.Vault
	uploader Uploader
	maxBytes int64
	log      *slog.Logger
}

// NewImageProcessor builds a processor. maxBytes <= 0 means DefaultMaxImageBytes.
func NewImageProcessor(v *vault.Vault, up Uploader, maxBytes int64, logger *slog.Logger) *ImageProcessor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ImageProcessor{vault: v, uploader: up, maxBytes: maxBytes, log: logger}
}

// Process uploads local images one at a time in source order. Failed
// references are left untouched and reported in Errors.
func (ip *ImageProcessor) Process(ctx context.Context, publication, markdown, noteDir string) (ImageResult, error) {
	res := ImageResult{Markdown: markdown}
	done := make(map[string]string)

	for _, ref := range ParseImageRefs(markdown) {
		if !ref.Local {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		vaultPath := ResolveImagePath(ref.Path, noteDir)
		ip.log.Debug("processing image", slog.String("path", ref.Path), slog.String("resolved", vaultPath))

		cdnURL, seen := done[vaultPath]
		if !seen {
			var err error
			cdnURL, err = ip.upload(ctx, publication, vaultPath)
			if err != nil {
				res.Errors = append(res.Errors, ImageError{Path: ref.Path, Error: err.Error()})
				ip.log.Warn("image upload failed", slog.String("path", ref.Path), slog.String("error", err.Error()))
				continue
			}
			done[vaultPath] = cdnURL
			ip.log.Info("image uploaded", slog.String("path", ref.Path), slog.String("url", cdnURL))
		}

		replacement := fmt.Sprintf("![%s](%s)", ref.Alt, cdnURL)
		if ref.Title != "" {
			replacement = fmt.Sprintf(`![%s](%s "%s")`, ref.Alt, cdnURL, ref.Title)
		}
		res.Markdown = strings.Replace(res.Markdown, ref.Match, replacement, 1)
		res.Uploaded = append(res.Uploaded, UploadedImage{OriginalPath: ref.Path, URL: cdnURL})
	}
	return res, nil
}

func (ip *ImageProcessor) upload(ctx context.Context, publication, vaultPath string) (string, error) {
	info, err := ip.vault.Store().Stat(vaultPath)
	if err != nil || info.IsDir {
		if err == nil || errors.Is(err, apperr.ErrNotFound) {
			return "", fmt.Errorf("file not found: %s", vaultPath)
		}
		return "", err
	}

	if _, err := ImageMIME(vaultPath); err != nil {
		return "", err
	}
	if err := CheckImageSize(info.Size, ip.maxBytes); err != nil {
		return "", err
	}

	data, err := ip.vault.ReadBinary(vaultPath)
	if err != nil {
		return "", err
	}
	mime, err := DetectImage(vaultPath, data)
	if err != nil {
		return "", err
	}

	up := ip.uploader.UploadImage(ctx, publication, data, path.Base(vaultPath), mime)
	if !up.Success {
		if up.Error == "" {
			return "", errors.New("upload failed")
		}
		return "", errors.New(up.Error)
	}
	return up.URL, nil
}

// ImageMIME returns the MIME type for a supported image file name.
func ImageMIME(name string) (string, error) {
	ext := extension(name)
	mime, ok := imageMIME[ext]
	if !ok {
		return "", fmt.Errorf("unsupported format: %q (supported: png, jpg, jpeg, gif, webp)", ext)
	}
	return mime, nil
}

// CheckImageSize rejects images larger than maxBytes.
func CheckImageSize(size, maxBytes int64) error {
	if size > maxBytes {
		return fmt.Errorf("file too large: %.1f MB (max %.0f MB)",
			float64(size)/(1<<20), float64(maxBytes)/(1<<20))
	}
	return nil
}

// DetectImage checks that data sniffs as the type its name declares and
// returns that type.
func DetectImage(name string, data []byte) (string, error) {
	mime, err := ImageMIME(name)
	if err != nil {
		return "", err
	}
	detected := strings.Split(http.DetectContentType(data), ";")[0]
	if detected != mime {
		return "", fmt.Errorf("content does not match extension (expected %s, detected %s)", mime, detected)
	}
	return mime, nil
}
