package api

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/starford/herald/internal/publisher"
)

// ImageHandler sends pasted or dropped images straight to the CDN.
type ImageHandler struct {
	remote      Remote
	publication string
	maxBytes    int64
}

// NewImageHandler creates an ImageHandler. maxBytes <= 0 means
// publisher.DefaultMaxImageBytes.
func NewImageHandler(remote Remote, publication string, maxBytes int64) *ImageHandler {
	if maxBytes <= 0 {
		maxBytes = publisher.DefaultMaxImageBytes
	}
	return &ImageHandler{remote: remote, publication: publication, maxBytes: maxBytes}
}

// Upload handles POST /api/images (multipart/form-data, field "file").
//
//	@Summary		Upload an image to the publication CDN
//	@Tags			images
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file		formData	file	true	"Image file"
//	@Param			publication	query		string	false	"Publication subdomain"
//	@Success		201			{object}	ImageUploadResponse
//	@Failure		400			{object}	errResponse
//	@Failure		502			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/images [post]
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	// Room for multipart framing around the largest accepted image.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)

	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	pub := r.URL.Query().Get("publication")
	if pub == "" {
		pub = h.publication
	}
	if pub == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("publication is required"))
		return
	}

	name := filepath.Base(header.Filename)
	if name == "." || name == "/" || name == "" {
		name = uuid.NewString() + ".png"
	}
	if err := publisher.CheckImageSize(header.Size, h.maxBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}
	mime, err := publisher.DetectImage(name, data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	up := h.remote.UploadImage(r.Context(), pub, data, name, mime)
	if !up.Success {
		writeJSON(w, http.StatusBadGateway, errorBody(name+": "+up.Error))
		return
	}

	writeJSON(w, http.StatusCreated, ImageUploadResponse{
		Filename: name,
		Size:     int64(len(data)),
		URL:      up.URL,
	})
}
