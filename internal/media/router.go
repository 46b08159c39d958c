package media

import (
	"net/http"
	"path/filepath"
	"strings"

	"chatline/internal/constants"
	"chatline/internal/models"
)

// Router provides centralized media type detection and validation
type Router interface {
	// GetMediaKind classifies a file by extension, falling back to the sniffed content type
	GetMediaKind(path string, header []byte) models.MediaKind
	// GetMimeType returns the MIME type for a file
	GetMimeType(path string, header []byte) string
	// IsAllowed checks the extension against the configured allow lists
	IsAllowed(path string) bool
	// MaxSize returns the maximum allowed attachment size in bytes
	MaxSize() int64
	// Describe builds the attachment metadata stored on a File message
	Describe(path string, header []byte) models.Media
}

type router struct {
	config models.MediaConfig
}

// NewRouter creates a new Router instance
func NewRouter(config models.MediaConfig) Router {
	if config.MaxSizeMB <= 0 {
		config.MaxSizeMB = constants.DefaultMediaMaxSizeMB
	}
	return &router{
		config: config,
	}
}

func (r *router) GetMediaKind(path string, header []byte) models.MediaKind {
	switch {
	case hasExtension(path, r.config.AllowedTypes.Image):
		return models.MediaImage
	case hasExtension(path, r.config.AllowedTypes.Video):
		return models.MediaVideo
	case hasExtension(path, r.config.AllowedTypes.Document):
		return models.MediaDocument
	}
	return kindFromMime(r.GetMimeType(path, header))
}

func (r *router) GetMimeType(path string, header []byte) string {
	if mt, ok := extensionTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mt
	}
	if len(header) > 0 {
		if len(header) > constants.MimeSniffLength {
			header = header[:constants.MimeSniffLength]
		}
		// DetectContentType appends parameters such as charset
		mt, _, _ := strings.Cut(http.DetectContentType(header), ";")
		return mt
	}
	return constants.DefaultMimeType
}

func (r *router) IsAllowed(path string) bool {
	types := r.config.AllowedTypes
	if len(types.Image)+len(types.Video)+len(types.Document) == 0 {
		return true
	}
	return hasExtension(path, types.Image) ||
		hasExtension(path, types.Video) ||
		hasExtension(path, types.Document)
}

func (r *router) MaxSize() int64 {
	const bytesPerMB = 1024 * 1024
	return int64(r.config.MaxSizeMB) * bytesPerMB
}

func (r *router) Describe(path string, header []byte) models.Media {
	url := path
	if abs, err := filepath.Abs(path); err == nil {
		url = abs
	}
	return models.Media{
		URL:      "file://" + filepath.ToSlash(url),
		Name:     filepath.Base(path),
		MimeType: r.GetMimeType(path, header),
		Kind:     r.GetMediaKind(path, header),
	}
}

func kindFromMime(mimeType string) models.MediaKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return models.MediaImage
	case strings.HasPrefix(mimeType, "video/"):
		return models.MediaVideo
	default:
		return models.MediaDocument
	}
}

// hasExtension checks if the file path has an extension that matches any of the allowed extensions
func hasExtension(path string, allowedExtensions []string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return false
	}
	for _, allowedExt := range allowedExtensions {
		// Support both ".png" and "png" style entries in config
		if ext == strings.TrimPrefix(strings.ToLower(allowedExt), ".") {
			return true
		}
	}
	return false
}
