package media

import (
	"path/filepath"
	"testing"

	"chatline/internal/models"

	"github.com/stretchr/testify/assert"
)

func testConfig() models.MediaConfig {
	return models.MediaConfig{
		AllowedTypes: models.MediaAllowedTypes{
			Image:    []string{"jpg", ".png", "jpeg", "gif"},
			Video:    []string{"mp4", "mov"},
			Document: []string{"pdf", "txt"},
		},
	}
}

func TestNewRouter(t *testing.T) {
	router := NewRouter(models.MediaConfig{})
	assert.NotNil(t, router)

	var _ Router = router
	assert.Equal(t, int64(25*1024*1024), router.MaxSize())
}

func TestGetMediaKind(t *testing.T) {
	router := NewRouter(testConfig())
	pngHeader := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	tests := []struct {
		name     string
		path     string
		header   []byte
		expected models.MediaKind
	}{
		{name: "JPEG image", path: "/photos/cat.jpg", expected: models.MediaImage},
		{name: "uppercase extension", path: "/photos/CAT.PNG", expected: models.MediaImage},
		{name: "MP4 video", path: "clips/run.mp4", expected: models.MediaVideo},
		{name: "PDF document", path: "report.pdf", expected: models.MediaDocument},
		{name: "known mime outside lists", path: "movie.webm", expected: models.MediaVideo},
		{name: "unknown extension sniffed as image", path: "upload.bin", header: pngHeader, expected: models.MediaImage},
		{name: "no extension no header", path: "README", expected: models.MediaDocument},
		{name: "archive", path: "backup.zip", expected: models.MediaDocument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, router.GetMediaKind(tt.path, tt.header))
		})
	}
}

func TestGetMimeType(t *testing.T) {
	router := NewRouter(testConfig())

	assert.Equal(t, "image/jpeg", router.GetMimeType("a.JPG", nil))
	assert.Equal(t, "application/pdf", router.GetMimeType("a.pdf", nil))
	assert.Equal(t, "text/plain", router.GetMimeType("notes", []byte("hello world")))
	assert.Equal(t, "application/octet-stream", router.GetMimeType("blob", nil))
}

func TestIsAllowed(t *testing.T) {
	router := NewRouter(testConfig())
	assert.True(t, router.IsAllowed("cat.png"))
	assert.True(t, router.IsAllowed("doc.TXT"))
	assert.False(t, router.IsAllowed("setup.exe"))
	assert.False(t, router.IsAllowed("noext"))

	open := NewRouter(models.MediaConfig{})
	assert.True(t, open.IsAllowed("setup.exe"))
}

func TestDescribe(t *testing.T) {
	router := NewRouter(testConfig())
	path := filepath.Join(t.TempDir(), "holiday.jpeg")

	m := router.Describe(path, nil)
	assert.Equal(t, "holiday.jpeg", m.Name)
	assert.Equal(t, "image/jpeg", m.MimeType)
	assert.Equal(t, models.MediaImage, m.Kind)
	assert.Equal(t, "file://"+filepath.ToSlash(path), m.URL)
}
