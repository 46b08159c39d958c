package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFilePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid relative path",
			path:    "config/chatline.yaml",
			wantErr: false,
		},
		{
			name:    "valid absolute path",
			path:    "/etc/chatline/config.json",
			wantErr: false,
		},
		{
			name:    "empty path",
			path:    "",
			wantErr: true,
			errMsg:  "path cannot be empty",
		},
		{
			name:    "whitespace path",
			path:    "   ",
			wantErr: true,
			errMsg:  "path cannot be empty",
		},
		{
			name:    "path with directory traversal",
			path:    "../../../etc/passwd",
			wantErr: true,
			errMsg:  "path contains directory traversal",
		},
		{
			name:    "path with embedded traversal",
			path:    "config/../../etc/passwd",
			wantErr: true,
			errMsg:  "path contains directory traversal",
		},
		{
			name:    "path with dots in filename",
			path:    "photos/cat..png",
			wantErr: false,
		},
		{
			name:    "path with NUL",
			path:    "photo\x00.png",
			wantErr: true,
			errMsg:  "NUL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilePath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFilePathWithBase(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "photos"), 0o755))

	resolved, err := ValidateFilePathWithBase("photos/cat.png", base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "photos", "cat.png"), resolved)

	resolved, err = ValidateFilePathWithBase(filepath.Join(base, "doc.pdf"), base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "doc.pdf"), resolved)

	_, err = ValidateFilePathWithBase("/etc/passwd", base)
	assert.Error(t, err)

	_, err = ValidateFilePathWithBase("../outside.txt", base)
	assert.Error(t, err)

	resolved, err = ValidateFilePathWithBase("anywhere/file.txt", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("anywhere/file.txt"), resolved)
}

func TestValidateExtension(t *testing.T) {
	allowed := []string{"png", ".JPG", "pdf"}

	assert.NoError(t, ValidateExtension("cat.png", allowed))
	assert.NoError(t, ValidateExtension("CAT.jpg", allowed))
	assert.NoError(t, ValidateExtension("report.PDF", allowed))
	assert.Error(t, ValidateExtension("virus.exe", allowed))
	assert.Error(t, ValidateExtension("noext", allowed))
	assert.NoError(t, ValidateExtension("anything.bin", nil))
}
