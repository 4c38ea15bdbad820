package imagestore

import (
	"context"
	"fmt"
	"strings"

	"github.com/smartscale/scale-server/internal/config"
)

// FileInfo is one stored produce photo. Name is the blake3 digest of the
// content, so re-submitting the same image overwrites the same object.
type FileInfo struct {
	Name      string
	Extension string
	Content   []byte
}

// FileStorage persists uploaded images. Upload returns the locator that the
// job row records in image_path; workers read bytes back through GetFile.
type FileStorage interface {
	Upload(ctx context.Context, file FileInfo) (string, error)
	GetFile(ctx context.Context, filename string) (*FileInfo, error)
	URL(filename string) string
}

func NewFileInfo(name string, extension string, content []byte) FileInfo {
	return FileInfo{
		Name:      name,
		Extension: extension,
		Content:   content,
	}
}

func NewFileStorage(cfg *config.Config) (FileStorage, error) {
	filesystem := strings.ToLower(cfg.Filesystem)

	if filesystem == config.FilesystemLocal {
		return NewLocalFileStorage(cfg)
	} else if filesystem == config.FilesystemS3 {
		return NewS3FileStorage(cfg)
	}

	return nil, fmt.Errorf("invalid filesystem type %s", cfg.Filesystem)
}
