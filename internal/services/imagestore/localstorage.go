package imagestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/smartscale/scale-server/internal/config"
)

type LocalFileStorage struct {
	imagesDir string
	host      string
	port      int
}

func NewLocalFileStorage(cfg *config.Config) (*LocalFileStorage, error) {
	if cfg.ImagesDir == "" {
		return nil, fmt.Errorf("images directory is not set")
	}

	return &LocalFileStorage{
		imagesDir: cfg.ImagesDir,
		host:      cfg.Host,
		port:      cfg.Port,
	}, nil
}

func (s *LocalFileStorage) Upload(ctx context.Context, file FileInfo) (string, error) {
	filename := file.Name + file.Extension
	filedest := filepath.Join(s.imagesDir, filename)

	if err := os.MkdirAll(filepath.Dir(filedest), os.ModePerm); err != nil {
		return "", err
	}

	if err := os.WriteFile(filedest, file.Content, os.FileMode(0644)); err != nil {
		return "", err
	}

	return filename, nil
}

func (s *LocalFileStorage) GetFile(ctx context.Context, filename string) (*FileInfo, error) {
	file, err := os.Open(filepath.Join(s.imagesDir, filepath.Base(filename)))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	ext := filepath.Ext(filename)
	return &FileInfo{
		Name:      filename[:len(filename)-len(ext)],
		Extension: ext,
		Content:   content,
	}, nil
}

func (s *LocalFileStorage) URL(filename string) string {
	return fmt.Sprintf("http://%s:%d/file/%s", s.host, s.port, filename)
}

// ResolvePath maps a locator to the absolute path under the images dir.
// The Base call keeps path traversal out of served filenames.
func (s *LocalFileStorage) ResolvePath(filename string) (string, error) {
	resolved := filepath.Join(s.imagesDir, filepath.Base(filename))
	if _, err := os.Stat(resolved); err != nil {
		return "", err
	}

	return resolved, nil
}
