package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/gabriel-vasile/mimetype"

	model "github.com/babelcloud/gbox/packages/visual-test/pkg/visual"
)

// Open returns a handle on the image of the given kind for an already
// resolved file name, with its MIME type. The caller closes the file.
func (s *Store) Open(kind Kind, fileName string) (*os.File, *model.FileStat, error) {
	asset, err := s.ResolveFile(fileName)
	if err != nil {
		return nil, nil, err
	}
	path := asset.Path(kind)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s %s", ErrNotFound, kind, fileName)
		}
		return nil, nil, fmt.Errorf("error getting file info: %w", err)
	}
	if info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s %s", ErrNotFound, kind, fileName)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening file: %w", err)
	}
	stat := statOf(path, info)
	return f, &stat, nil
}

func statOf(path string, info os.FileInfo) model.FileStat {
	return model.FileStat{
		Name:    info.Name(),
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime().Format("2006-01-02T15:04:05Z07:00"),
		Mime:    getMimeType(path),
	}
}

// getMimeType determines the MIME type of a file
func getMimeType(path string) string {
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		log.Error("Error detecting MIME type: %v", err)
		return "application/octet-stream"
	}
	return mime.String()
}
