package ndvi

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
)

// A StagingSource is a Source that copies each object it opens into a local
// temporary file. Every Open creates a file with a unique name so concurrent
// requests for the same object never share a file, and the file is removed
// when the returned Object is closed or when Open fails.
type StagingSource struct {
	source Source
	dir    string
}

// NewStagingSource returns a new StagingSource that stages objects from
// source into dir. If dir is empty then os.TempDir is used.
func NewStagingSource(source Source, dir string) *StagingSource {
	if dir == "" {
		dir = os.TempDir()
	}
	return &StagingSource{
		source: source,
		dir:    dir,
	}
}

type stagedObject struct {
	*os.File
	name string
	size int64
}

func (o *stagedObject) Size() int64 { return o.size }

func (o *stagedObject) Close() error {
	return errors.Join(o.File.Close(), os.Remove(o.name))
}

// Open implements Source.Open.
func (s *StagingSource) Open(ctx context.Context, key string) (Object, error) {
	body, expectedSize, err := s.openStream(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	name := filepath.Join(s.dir, stagingFilename(key))
	file, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			_ = file.Close()
			_ = os.Remove(name)
		}
	}()

	size, err := io.Copy(file, body)
	if err != nil {
		return nil, err
	}
	if expectedSize >= 0 && size != expectedSize {
		return nil, errShortRead
	}

	ok = true
	return &stagedObject{
		File: file,
		name: name,
		size: size,
	}, nil
}

// openStream returns the contents of key, in a single request if the
// underlying source supports it.
func (s *StagingSource) openStream(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	if streamer, ok := s.source.(objectStreamer); ok {
		return streamer.openStream(ctx, key)
	}
	object, err := s.source.Open(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	return struct {
		io.Reader
		io.Closer
	}{
		Reader: io.NewSectionReader(object, 0, object.Size()),
		Closer: object,
	}, object.Size(), nil
}

// stagingFilename returns a unique local filename for key, e.g.
// LC80060522017107LGN00_B4_6ba7b810-9dad-11d1-80b4-00c04fd430c8.TIF.
func stagingFilename(key string) string {
	base := path.Base(key)
	ext := path.Ext(base)
	return base[:len(base)-len(ext)] + "_" + uuid.NewString() + ext
}
