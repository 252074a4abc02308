package ndvi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// Public locations of the landsat-pds bucket.
const (
	DefaultBaseURL = "http://landsat-pds.s3.amazonaws.com/"
	DefaultBucket  = "landsat-pds"
)

// An Object is an open, randomly accessible remote or local object.
type Object interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// A Source opens objects by key.
type Source interface {
	Open(ctx context.Context, key string) (Object, error)
}

// An objectReader is a Source that can read a whole object in a single
// request.
type objectReader interface {
	ReadObject(ctx context.Context, key string) ([]byte, error)
}

// An objectStreamer is a Source that can stream a whole object in a single
// request. The returned size is -1 if it is unknown.
type objectStreamer interface {
	openStream(ctx context.Context, key string) (io.ReadCloser, int64, error)
}

// A meteredReadCloser counts the bytes read from a remote source.
type meteredReadCloser struct {
	io.ReadCloser
}

func (r meteredReadCloser) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	sourceBytesRead.Add(float64(n))
	return n, err
}

// ReadObject returns the full contents of the object at key.
func ReadObject(ctx context.Context, source Source, key string) ([]byte, error) {
	if r, ok := source.(objectReader); ok {
		return r.ReadObject(ctx, key)
	}
	object, err := source.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer object.Close()
	data := make([]byte, object.Size())
	if _, err := object.ReadAt(data, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return data, nil
}

// readAtRange clamps a ReadAt request for p at off against size. It returns
// the number of bytes to read and io.EOF if the request is truncated.
func readAtRange(p []byte, off, size int64) (int, error) {
	switch {
	case off < 0:
		return 0, errors.New("negative offset")
	case off >= size:
		return 0, io.EOF
	case off+int64(len(p)) > size:
		return int(size - off), io.EOF
	default:
		return len(p), nil
	}
}

// An FSSource reads objects from an fs.FS.
type FSSource struct {
	fsys fs.FS
}

// NewFSSource returns a new FSSource that reads from fsys.
func NewFSSource(fsys fs.FS) *FSSource {
	return &FSSource{fsys: fsys}
}

type fsObject struct {
	io.ReaderAt
	closer io.Closer
	size   int64
}

func (o *fsObject) Close() error { return o.closer.Close() }
func (o *fsObject) Size() int64  { return o.size }

// Open implements Source.Open.
func (s *FSSource) Open(ctx context.Context, key string) (Object, error) {
	file, err := s.fsys.Open(key)
	if err != nil {
		return nil, err
	}
	fileInfo, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if readerAt, ok := file.(io.ReaderAt); ok {
		return &fsObject{
			ReaderAt: readerAt,
			closer:   file,
			size:     fileInfo.Size(),
		}, nil
	}
	data, err := io.ReadAll(file)
	_ = file.Close()
	if err != nil {
		return nil, err
	}
	return &fsObject{
		ReaderAt: bytes.NewReader(data),
		closer:   io.NopCloser(nil),
		size:     int64(len(data)),
	}, nil
}

// ReadObject implements objectReader.ReadObject.
func (s *FSSource) ReadObject(ctx context.Context, key string) ([]byte, error) {
	return fs.ReadFile(s.fsys, key)
}

// An HTTPSource reads objects over HTTP using range requests.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource returns a new HTTPSource that resolves keys relative to
// baseURL. If client is nil then http.DefaultClient is used.
func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{
		baseURL: baseURL,
		client:  client,
	}
}

// URL returns the URL of key.
func (s *HTTPSource) URL(key string) (string, error) {
	return url.JoinPath(s.baseURL, key)
}

type httpObject struct {
	ctx    context.Context
	source *HTTPSource
	url    string
	size   int64
}

// Open implements Source.Open.
func (s *HTTPSource) Open(ctx context.Context, key string) (Object, error) {
	objectURL, err := s.URL(key)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, objectURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	if err := checkHTTPStatus(resp, objectURL); err != nil {
		return nil, err
	}
	if resp.ContentLength < 0 {
		return nil, fmt.Errorf("%s: unknown content length", objectURL)
	}
	sourceRequests.WithLabelValues("http").Inc()
	return &httpObject{
		ctx:    ctx,
		source: s,
		url:    objectURL,
		size:   resp.ContentLength,
	}, nil
}

// ReadObject implements objectReader.ReadObject.
func (s *HTTPSource) ReadObject(ctx context.Context, key string) ([]byte, error) {
	body, _, err := s.openStream(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// openStream implements objectStreamer.openStream.
func (s *HTTPSource) openStream(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	objectURL, err := s.URL(key)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, objectURL, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	sourceRequests.WithLabelValues("http").Inc()
	if err := checkHTTPStatus(resp, objectURL); err != nil {
		resp.Body.Close()
		return nil, 0, err
	}
	return meteredReadCloser{ReadCloser: resp.Body}, resp.ContentLength, nil
}

func (o *httpObject) Close() error { return nil }
func (o *httpObject) Size() int64  { return o.size }

func (o *httpObject) ReadAt(p []byte, off int64) (int, error) {
	n, rangeErr := readAtRange(p, off, o.size)
	if n == 0 {
		return 0, rangeErr
	}
	req, err := http.NewRequestWithContext(o.ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", "bytes="+strconv.FormatInt(off, 10)+"-"+strconv.FormatInt(off+int64(n)-1, 10))
	resp, err := o.source.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	sourceRequests.WithLabelValues("http").Inc()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		// The server ignored the range, so skip to the requested offset.
		if _, err := io.CopyN(io.Discard, resp.Body, off); err != nil {
			return 0, err
		}
	default:
		return 0, checkHTTPStatus(resp, o.url)
	}
	m, err := io.ReadFull(resp.Body, p[:n])
	sourceBytesRead.Add(float64(m))
	if err != nil {
		return m, err
	}
	return m, rangeErr
}

func checkHTTPStatus(resp *http.Response, url string) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", url, fs.ErrNotExist)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%s: unexpected status %s", url, resp.Status)
	default:
		return nil
	}
}

// An S3Source reads objects from an S3 bucket using ranged GetObject
// requests.
type S3Source struct {
	s3API  s3iface.S3API
	bucket string
}

// NewS3Source returns a new S3Source that reads from bucket.
func NewS3Source(s3API s3iface.S3API, bucket string) *S3Source {
	return &S3Source{
		s3API:  s3API,
		bucket: bucket,
	}
}

type s3Object struct {
	ctx    context.Context
	source *S3Source
	key    string
	size   int64
}

// Open implements Source.Open.
func (s *S3Source) Open(ctx context.Context, key string) (Object, error) {
	output, err := s.s3API.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	sourceRequests.WithLabelValues("s3").Inc()
	if err != nil {
		return nil, s.wrapError(key, err)
	}
	return &s3Object{
		ctx:    ctx,
		source: s,
		key:    key,
		size:   aws.Int64Value(output.ContentLength),
	}, nil
}

// ReadObject implements objectReader.ReadObject.
func (s *S3Source) ReadObject(ctx context.Context, key string) ([]byte, error) {
	body, _, err := s.openStream(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// openStream implements objectStreamer.openStream.
func (s *S3Source) openStream(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	output, err := s.s3API.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	sourceRequests.WithLabelValues("s3").Inc()
	if err != nil {
		return nil, 0, s.wrapError(key, err)
	}
	size := int64(-1)
	if output.ContentLength != nil {
		size = *output.ContentLength
	}
	return meteredReadCloser{ReadCloser: output.Body}, size, nil
}

func (s *S3Source) wrapError(key string, err error) error {
	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		switch awsErr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return fmt.Errorf("s3://%s/%s: %w", s.bucket, key, fs.ErrNotExist)
		}
	}
	return fmt.Errorf("s3://%s/%s: %w", s.bucket, key, err)
}

func (o *s3Object) Close() error { return nil }
func (o *s3Object) Size() int64  { return o.size }

func (o *s3Object) ReadAt(p []byte, off int64) (int, error) {
	n, rangeErr := readAtRange(p, off, o.size)
	if n == 0 {
		return 0, rangeErr
	}
	output, err := o.source.s3API.GetObjectWithContext(o.ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.source.bucket),
		Key:    aws.String(o.key),
		Range:  aws.String("bytes=" + strconv.FormatInt(off, 10) + "-" + strconv.FormatInt(off+int64(n)-1, 10)),
	})
	sourceRequests.WithLabelValues("s3").Inc()
	if err != nil {
		return 0, o.source.wrapError(o.key, err)
	}
	defer output.Body.Close()
	m, err := io.ReadFull(output.Body, p[:n])
	sourceBytesRead.Add(float64(m))
	if err != nil {
		return m, err
	}
	return m, rangeErr
}
