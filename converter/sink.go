package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
	"gocloud.dev/gcp"

	"github.com/janelia-flyem/wsiview/wsi"
)

// Sink stores the files of a converted site under slash-separated keys.
type Sink interface {
	// Exists returns true if a file with the key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// NonEmpty returns true if any file key starts with the prefix.
	NonEmpty(ctx context.Context, prefix string) (bool, error)

	// Write stores the data under the key, replacing any existing file.
	Write(ctx context.Context, key string, data []byte) error

	// Close releases the sink.
	Close() error

	fmt.Stringer
}

// OpenSink returns a sink for an output location, which is either a local directory
// or a bucket URL such as gs://bucket/prefix, s3://bucket/prefix, file:///dir or mem://.
func OpenSink(ctx context.Context, output string) (Sink, error) {
	if output == "" {
		return nil, fmt.Errorf("no output location given")
	}
	if !strings.Contains(output, "://") {
		return newDirSink(output)
	}
	bucket, err := OpenBucket(ctx, output)
	if err != nil {
		return nil, err
	}
	return &bucketSink{ref: output, bucket: bucket}, nil
}

// OpenBucket returns a blob.Bucket for the given reference.
// The reference should be of the form:
//
//	gs://<bucketname>[/<prefix>]
//	s3://<bucketname>[/<prefix>]
//	file:///<directory>
//	mem://
func OpenBucket(ctx context.Context, ref string) (bucket *blob.Bucket, err error) {
	scheme, rest, _ := strings.Cut(ref, "://")
	switch scheme {
	case "gs":
		// Use Google default credentials.  See
		// https://cloud.google.com/docs/authentication/production
		bucketName, prefix, _ := strings.Cut(rest, "/")
		creds, err := gcp.DefaultCredentials(ctx)
		if err != nil {
			return nil, err
		}
		client, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
		if err != nil {
			return nil, err
		}
		bucket, err = gcsblob.OpenBucket(ctx, client, bucketName, nil)
		if err != nil {
			wsi.Errorf("Can't open bucket reference @ %q: %v\n", ref, err)
			return nil, err
		}
		return prefixed(bucket, prefix), nil

	case "s3":
		// Requires AWS credentials where gocloud can find them.  Query parameters
		// like region are passed on to the bucket opener.
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("bad bucket reference %q: %v", ref, err)
		}
		prefix := u.Path
		u.Path = ""
		bucket, err = blob.OpenBucket(ctx, u.String())
		if err != nil {
			wsi.Errorf("Can't open bucket reference @ %q: %v\n", ref, err)
			return nil, err
		}
		return prefixed(bucket, prefix), nil

	default:
		if scheme == "file" {
			if err := os.MkdirAll(filepath.FromSlash(rest), 0755); err != nil {
				return nil, err
			}
		}
		bucket, err = blob.OpenBucket(ctx, ref)
		if err != nil {
			wsi.Errorf("Can't open bucket reference @ %q: %v\n", ref, err)
			return nil, err
		}
		return bucket, nil
	}
}

func prefixed(bucket *blob.Bucket, prefix string) *blob.Bucket {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return bucket
	}
	return blob.PrefixedBucket(bucket, prefix+"/")
}

// contentType returns the MIME type of a site file.
func contentType(key string) string {
	switch path.Ext(key) {
	case ".jpeg", ".jpg":
		return wsi.JPEG.ContentType()
	case ".png":
		return wsi.PNG.ContentType()
	case ".dzi":
		return "application/xml"
	case ".html":
		return "text/html; charset=utf-8"
	}
	return "application/octet-stream"
}

// bucketSink writes to a gocloud blob bucket.
type bucketSink struct {
	ref    string
	bucket *blob.Bucket
}

// NewBucketSink returns a sink that writes into an open bucket.  Closing the sink
// closes the bucket.
func NewBucketSink(bucket *blob.Bucket) Sink {
	return &bucketSink{ref: "bucket", bucket: bucket}
}

func (s *bucketSink) String() string {
	return s.ref
}

func (s *bucketSink) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.Exists(ctx, key)
}

func (s *bucketSink) NonEmpty(ctx context.Context, prefix string) (bool, error) {
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix})
	_, err := iter.Next(ctx)
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *bucketSink) Write(ctx context.Context, key string, data []byte) error {
	opts := &blob.WriterOptions{ContentType: contentType(key)}
	if err := s.bucket.WriteAll(ctx, key, data, opts); err != nil {
		return wsi.IOError(err, "unable to write %s to %s", key, s.ref)
	}
	return nil
}

func (s *bucketSink) Close() error {
	return s.bucket.Close()
}

// dirSink writes plain files into a local directory.
type dirSink struct {
	root string
}

func newDirSink(dir string) (*dirSink, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, wsi.IOError(err, "unable to create output directory %s", root)
	}
	return &dirSink{root: root}, nil
}

func (s *dirSink) String() string {
	return s.root
}

func (s *dirSink) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *dirSink) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// NonEmpty expects prefixes naming a directory.
func (s *dirSink) NonEmpty(ctx context.Context, prefix string) (bool, error) {
	entries, err := os.ReadDir(s.path(prefix))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return len(entries) > 0, nil
}

// Write goes through a temporary file so readers never see partial files.
func (s *dirSink) Write(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return wsi.IOError(err, "unable to create directory for %s", key)
	}
	f, err := os.CreateTemp(filepath.Dir(p), ".tmp-"+filepath.Base(p)+"-*")
	if err != nil {
		return wsi.IOError(err, "unable to write %s", key)
	}
	tmpName := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpName)
		return wsi.IOError(err, "unable to write %s", key)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		return wsi.IOError(err, "unable to write %s", key)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return wsi.IOError(err, "unable to write %s", key)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return wsi.IOError(err, "unable to write %s", key)
	}
	return nil
}

func (s *dirSink) Close() error {
	return nil
}
