package remotefs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"pidrive-backend/internal/config"
	"pidrive-backend/internal/logging"
)

// S3Client emulates a directory tree over a flat bucket. A path maps
// to an object key; a folder is the key with a trailing slash, written
// as an empty marker object so empty folders survive listings.
type S3Client struct {
	client *s3.Client
	bucket string
	root   string
}

func DialS3(cfg *config.S3Config, baseDir string) (*S3Client, error) {
	awsCfg := aws.Config{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		),
	}

	endpoint := cfg.Endpoint
	if endpoint != "" && !strings.Contains(endpoint, "://") {
		scheme := "https"
		if !cfg.UseSSL {
			scheme = "http"
		}
		endpoint = scheme + "://" + endpoint
	}
	if endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(endpoint)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Custom endpoints are MinIO-style deployments without
		// bucket subdomains.
		o.UsePathStyle = endpoint != ""
	})

	c := &S3Client{client: client, bucket: cfg.Bucket, root: strings.Trim(baseDir, "/")}
	if err := c.EnsureDir(c.root); err != nil {
		return nil, fmt.Errorf("failed to create base prefix %s: %w", c.root, err)
	}

	logging.Info("s3 connected", zap.String("bucket", cfg.Bucket), zap.String("root", c.root))
	return c, nil
}

func (c *S3Client) Root() string {
	return c.root
}

func (c *S3Client) Stat(p string) (Entry, error) {
	head, err := c.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(p),
	})
	if err == nil {
		return Entry{
			Name:    baseName(p),
			Size:    aws.ToInt64(head.ContentLength),
			ModTime: aws.ToTime(head.LastModified),
		}, nil
	}
	if !s3NotFound(err) {
		return Entry{}, err
	}

	// Not a file; a folder exists if its marker or any child does.
	out, err := c.client.ListObjectsV2(context.Background(), &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucket),
		Prefix:  aws.String(p + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return Entry{}, err
	}
	if aws.ToInt32(out.KeyCount) == 0 {
		return Entry{}, &classifiedError{err: fmt.Errorf("stat %s: no such object", p), class: fs.ErrNotExist}
	}
	return Entry{Name: baseName(p), Dir: true}, nil
}

func (c *S3Client) ReadDir(p string) ([]Entry, error) {
	prefix := p + "/"
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}

	var entries []Entry
	paginator := s3.NewListObjectsV2Paginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return nil, err
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if name != "" {
				entries = append(entries, Entry{Name: name, Dir: true})
			}
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" || strings.HasSuffix(name, "/") {
				continue // folder marker
			}
			entries = append(entries, Entry{
				Name:    name,
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}
	return entries, nil
}

func (c *S3Client) Open(p string) (io.ReadCloser, error) {
	out, err := c.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(p),
	})
	if err != nil {
		if s3NotFound(err) {
			return nil, &classifiedError{err: err, class: fs.ErrNotExist}
		}
		return nil, err
	}
	return out.Body, nil
}

// Create buffers writes and uploads the object on Close; S3 has no
// partial-write surface to stream into.
func (c *S3Client) Create(p string) (io.WriteCloser, error) {
	return &s3Writer{client: c, key: p}, nil
}

func (c *S3Client) Mkdir(p string) error {
	return c.putEmpty(p + "/")
}

func (c *S3Client) EnsureDir(p string) error {
	if _, err := c.Stat(p); err == nil {
		return nil
	}
	return c.Mkdir(p)
}

func (c *S3Client) Remove(p string) error {
	return c.deleteKey(p)
}

func (c *S3Client) RemoveDir(p string) error {
	return c.deleteKey(p + "/")
}

// Rename copies then deletes; S3 has no native move, so an existing
// target is silently replaced and callers must check for conflicts
// first. Folder renames rewrite every key under the old prefix.
func (c *S3Client) Rename(oldPath, newPath string) error {
	entry, err := c.Stat(oldPath)
	if err != nil {
		return err
	}
	if !entry.Dir {
		return c.moveKey(oldPath, newPath)
	}

	oldPrefix := oldPath + "/"
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(oldPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return err
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			target := newPath + "/" + strings.TrimPrefix(key, oldPrefix)
			if err := c.moveKey(key, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *S3Client) Replace(oldPath, newPath string) error {
	return c.moveKey(oldPath, newPath)
}

func (c *S3Client) Close() error {
	return nil
}

func (c *S3Client) putEmpty(key string) error {
	_, err := c.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(nil),
	})
	return err
}

func (c *S3Client) deleteKey(key string) error {
	_, err := c.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (c *S3Client) moveKey(oldKey, newKey string) error {
	source := (&url.URL{Path: c.bucket + "/" + oldKey}).EscapedPath()
	_, err := c.client.CopyObject(context.Background(), &s3.CopyObjectInput{
		Bucket:     aws.String(c.bucket),
		CopySource: aws.String(source),
		Key:        aws.String(newKey),
	})
	if err != nil {
		if s3NotFound(err) {
			return &classifiedError{err: err, class: fs.ErrNotExist}
		}
		return err
	}
	return c.deleteKey(oldKey)
}

type s3Writer struct {
	client *S3Client
	key    string
	buf    bytes.Buffer
}

func (w *s3Writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	_, err := w.client.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(w.client.bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf.Bytes()),
	})
	return err
}

func s3NotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}

func baseName(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
