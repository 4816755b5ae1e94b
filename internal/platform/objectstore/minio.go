package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectInfo is the listing view of one object version.
type ObjectInfo struct {
	Bucket      string
	Key         string
	VersionID   string
	Size        int64
	ETag        string
	ContentType string
}

// Client reads object listings and result files. It never writes.
type Client struct {
	mc  *minio.Client
	cfg Config
}

func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

func New(cfg Config) (*Client, error) {
	mc, err := NewMinIOClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{mc: mc, cfg: cfg}, nil
}

func (c *Client) ResultsBucket() string {
	return c.cfg.ResultsBucket
}

// CheckBucket is used by readiness checks.
func (c *Client) CheckBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.cfg.ResultsBucket)
	if err != nil {
		return fmt.Errorf("results bucket exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("results bucket missing: %s", c.cfg.ResultsBucket)
	}
	return nil
}

// ListObjects returns every object under prefix, recursively.
func (c *Client) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	out := make([]ObjectInfo, 0)
	for obj := range c.mc.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", bucket, prefix, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		out = append(out, toObjectInfo(bucket, obj))
	}
	return out, nil
}

// OpenObject opens the current version of key. Callers close the reader.
func (c *Client) OpenObject(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error) {
	obj, err := c.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, ObjectInfo{}, fmt.Errorf("stat %s/%s: %w", bucket, key, err)
	}
	return obj, toObjectInfo(bucket, stat), nil
}

// IsNotFound reports whether err is a missing bucket or key response.
func IsNotFound(err error) bool {
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		return false
	}
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound
}

func toObjectInfo(bucket string, obj minio.ObjectInfo) ObjectInfo {
	return ObjectInfo{
		Bucket:      bucket,
		Key:         obj.Key,
		VersionID:   obj.VersionID,
		Size:        obj.Size,
		ETag:        strings.Trim(obj.ETag, `"`),
		ContentType: obj.ContentType,
	}
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
