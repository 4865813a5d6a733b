package storage

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/phdwriter/essay_go_server/config"
)

// Client stores generated essay documents in OSS so downloads survive
// server restarts. Optional: when unconfigured the essay content is served
// straight from the database.
type Client struct {
	client     *oss.Client
	bucket     *oss.Bucket
	bucketName string
	cdnDomain  string
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &Client{
		client:     client,
		bucket:     bucket,
		bucketName: cfg.BucketName,
		cdnDomain:  cfg.CDNDomain,
	}, nil
}

// UploadEssay stores one essay document and returns its URL.
func (c *Client) UploadEssay(essayID int64, content []byte) (string, error) {
	objectKey := fmt.Sprintf("essays/%d/%d.txt", essayID, time.Now().Unix())

	err := c.bucket.PutObject(objectKey, bytes.NewReader(content),
		oss.ContentType("text/plain; charset=utf-8"))
	if err != nil {
		return "", fmt.Errorf("failed to upload essay: %w", err)
	}

	return c.GetURL(objectKey), nil
}

// Delete removes a stored object.
func (c *Client) Delete(objectKey string) error {
	if err := c.bucket.DeleteObject(objectKey); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// GetURL builds the public URL, preferring the CDN domain.
func (c *Client) GetURL(objectKey string) string {
	if c.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", strings.TrimSuffix(c.cdnDomain, "/"), objectKey)
	}
	return fmt.Sprintf("https://%s.%s/%s", c.bucketName, c.client.Config.Endpoint, objectKey)
}
