package oss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/studio233/batchd/config"
)

const presignTTL = time.Hour

// S3Adapter implements Interface for AWS S3 and S3-compatible services.
type S3Adapter struct {
	client    *s3.S3
	uploader  *s3manager.Uploader
	bucket    string
	publicURL string
}

// NewS3 creates an S3 adapter. Static credentials are used when ID is set,
// otherwise the default AWS credential chain applies.
func NewS3(cfg *config.Storage) (*S3Adapter, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("oss: bucket is required for s3")
	}

	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.ID != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.ID, cfg.Secret, ""))
	}
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(cfg.PathStyle)
		if strings.HasPrefix(cfg.Endpoint, "http://") {
			awsCfg = awsCfg.WithDisableSSL(true)
		}
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("oss: create aws session: %w", err)
	}

	return &S3Adapter{
		client:    s3.New(sess),
		uploader:  s3manager.NewUploader(sess),
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

// Put uploads reader with the multipart-aware uploader.
func (s *S3Adapter) Put(ctx context.Context, p string, reader io.Reader, contentType string) (*Object, error) {
	key, err := CleanPath(p)
	if err != nil {
		return nil, err
	}

	counter := &countingReader{r: reader}
	input := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   counter,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.uploader.UploadWithContext(ctx, input); err != nil {
		return nil, fmt.Errorf("oss: upload %s: %w", key, err)
	}

	u, err := s.GetURL(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Object{
		Path:         key,
		Size:         counter.n,
		ContentType:  contentType,
		LastModified: time.Now(),
		URL:          u,
	}, nil
}

// GetURL returns the public URL when configured, otherwise a presigned GET
// URL valid for one hour.
func (s *S3Adapter) GetURL(_ context.Context, p string) (string, error) {
	key, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	if s.publicURL != "" {
		return s.publicURL + "/" + key, nil
	}
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	u, err := req.Presign(presignTTL)
	if err != nil {
		return "", fmt.Errorf("oss: presign %s: %w", key, err)
	}
	return u, nil
}

// Delete removes the object.
func (s *S3Adapter) Delete(ctx context.Context, p string) error {
	key, err := CleanPath(p)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("oss: delete %s: %w", key, err)
	}
	return nil
}

// Exists issues a HEAD request for the object.
func (s *S3Adapter) Exists(ctx context.Context, p string) (bool, error) {
	key, err := CleanPath(p)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("oss: head %s: %w", key, err)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
