// Package storage is the blob-store collaborator: thin put/get/stage
// operations against S3 (or LocalStack in development).
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/geodata-tools/granule-dl/internal/logging"
)

// Options configures the blob-store client.
type Options struct {
	Region         string
	UseLocalstack  bool
	LocalstackHost string
	StagingBucket  string
	StagingPath    string
	// Env short-circuits staging in dev/test without LocalStack, so local
	// runs never write to production buckets.
	Env       string
	UserAgent string
}

// Client wraps the S3 SDK for the handful of operations the retrieval
// pipeline needs.
type Client struct {
	s3  *s3.Client
	opt Options
}

// New builds the blob-store client. With UseLocalstack set, the client
// targets http://<LocalstackHost>:4566 with static dummy credentials and
// path-style addressing.
func New(ctx context.Context, opt Options) (*Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opt.Region),
	}
	if opt.UseLocalstack {
		loadOpts = append(loadOpts,
			awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider("ACCESS_KEY", "SECRET_KEY", "")))
	}
	if opt.UserAgent != "" {
		loadOpts = append(loadOpts, awsconfig.WithAppID(opt.UserAgent))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opt.UseLocalstack {
			o.BaseEndpoint = aws.String(fmt.Sprintf("http://%s:4566", opt.LocalstackHost))
			o.UsePathStyle = true
		}
	})

	return &Client{s3: client, opt: opt}, nil
}

// ParseURL splits an s3://bucket/key URL.
func ParseURL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 url %q: %w", rawURL, err)
	}
	if !strings.EqualFold(u.Scheme, "s3") || u.Host == "" {
		return "", "", fmt.Errorf("not an s3 url: %q", rawURL)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// Download streams the object at the given s3:// URL into w.
func (c *Client) Download(ctx context.Context, rawURL string, w io.Writer) error {
	bucket, key, err := ParseURL(rawURL)
	if err != nil {
		return err
	}

	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("failed to read s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// WriteText puts a small text object at the given s3:// URL.
func (c *Client) WriteText(ctx context.Context, rawURL, text string) error {
	bucket, key, err := ParseURL(rawURL)
	if err != nil {
		return err
	}
	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(text),
	})
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// Stage uploads a local file under the staging location with the given
// remote name and content type, returning its s3:// URL. location, when
// set, is an s3:// prefix overriding the configured bucket/path.
func (c *Client) Stage(ctx context.Context, localPath, remoteName, contentType, location string) (string, error) {
	log := logging.With("storage")

	bucket := c.opt.StagingBucket
	var key string
	switch {
	case location != "":
		var prefix string
		var err error
		bucket, prefix, err = ParseURL(location)
		if err != nil {
			return "", err
		}
		key = prefix + remoteName
	case c.opt.StagingPath != "":
		key = path.Join(c.opt.StagingPath, remoteName)
	default:
		key = remoteName
	}

	if (c.opt.Env == "dev" || c.opt.Env == "test") && !c.opt.UseLocalstack {
		log.Warn().Str("env", c.opt.Env).Str("file", localPath).
			Msg("dev/test environment without LocalStack, skipping stage")
		return "http://example.com/" + key, nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for staging: %w", localPath, err)
	}
	defer f.Close()

	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", localPath, err)
	}

	staged := fmt.Sprintf("s3://%s/%s", bucket, key)
	log.Info().Str("url", staged).Str("content_type", contentType).Msg("staged output")
	return staged, nil
}
