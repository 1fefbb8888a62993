// Package s3 handles S3 storage for archived configuration snapshots.
package s3

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/supporttools/GoNetGuard/pkg/config"
	"github.com/supporttools/GoNetGuard/pkg/metrics"
)

// Client represents an S3 client
type Client struct {
	s3Client *s3.Client
	cfg      config.S3Config
	debug    bool
}

// NewClient creates a new S3 client
func NewClient() (*Client, error) {
	if !config.CFG.S3.Enabled {
		return nil, fmt.Errorf("S3 storage is not enabled in configuration")
	}

	s3Client, err := getS3Client(config.CFG.S3, config.CFG.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	return &Client{
		s3Client: s3Client,
		cfg:      config.CFG.S3,
		debug:    config.CFG.Debug,
	}, nil
}

// httpClientFor builds an HTTP client honouring the custom CA and verification settings
func httpClientFor(cfg config.S3Config) (*http.Client, error) {
	httpClient := &http.Client{}
	if !cfg.UseSSL {
		return httpClient, nil
	}

	tlsConfig := &tls.Config{}

	if cfg.CustomCAPath != "" && !cfg.SkipCertValidation {
		rootCAs, _ := x509.SystemCertPool()
		if rootCAs == nil {
			rootCAs = x509.NewCertPool()
		}

		caCert, err := os.ReadFile(cfg.CustomCAPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read custom CA certificate: %w", err)
		}
		if ok := rootCAs.AppendCertsFromPEM(caCert); !ok {
			return nil, fmt.Errorf("failed to append custom CA certificate")
		}

		tlsConfig.RootCAs = rootCAs
		log.Printf("Using custom CA certificate from %s", cfg.CustomCAPath)
	}

	if cfg.SkipCertValidation {
		tlsConfig.InsecureSkipVerify = true
		log.Printf("Warning: TLS certificate validation is disabled for S3 connections")
	}

	httpClient.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	return httpClient, nil
}

// getS3Client initializes and returns an S3 client based on configuration
func getS3Client(cfg config.S3Config, debug bool) (*s3.Client, error) {
	ctx := context.Background()

	httpClient, err := httpClientFor(cfg)
	if err != nil {
		return nil, err
	}

	sdkOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)),
		awsconfig.WithHTTPClient(httpClient),
	}

	if cfg.Endpoint != "" {
		if debug {
			log.Printf("S3 Debug: region=%s endpoint=%s pathStyle=%v", cfg.Region, cfg.Endpoint, cfg.PathStyle)
		}
		// S3-compatible stores still need a signing region
		region := cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		sdkOptions = append(sdkOptions, awsconfig.WithRegion(region))
	} else {
		sdkOptions = append(sdkOptions, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, sdkOptions...)
	if err != nil {
		return nil, fmt.Errorf("AWS SDK config initialization error: %w", err)
	}

	s3Options := []func(*s3.Options){
		func(o *s3.Options) {
			o.UsePathStyle = cfg.PathStyle || cfg.Endpoint != ""
		},
	}
	if cfg.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return s3.NewFromConfig(awsCfg, s3Options...), nil
}

// Name identifies the storage in metrics and logs
func (c *Client) Name() string {
	return "s3"
}

// Bucket returns the configured bucket
func (c *Client) Bucket() string {
	return c.cfg.Bucket
}

// ObjectKey prefixes an archive key with the configured prefix
func (c *Client) ObjectKey(key string) string {
	return buildObjectKey(c.cfg.Prefix, key)
}

// Put uploads content under the archive key
func (c *Client) Put(ctx context.Context, key string, content []byte) error {
	startTime := time.Now()
	objectKey := c.ObjectKey(key)

	if c.debug {
		log.Printf("S3 Debug: Uploading %d bytes to bucket=%s key=%s", len(content), c.cfg.Bucket, objectKey)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.cfg.Bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		metrics.ArchiveUploads.WithLabelValues("s3", "error").Inc()

		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			log.Printf("S3 Debug: URL error: %v, URL: %v, Op: %v", urlErr.Err, urlErr.URL, urlErr.Op)
		}
		return fmt.Errorf("failed to upload snapshot to S3: %w", err)
	}

	metrics.ArchiveUploadDuration.WithLabelValues("s3").Observe(time.Since(startTime).Seconds())
	metrics.ArchiveUploads.WithLabelValues("s3", "success").Inc()
	log.Printf("Uploaded snapshot to S3: s3://%s/%s", c.cfg.Bucket, objectKey)
	return nil
}

// Get downloads the content stored under the archive key
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(c.ObjectKey(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download snapshot from S3: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object body: %w", err)
	}
	return data, nil
}

// EnforceRetention removes archived objects older than retentionDays. Zero keeps everything.
func (c *Client) EnforceRetention(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		if c.debug {
			log.Printf("S3 snapshots set to keep forever, skipping retention enforcement")
		}
		return 0, nil
	}

	expirationTime := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.cfg.Bucket),
		Prefix: aws.String(buildPrefix(c.cfg.Prefix)),
	})

	removed := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return removed, fmt.Errorf("failed to list S3 objects: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.LastModified == nil || !obj.LastModified.Before(expirationTime) {
				continue
			}
			_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(c.cfg.Bucket),
				Key:    obj.Key,
			})
			if err != nil {
				log.Printf("Failed to delete expired S3 snapshot %s: %v", aws.ToString(obj.Key), err)
				continue
			}
			removed++
			log.Printf("Removed expired S3 snapshot: %s", aws.ToString(obj.Key))
			metrics.RetentionDeletes.WithLabelValues("s3").Inc()
		}
	}
	return removed, nil
}

func buildObjectKey(prefix, key string) string {
	key = strings.TrimPrefix(key, "/")
	if prefix != "" {
		return fmt.Sprintf("%s/%s", strings.Trim(prefix, "/"), key)
	}
	return key
}

func buildPrefix(prefix string) string {
	if prefix != "" {
		return fmt.Sprintf("%s/by-device/", strings.Trim(prefix, "/"))
	}
	return "by-device/"
}
