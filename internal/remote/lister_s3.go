package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/s3bsync/s3bsync/internal/syncstate"
)

// ObjectLister lists the objects stored under a key prefix.
type ObjectLister interface {
	ListObjects(ctx context.Context, bucket, prefix string) ([]*syncstate.FileObject, error)
}

type S3Lister struct {
	s3Client *s3.Client
}

func NewS3Lister(s3Client *s3.Client) *S3Lister {
	return &S3Lister{s3Client: s3Client}
}

func NewS3ListerWithConfig(ctx context.Context, cfg *S3Config) (*S3Lister, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          32,
			MaxIdleConnsPerHost:   maxConcurrentListings,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
		Timeout: 30 * time.Second,
	}

	opts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
	}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %w", syncstate.ErrIOFailure, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3Lister(client), nil
}

// ListObjects returns every object below prefix + "/", in listing order.
func (l *S3Lister) ListObjects(ctx context.Context, bucket, prefix string) ([]*syncstate.FileObject, error) {
	var objects []*syncstate.FileObject

	paginator := s3.NewListObjectsV2Paginator(l.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix + "/"),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list s3://%s/%s: %w", syncstate.ErrIOFailure, bucket, prefix, err)
		}

		for _, obj := range page.Contents {
			objects = append(objects, &syncstate.FileObject{
				Key:      aws.ToString(obj.Key),
				Modified: aws.ToTime(obj.LastModified).UnixMilli(),
				ETag:     NormalizeETag(aws.ToString(obj.ETag)),
				Size:     aws.ToInt64(obj.Size),
			})
		}
	}

	return objects, nil
}

// NormalizeETag strips the quotes S3 puts around etags.
func NormalizeETag(etag string) string {
	return strings.ReplaceAll(etag, "\"", "")
}

var _ ObjectLister = (*S3Lister)(nil)
