package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/bidshelf/internal/metrics"
	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/shared"
	"golang.org/x/time/rate"
)

// ObjectStore is the part of [s3.Client] the fetcher uses.
type ObjectStore interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds an S3 client for the OpenNeuro bucket.
//
// Without static credentials requests are anonymous. A custom endpoint (MinIO or a mirror) switches to path-style addressing.
func NewS3Client(ctx context.Context, cfg shared.OpenNeuroConfig) (*s3.Client, error) {
	var optFns []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	} else {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// OpenNeuroFetcher downloads every object under s3://<bucket>/<database id>/ into destination/<database id>.
//
// Object fetches are paced by a token bucket limiter.
type OpenNeuroFetcher struct {
	client  ObjectStore
	bucket  string
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *log.Logger
}

// NewOpenNeuroFetcher creates a fetcher. requestsPerSecond <= 0 disables pacing.
func NewOpenNeuroFetcher(client ObjectStore, bucket string, requestsPerSecond float64, m *metrics.Metrics, logger *log.Logger) *OpenNeuroFetcher {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &OpenNeuroFetcher{
		client:  client,
		bucket:  bucket,
		limiter: rate.NewLimiter(limit, 1),
		metrics: m,
		logger:  logger,
	}
}

// Handle implements [Handler].
func (f *OpenNeuroFetcher) Handle(ctx context.Context, job models.Job, progress chan<- ProgressUpdate) (string, error) {
	prefix := strings.TrimSuffix(job.DatabaseID, "/") + "/"
	target := filepath.Join(job.Destination, job.DatabaseID)

	if job.Version != "" {
		f.logger.Info("fetching dataset", "database_id", job.DatabaseID, "version", job.Version, "bucket", f.bucket)
	}

	sendProgress(progress, ProgressUpdate{Phase: ListRemote, Message: "listing s3://" + f.bucket + "/" + prefix})

	paginator := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(f.bucket),
		Prefix: aws.String(prefix),
	})

	count := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: listing %s: %v", shared.ErrAPIRequest, prefix, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			rel := strings.TrimPrefix(key, prefix)
			if rel == "" || strings.HasSuffix(key, "/") {
				continue
			}

			if err := f.limiter.Wait(ctx); err != nil {
				return "", err
			}

			n, err := f.download(ctx, key, target, rel)
			if err != nil {
				return "", err
			}
			f.metrics.Downloaded(n)

			count++
			sendProgress(progress, ProgressUpdate{Phase: Download, Step: count, Message: rel})
		}
	}

	if count == 0 {
		return "", fmt.Errorf("%w: no objects found for %s in bucket %s", shared.ErrNotFound, job.DatabaseID, f.bucket)
	}

	return target, nil
}

func (f *OpenNeuroFetcher) download(ctx context.Context, key, root, rel string) (int64, error) {
	dst, err := safeJoin(root, rel)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, err
	}

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: get %s: %v", shared.ErrAPIRequest, key, err)
	}
	defer out.Body.Close()

	file, err := os.Create(dst)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(file, out.Body)
	if err != nil {
		file.Close()
		return n, fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return n, file.Close()
}
