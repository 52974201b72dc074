// Package service contains the business logic behind the API: job
// lifecycle management and artifact storage.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jmylchreest/llmtxt-api/internal/config"
	"github.com/jmylchreest/llmtxt-api/internal/models"
)

const statusObjectName = "status.json"

// StorageService persists job state and generated artifacts in
// S3-compatible object storage. Layout under the configured prefix:
//
//	<prefix>/<job_id>/status.json   full job record
//	<prefix>/<job_id>/<filename>    generated artifacts
//
// When storage is not configured every method is a silent no-op, so
// the API degrades to memory-only operation.
type StorageService struct {
	client  *s3.Client
	bucket  string
	prefix  string
	enabled bool
	logger  *slog.Logger
}

// NewStorageService creates the storage service. Returns a disabled
// service when the bucket or endpoint is not configured.
func NewStorageService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*StorageService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "storage")

	if !cfg.StorageEnabled {
		logger.Info("object storage not configured, artifacts are memory-only")
		return &StorageService{enabled: false, logger: logger}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.StorageRegion),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.StorageAccessKey, cfg.StorageSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.StorageEndpoint)
		o.UsePathStyle = true
	})

	logger.Info("object storage configured",
		"bucket", cfg.StorageBucket, "endpoint", cfg.StorageEndpoint, "prefix", cfg.StoragePrefix)

	return &StorageService{
		client:  client,
		bucket:  cfg.StorageBucket,
		prefix:  strings.Trim(cfg.StoragePrefix, "/"),
		enabled: true,
		logger:  logger,
	}, nil
}

// Enabled reports whether object storage is configured.
func (s *StorageService) Enabled() bool {
	return s.enabled
}

// Client exposes the underlying S3 client for components that manage
// their own objects, such as the log filter loader. Nil when disabled.
func (s *StorageService) Client() *s3.Client {
	return s.client
}

// Bucket returns the configured bucket name.
func (s *StorageService) Bucket() string {
	return s.bucket
}

func (s *StorageService) jobKey(jobID, name string) string {
	return path.Join(s.prefix, jobID, name)
}

// SaveJob writes the job record to status.json. Metadata carries the
// status and a truncated URL so listings do not need the body.
func (s *StorageService) SaveJob(ctx context.Context, job *models.Job) error {
	if !s.enabled {
		return nil
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	url := job.URL
	if len(url) > 100 {
		url = url[:100]
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.jobKey(job.ID, statusObjectName)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"status": string(job.Status),
			"url":    url,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// LoadJob reads a job record back from status.json.
func (s *StorageService) LoadJob(ctx context.Context, jobID string) (*models.Job, error) {
	if !s.enabled {
		return nil, fmt.Errorf("storage disabled")
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.jobKey(jobID, statusObjectName)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", jobID, err)
	}

	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", jobID, err)
	}
	return &job, nil
}

// SaveArtifact stores a generated file under the job's prefix.
func (s *StorageService) SaveArtifact(ctx context.Context, jobID, filename, content string) error {
	if !s.enabled {
		return nil
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.jobKey(jobID, filename)),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain; charset=utf-8"),
		Metadata: map[string]string{
			"job_id":   jobID,
			"filename": filename,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to save artifact %s/%s: %w", jobID, filename, err)
	}
	return nil
}

// LoadArtifact reads a generated file back.
func (s *StorageService) LoadArtifact(ctx context.Context, jobID, filename string) (string, error) {
	if !s.enabled {
		return "", fmt.Errorf("storage disabled")
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.jobKey(jobID, filename)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to load artifact %s/%s: %w", jobID, filename, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read artifact %s/%s: %w", jobID, filename, err)
	}
	return string(data), nil
}

// JobExists checks for a status.json without fetching it. Errors are
// treated as absence.
func (s *StorageService) JobExists(ctx context.Context, jobID string) bool {
	if !s.enabled {
		return false
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.jobKey(jobID, statusObjectName)),
	})
	return err == nil
}

// ListJobs enumerates persisted jobs from the job prefixes, reading
// status and URL from object metadata.
func (s *StorageService) ListJobs(ctx context.Context) ([]models.JobSummary, error) {
	if !s.enabled {
		return nil, nil
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.prefix + "/"),
		Delimiter: aws.String("/"),
	})

	var summaries []models.JobSummary
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list jobs: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			jobID := path.Base(strings.TrimSuffix(aws.ToString(cp.Prefix), "/"))
			head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(s.jobKey(jobID, statusObjectName)),
			})
			if err != nil {
				continue
			}
			summary := models.JobSummary{
				ID:     jobID,
				Status: models.JobStatus(head.Metadata["status"]),
				URL:    head.Metadata["url"],
			}
			if head.LastModified != nil {
				summary.LastModified = *head.LastModified
			}
			if head.ContentLength != nil {
				summary.SizeBytes = *head.ContentLength
			}
			summaries = append(summaries, summary)
		}
	}
	return summaries, nil
}

// DeleteJob removes everything stored under the job's prefix.
func (s *StorageService) DeleteJob(ctx context.Context, jobID string) error {
	if !s.enabled {
		return nil
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.jobKey(jobID, "") + "/"),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list job %s objects: %w", jobID, err)
		}
		for _, obj := range page.Contents {
			_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				return fmt.Errorf("failed to delete %s: %w", aws.ToString(obj.Key), err)
			}
		}
	}
	return nil
}

// CleanupOldJobs deletes jobs whose status.json is older than maxAge.
// Returns how many jobs were removed.
func (s *StorageService) CleanupOldJobs(ctx context.Context, maxAge time.Duration) (int, error) {
	if !s.enabled {
		return 0, nil
	}

	summaries, err := s.ListJobs(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, summary := range summaries {
		if summary.LastModified.After(cutoff) {
			continue
		}
		if err := s.DeleteJob(ctx, summary.ID); err != nil {
			s.logger.Warn("cleanup failed for job", "job_id", summary.ID, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("cleaned up old jobs", "removed", removed, "max_age", maxAge)
	}
	return removed, nil
}
