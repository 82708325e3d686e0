// Package archive ships finished job artifacts to S3 for long-term storage.
// Archival is best-effort: it runs after a job completes and never changes
// job state.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// S3Archiver uploads artifact files to s3://<bucket>/<prefix>/<job_id>/.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Archiver creates an archiver against the given bucket. Credentials
// and region come from the default AWS config chain.
func NewS3Archiver(ctx context.Context, bucket, region, prefix string) (*S3Archiver, error) {
	opts := []func(*awscfg.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awscfg.WithRegion(region))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &S3Archiver{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Archive uploads each artifact file. One failed upload does not stop the
// others; the first error is returned for logging.
func (a *S3Archiver) Archive(ctx context.Context, jobID string, artifactPaths map[string]string) error {
	var firstErr error
	for name, filePath := range artifactPaths {
		data, err := os.ReadFile(filePath)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("read %s: %w", name, err)
			}
			continue
		}

		key := path.Join(a.prefix, jobID, name+".json")
		_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			log.Warn().Err(err).Str("job_id", jobID).Str("key", key).Msg("artifact upload failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("upload %s: %w", name, err)
			}
			continue
		}
		log.Debug().Str("job_id", jobID).Str("key", key).Msg("artifact archived")
	}
	return firstErr
}
