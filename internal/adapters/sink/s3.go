package sink

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fieldrank/fieldrank/pkg/logger"
)

// s3API is the slice of the S3 client the sink uses.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads result artifacts to an S3 bucket.
type S3Sink struct {
	client s3API
	bucket string
	log    logger.Logger
}

var _ Sink = (*S3Sink)(nil)

// S3Config configures the S3 sink.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // non-empty for localstack / minio
	PathStyle bool
}

// NewS3Sink builds a sink backed by a real S3 client.
func NewS3Sink(ctx context.Context, cfg S3Config, log logger.Logger) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket not configured")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return newS3Sink(client, cfg.Bucket, log), nil
}

func newS3Sink(client s3API, bucket string, log logger.Logger) *S3Sink {
	return &S3Sink{
		client: client,
		bucket: bucket,
		log:    log.Named("sink.s3"),
	}
}

// Write uploads the gzip JSON and CSV artifacts for the result set.
func (s *S3Sink) Write(ctx context.Context, rs ResultSet) ([]Artifact, error) {
	jsonBody, err := encodeJSONGzip(rs)
	if err != nil {
		return nil, err
	}
	csvBody, err := encodeCSV(rs)
	if err != nil {
		return nil, err
	}

	artifacts := []Artifact{
		{Key: jsonKey(rs.Period, rs.CalculationID), ContentType: "application/json", Size: len(jsonBody)},
		{Key: csvKey(rs.Period, rs.CalculationID), ContentType: "text/csv", Size: len(csvBody)},
	}
	bodies := [][]byte{jsonBody, csvBody}
	encodings := []string{"gzip", ""}

	for i, a := range artifacts {
		in := &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(a.Key),
			Body:        bytes.NewReader(bodies[i]),
			ContentType: aws.String(a.ContentType),
			Metadata: map[string]string{
				"calculation-id": rs.CalculationID,
				"period":         rs.Period,
			},
		}
		if encodings[i] != "" {
			in.ContentEncoding = aws.String(encodings[i])
		}
		if _, err := s.client.PutObject(ctx, in); err != nil {
			return nil, fmt.Errorf("upload %s: %w", a.Key, err)
		}
		s.log.Info(ctx, "uploaded artifact",
			logger.String("key", a.Key),
			logger.Int("size", a.Size))
	}
	return artifacts, nil
}
