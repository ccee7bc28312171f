package report

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/guarzo/pricepos/internal/logger"
)

// S3Config locates the bucket reports are archived to. Endpoint is set for
// S3-compatible stores such as MinIO.
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// Archiver uploads rendered reports to S3.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
	now    func() time.Time
	log    *logger.Entry
}

func NewArchiver(ctx context.Context, cfg S3Config) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		now:    time.Now,
		log:    logger.GetLogger().WithComponent("report_archive"),
	}, nil
}

// ObjectKey partitions reports by product and UTC day.
func ObjectKey(prefix, externalID string, at time.Time) string {
	at = at.UTC()
	return path.Join(
		prefix,
		"product="+externalID,
		"date="+at.Format("2006-01-02"),
		fmt.Sprintf("report-%s.csv", at.Format("150405")),
	)
}

// Archive uploads a rendered CSV report and returns its object key.
func (a *Archiver) Archive(ctx context.Context, externalID string, data []byte) (string, error) {
	key := ObjectKey(a.prefix, externalID, a.now())
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
		Metadata: map[string]string{
			"product-id": externalID,
		},
	}
	if _, err := a.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload report %s: %w", key, err)
	}

	a.log.WithFields(logger.Fields{"bucket": a.bucket, "key": key, "bytes": len(data)}).Info("report archived")
	return key, nil
}
