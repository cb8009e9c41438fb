// Package archive writes events that exhausted index-retry to S3 for cold
// storage replay, date-partitioned the way the router service's S3
// destination partitions its own output.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Config configures the Archiver. An empty Bucket disables archiving:
// Put becomes a no-op so the Processor runs without S3 credentials in
// environments that only care about the live index.
type Config struct {
	Bucket string
	Prefix string
	Region string
}

type Archiver struct {
	cfg    Config
	client *s3.Client
}

func New(ctx context.Context, cfg Config) (*Archiver, error) {
	if cfg.Bucket == "" {
		return &Archiver{cfg: cfg}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Archiver{cfg: cfg, client: s3.NewFromConfig(awsCfg)}, nil
}

// Put gzips and uploads the dead-lettered event payload under a
// date-partitioned key: <prefix>/YYYY/MM/DD/<source>-<uuid>.json.gz.
func (a *Archiver) Put(ctx context.Context, source string, payload []byte) error {
	if a.client == nil {
		return nil
	}

	compressed, err := gzipBytes(payload)
	if err != nil {
		return fmt.Errorf("compress archive payload: %w", err)
	}

	now := time.Now().UTC()
	key := path.Join(a.cfg.Prefix, now.Format("2006/01/02"), fmt.Sprintf("%s-%s.json.gz", source, uuid.NewString()))

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(compressed),
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return fmt.Errorf("upload archive object: %w", err)
	}
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
