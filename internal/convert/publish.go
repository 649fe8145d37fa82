package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/charmbracelet/log"
)

// Publisher uploads a converted asset and returns where it can be fetched.
type Publisher interface {
	Publish(ctx context.Context, name string, data []byte) (string, error)
}

// DirPublisher copies assets into a second directory, e.g. a web root.
type DirPublisher struct {
	Dir string
}

// Publish implements Publisher.
func (p DirPublisher) Publish(_ context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(p.Dir, name)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", err
	}
	return dst, nil
}

// BucketConfig addresses an S3-compatible bucket (AWS, DigitalOcean
// Spaces, MinIO).
type BucketConfig struct {
	Endpoint  string `env:"TARTIL_S3_ENDPOINT"`
	Region    string `env:"TARTIL_S3_REGION" envDefault:"us-east-1"`
	Bucket    string `env:"TARTIL_S3_BUCKET"`
	Prefix    string `env:"TARTIL_S3_PREFIX" envDefault:"timings"`
	AccessKey string `env:"TARTIL_S3_ACCESS_KEY"`
	SecretKey string `env:"TARTIL_S3_SECRET_KEY"`

	// PublicURL is the CDN base the assets are served from. Defaults to
	// the endpoint and bucket.
	PublicURL string `env:"TARTIL_S3_PUBLIC_URL"`
	PathStyle bool   `env:"TARTIL_S3_PATH_STYLE"`
}

// objectPutter is the part of the S3 client the publisher uses.
type objectPutter interface {
	PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// BucketPublisher uploads assets with public-read ACL so the timing
// HTTP source can fetch them.
type BucketPublisher struct {
	client    objectPutter
	bucket    string
	prefix    string
	publicURL string
}

// NewBucketPublisher creates a publisher from cfg.
func NewBucketPublisher(cfg BucketConfig) (*BucketPublisher, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("no bucket configured")
	}
	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.PathStyle),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	public := cfg.PublicURL
	if public == "" {
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.Region)
		}
		public = strings.TrimRight(endpoint, "/") + "/" + cfg.Bucket
	}
	return newBucketPublisher(s3.New(sess), cfg.Bucket, cfg.Prefix, public), nil
}

func newBucketPublisher(client objectPutter, bucket, prefix, publicURL string) *BucketPublisher {
	return &BucketPublisher{
		client:    client,
		bucket:    bucket,
		prefix:    strings.Trim(prefix, "/"),
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// Key returns the object key for an asset name.
func (p *BucketPublisher) Key(name string) string {
	if p.prefix == "" {
		return name
	}
	return path.Join(p.prefix, name)
}

// BaseURL is the URL the HTTP timing source should be pointed at.
func (p *BucketPublisher) BaseURL() string {
	if p.prefix == "" {
		return p.publicURL
	}
	return p.publicURL + "/" + p.prefix
}

// Publish implements Publisher.
func (p *BucketPublisher) Publish(ctx context.Context, name string, data []byte) (string, error) {
	key := p.Key(name)
	_, err := p.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(p.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String("application/json"),
		CacheControl: aws.String("public, max-age=86400"),
		ACL:          aws.String("public-read"),
	})
	if err != nil {
		log.Error("failed to upload timing asset", "key", key, "error", err)
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return p.publicURL + "/" + key, nil
}
