package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"taucmdr/internal/config"
)

// ObjectGetter is the part of the S3 API used for s3:// sources.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds an S3 client from the TAUCMDR_S3_* settings. Without
// static keys the SDK default credential chain applies.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	region := cfg.Get(config.KeyS3Region, "us-east-1")
	endpoint := cfg.Get(config.KeyS3Endpoint, "")
	accessKey := cfg.Get(config.KeyS3AccessKey, "")
	secretKey := cfg.Get(config.KeyS3SecretKey, "")

	options := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKey != "" && secretKey != "" {
		options = append(options, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	if cfg.Debug() {
		options = append(options, awsconfig.WithClientLogMode(aws.LogRetries|aws.LogRequest))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (f *Fetcher) downloadS3(ctx context.Context, u *url.URL, dest string) error {
	if f.s3 == nil {
		return fmt.Errorf("no S3 client configured for %s", u)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return fmt.Errorf("invalid S3 location %s: expected s3://bucket/key", u)
	}

	out, err := f.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("fetching %s: %w", u, err)
	}
	defer out.Body.Close()
	return writeAtomic(dest, out.Body)
}
