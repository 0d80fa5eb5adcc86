package s3util

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Clients holds the S3 client, presigner and bucket name for one run.
type Clients struct {
	Client    *s3.Client
	Presigner *s3.PresignClient
	Bucket    string
}

// InitS3 loads the default AWS config (environment, shared config, SSO or
// instance role) and builds clients for bucket.
func InitS3(ctx context.Context, bucket string) (Clients, error) {
	if bucket == "" {
		return Clients{}, fmt.Errorf("S3 bucket name is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return Clients{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Str("bucket", bucket).Msg("AWS config loaded")

	client := s3.NewFromConfig(cfg)
	return Clients{
		Client:    client,
		Presigner: s3.NewPresignClient(client),
		Bucket:    bucket,
	}, nil
}
