package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	cfg "github.com/maheshrc27/adpulse/configs"
)

// ObjectStorage is where mirrored creative media lives.
type ObjectStorage interface {
	UploadToR2(ctx context.Context, key string, file []byte, filetype string) error
	DeleteFromR2(ctx context.Context, key string) error
	PublicURL(key string) string
}

type R2Service struct {
	config cfg.R2
	client *s3.Client
}

func NewR2Service(ctx context.Context, c cfg.R2) (*R2Service, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = c.Endpoint != ""
	})
	return &R2Service{config: c, client: client}, nil
}

// UploadToR2 stores file under key with the given content type.
func (r *R2Service) UploadToR2(ctx context.Context, key string, file []byte, filetype string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.config.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file),
		ContentType: aws.String(filetype),
	}

	if _, err := r.client.PutObject(ctx, input); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *R2Service) DeleteFromR2(ctx context.Context, key string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(r.config.BucketName),
		Key:    aws.String(key),
	}

	if _, err := r.client.DeleteObject(ctx, input); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *R2Service) PublicURL(key string) string {
	return strings.TrimRight(r.config.PublicURL, "/") + "/" + key
}
