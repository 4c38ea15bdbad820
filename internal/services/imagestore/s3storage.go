package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"

	"github.com/smartscale/scale-server/internal/config"
)

type S3FileStorage struct {
	client *s3.Client
	cfg    *config.S3Config
}

func NewS3FileStorage(cfg *config.Config) (*S3FileStorage, error) {
	if cfg.S3 == nil {
		return nil, fmt.Errorf("s3 config is not set")
	}

	credentialsProvider := credentials.NewStaticCredentialsProvider(cfg.S3.AccessKey, cfg.S3.SecretKey, "")
	awsCfg, err := awsConfig.LoadDefaultConfig(
		context.TODO(),
		awsConfig.WithRegion(cfg.S3.Region),
		awsConfig.WithCredentialsProvider(credentialsProvider),
	)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = &cfg.S3.Endpoint
		}
	})

	return &S3FileStorage{
		client: s3Client,
		cfg:    cfg.S3,
	}, nil
}

func (s *S3FileStorage) Upload(ctx context.Context, file FileInfo) (string, error) {
	filename := file.Name + file.Extension
	key := s.key(filename)
	mtype := mimetype.Detect(file.Content).String()

	input := s3.PutObjectInput{
		Key:         &key,
		ContentType: &mtype,
		Bucket:      &s.cfg.Bucket,
		Body:        bytes.NewReader(file.Content),
		ACL:         types.ObjectCannedACLPublicRead,
	}
	if _, err := s.client.PutObject(ctx, &input); err != nil {
		return "", err
	}

	return filename, nil
}

func (s *S3FileStorage) GetFile(ctx context.Context, filename string) (*FileInfo, error) {
	key := s.key(filename)
	params := &s3.GetObjectInput{
		Bucket: &s.cfg.Bucket,
		Key:    &key,
	}

	object, err := s.client.GetObject(ctx, params)
	if err != nil {
		return nil, err
	}
	defer object.Body.Close()

	content, err := io.ReadAll(object.Body)
	if err != nil {
		return nil, err
	}

	ext := filepath.Ext(filename)
	return &FileInfo{
		Name:      filename[:len(filename)-len(ext)],
		Extension: ext,
		Content:   content,
	}, nil
}

func (s *S3FileStorage) URL(filename string) string {
	key := s.key(filename)

	if s.cfg.PublicUrl != "" {
		return fmt.Sprintf("%s/%s", strings.TrimSuffix(s.cfg.PublicUrl, "/"), key)
	}

	if strings.Contains(s.cfg.Endpoint, "amazonaws.com") {
		endpoint := strings.TrimPrefix(s.cfg.Endpoint, "https://")
		endpoint = strings.TrimSuffix(endpoint, "/")
		return fmt.Sprintf("https://%s.%s/%s", s.cfg.Bucket, endpoint, key)
	}

	return ""
}

func (s *S3FileStorage) key(filename string) string {
	folder := strings.TrimSuffix(s.cfg.Folder, "/")
	if folder == "" {
		return filename
	}

	return fmt.Sprintf("%s/%s", folder, filename)
}
