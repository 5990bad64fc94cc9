package docstore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Store keeps each document as one object under documents/<sourceID>.
// The title and creation time ride along as object metadata.
type S3Store struct {
	client     *minio.Client
	bucketName string
	region     string
	initOnce   sync.Once
	initErr    error
}

const objectPrefix = "documents/"

func NewS3Store(cfg S3Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	return &S3Store{
		client:     client,
		bucketName: bucket,
		region:     region,
	}, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("store is nil")
	}
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

func objectKey(sourceID string) string {
	return objectPrefix + strings.TrimSpace(sourceID)
}

func (s *S3Store) Put(ctx context.Context, doc Document) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	doc.SourceID = strings.TrimSpace(doc.SourceID)
	if doc.SourceID == "" {
		return fmt.Errorf("source_id is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	content := strings.NewReader(doc.Text)
	_, err := s.client.PutObject(ctx, s.bucketName, objectKey(doc.SourceID), content, int64(len(doc.Text)), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
		UserMetadata: map[string]string{
			"Title":      doc.Title,
			"Created-At": doc.CreatedAt.Format(time.RFC3339),
		},
	})
	return err
}

func (s *S3Store) Get(ctx context.Context, sourceID string) (Document, error) {
	if s == nil {
		return Document{}, fmt.Errorf("store is nil")
	}
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return Document{}, fmt.Errorf("source_id is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return Document{}, fmt.Errorf("ensure bucket: %w", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucketName, objectKey(sourceID), minio.GetObjectOptions{})
	if err != nil {
		return Document{}, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	stat, err := obj.Stat()
	if err != nil {
		return Document{}, err
	}
	return Document{
		SourceID:  sourceID,
		Title:     stat.UserMetadata["Title"],
		Text:      string(data),
		CreatedAt: parseCreatedAt(stat.UserMetadata["Created-At"], stat.LastModified),
	}, nil
}

// List returns document metadata only; Text is left empty.
func (s *S3Store) List(ctx context.Context) ([]Document, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	out := make([]Document, 0, 32)
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    objectPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if obj.Key == "" {
			continue
		}
		stat, err := s.client.StatObject(ctx, s.bucketName, obj.Key, minio.StatObjectOptions{})
		if err != nil {
			return nil, err
		}
		out = append(out, Document{
			SourceID:  strings.TrimPrefix(obj.Key, objectPrefix),
			Title:     stat.UserMetadata["Title"],
			CreatedAt: parseCreatedAt(stat.UserMetadata["Created-At"], stat.LastModified),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out, nil
}

func (s *S3Store) Delete(ctx context.Context, sourceID string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return fmt.Errorf("source_id is required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	return s.client.RemoveObject(ctx, s.bucketName, objectKey(sourceID), minio.RemoveObjectOptions{})
}

func parseCreatedAt(raw string, fallback time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return fallback
}
