// Package media stores image block uploads in S3-compatible object storage.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"

	"lifeblocks/api/internal/blocks"
	"lifeblocks/api/internal/plans"
	"lifeblocks/api/internal/store"
	"lifeblocks/api/internal/util"
)

// MaxUploadBytes caps a single upload regardless of plan headroom.
const MaxUploadBytes = 10 << 20

var (
	ErrUnsupportedType = errors.New("unsupported media type")
	ErrTooLarge        = errors.New("upload too large")
	ErrForeignObject   = errors.New("object belongs to another user")
)

type objectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// Accounts is the part of the user store uploads are charged against.
type Accounts interface {
	GetUser(ctx context.Context, userID string) (store.User, error)
	AddStorageUsed(ctx context.Context, userID string, delta int64) (int64, error)
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Service struct {
	objects  objectStore
	bucket   string
	accounts Accounts
	logger   log.FieldLogger
}

// NewService connects to the object store and creates the bucket when it
// does not exist yet.
func NewService(ctx context.Context, cfg Config, accounts Accounts, logger log.FieldLogger) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return newService(client, cfg.Bucket, accounts, logger), nil
}

func newService(objects objectStore, bucket string, accounts Accounts, logger log.FieldLogger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{objects: objects, bucket: bucket, accounts: accounts, logger: logger}
}

type UploadRequest struct {
	UserID      string
	BlockID     string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Upload stores the image under <userId>/<blockId>/<uuid> and charges its
// size to the user.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (blocks.Image, error) {
	if !strings.HasPrefix(req.ContentType, "image/") {
		return blocks.Image{}, fmt.Errorf("%w: %q", ErrUnsupportedType, req.ContentType)
	}
	if req.Size <= 0 || req.Size > MaxUploadBytes {
		return blocks.Image{}, ErrTooLarge
	}
	user, err := s.accounts.GetUser(ctx, req.UserID)
	if err != nil {
		return blocks.Image{}, fmt.Errorf("load user: %w", err)
	}
	if err := plans.CanStore(user.Account(), req.Size); err != nil {
		return blocks.Image{}, err
	}

	key := ObjectKey(req.UserID, req.BlockID)
	if _, err := s.objects.PutObject(ctx, s.bucket, key, req.Body, req.Size, minio.PutObjectOptions{ContentType: req.ContentType}); err != nil {
		return blocks.Image{}, fmt.Errorf("put object: %w", err)
	}
	if _, err := s.accounts.AddStorageUsed(ctx, req.UserID, req.Size); err != nil {
		if rmErr := s.objects.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); rmErr != nil {
			s.logger.WithError(rmErr).WithField("key", key).Warn("orphaned upload")
		}
		return blocks.Image{}, fmt.Errorf("charge storage: %w", err)
	}
	return blocks.Image{Key: key, Size: req.Size, ContentType: req.ContentType}, nil
}

// Delete removes the object and refunds its size. It returns the bytes freed.
func (s *Service) Delete(ctx context.Context, userID, key string) (int64, error) {
	if !strings.HasPrefix(key, userID+"/") {
		return 0, ErrForeignObject
	}
	info, err := s.objects.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("stat object: %w", err)
	}
	if err := s.objects.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return 0, fmt.Errorf("remove object: %w", err)
	}
	if _, err := s.accounts.AddStorageUsed(ctx, userID, -info.Size); err != nil {
		return 0, fmt.Errorf("refund storage: %w", err)
	}
	return info.Size, nil
}

// URL returns a time-limited download link.
func (s *Service) URL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.objects.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

func ObjectKey(userID, blockID string) string {
	return userID + "/" + blockID + "/" + util.NewID("")
}

// ParseKey splits a key made by ObjectKey into its uploader and block id.
func ParseKey(key string) (userID, blockID string, ok bool) {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
