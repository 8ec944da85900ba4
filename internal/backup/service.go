// Package backup copies the local preference snapshot to object storage so a user can
// carry card customizations and layout choices to a new device.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	DefaultBucket = "cvrd-preferences"
	objectName    = "preferences.json"
)

var (
	ErrNoBackup       = errors.New("no backup found")
	ErrDeviceRequired = errors.New("device id is required")
	ErrNotConfigured  = errors.New("backup storage is not configured")
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

// Document is the stored backup.
type Document struct {
	DeviceID    string                     `json:"deviceId"`
	CreatedAt   time.Time                  `json:"createdAt"`
	Preferences map[string]json.RawMessage `json:"preferences"`
}

type objectStore interface {
	ensureBucket(ctx context.Context) error
	put(ctx context.Context, name string, data []byte) error
	get(ctx context.Context, name string) ([]byte, error)
}

type Service struct {
	objects objectStore
	now     func() time.Time
}

func New(cfg Config) (*Service, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	return newService(&minioObjects{client: client, bucket: cfg.Bucket}), nil
}

func newService(objects objectStore) *Service {
	return &Service{objects: objects, now: time.Now}
}

func objectKey(deviceID string) (string, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" || strings.ContainsAny(deviceID, "/\\") {
		return "", ErrDeviceRequired
	}
	return path.Join(deviceID, objectName), nil
}

// Backup uploads prefs as the device's backup, replacing any earlier one.
func (s *Service) Backup(ctx context.Context, deviceID string, prefs map[string]json.RawMessage) (Document, error) {
	key, err := objectKey(deviceID)
	if err != nil {
		return Document{}, err
	}
	doc := Document{DeviceID: deviceID, CreatedAt: s.now().UTC(), Preferences: prefs}
	if doc.Preferences == nil {
		doc.Preferences = map[string]json.RawMessage{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return Document{}, fmt.Errorf("encode backup: %w", err)
	}
	if err := s.objects.ensureBucket(ctx); err != nil {
		return Document{}, err
	}
	if err := s.objects.put(ctx, key, data); err != nil {
		return Document{}, fmt.Errorf("upload backup: %w", err)
	}
	log.Printf("backup: stored %d preferences for device %s", len(doc.Preferences), deviceID)
	return doc, nil
}

func (s *Service) Restore(ctx context.Context, deviceID string) (Document, error) {
	key, err := objectKey(deviceID)
	if err != nil {
		return Document{}, err
	}
	data, err := s.objects.get(ctx, key)
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode backup: %w", err)
	}
	return doc, nil
}

type minioObjects struct {
	client *minio.Client
	bucket string
}

func (m *minioObjects) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", m.bucket, err)
	}
	log.Printf("backup: created bucket %s", m.bucket)
	return nil
}

func (m *minioObjects) put(ctx context.Context, name string, data []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return err
}

func (m *minioObjects) get(ctx context.Context, name string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get backup: %w", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		switch minio.ToErrorResponse(err).Code {
		case minio.NoSuchKey, minio.NoSuchBucket:
			return nil, ErrNoBackup
		}
		return nil, fmt.Errorf("read backup: %w", err)
	}
	return data, nil
}
