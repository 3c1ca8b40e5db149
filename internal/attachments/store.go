// Package attachments stores work order files in object storage with their
// metadata in the database.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/workorder-safety/internal/apperr"
	"github.com/ukydev/workorder-safety/internal/db"
	"github.com/ukydev/workorder-safety/internal/models"
)

// MaxSize is the largest accepted upload.
const MaxSize = 25 << 20

var categories = map[string]bool{"photo": true, "document": true, "permit": true, "signature": true}

// ObjectStore is the part of *minio.Client used here.
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// Store uploads and deletes attachments.
type Store struct {
	objects ObjectStore
	bucket  string
	meta    db.AttachmentCollection
	now     func() time.Time
	newID   func() string
	log     *log.Entry
}

// NewStore returns a Store writing objects to bucket.
func NewStore(objects ObjectStore, bucket string, meta db.AttachmentCollection, logger *log.Entry) *Store {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Store{
		objects: objects,
		bucket:  bucket,
		meta:    meta,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
		log:     logger,
	}
}

// NewMinioClient connects to a MinIO or S3 compatible endpoint.
func NewMinioClient(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	return minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
}

// EnsureBucket creates the bucket when it does not exist yet.
func EnsureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}

// Upload stores the file and records its metadata. If the metadata cannot
// be saved the object is removed again.
func (s *Store) Upload(ctx context.Context, workOrderID string, r io.Reader, size int64, meta models.AttachmentMetadata) (*models.Attachment, error) {
	name := filepath.Base(strings.TrimSpace(meta.FileName))
	if name == "" || name == "." || name == "/" {
		return nil, apperr.Validation("uploadAttachment", "file_name", "file name is required")
	}
	if size <= 0 {
		return nil, apperr.Validation("uploadAttachment", "file", "file is empty")
	}
	if size > MaxSize {
		return nil, apperr.Validation("uploadAttachment", "file", "file exceeds %d MB", MaxSize>>20)
	}
	category := meta.Category
	if category == "" {
		category = "photo"
	}
	if !categories[category] {
		return nil, apperr.Validation("uploadAttachment", "category", "unknown category %q", category)
	}
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	now := s.now().UTC()
	id := s.newID()
	key := fmt.Sprintf("work-orders/%s/%s/%s%s", workOrderID, now.Format("2006/01/02"), id, strings.ToLower(filepath.Ext(name)))
	logger := s.log.WithFields(log.Fields{"work_order_id": workOrderID, "object_key": key})

	if _, err := s.objects.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		logger.WithError(err).Warn("Attachment upload failed")
		return nil, apperr.Persistence("uploadAttachment", err)
	}

	a := models.Attachment{
		ID:          id,
		WorkOrderID: workOrderID,
		FileName:    name,
		ObjectKey:   key,
		ContentType: contentType,
		Size:        size,
		Category:    category,
		Caption:     meta.Caption,
		UploadedBy:  meta.UploadedBy,
		CreatedAt:   now,
	}
	if err := s.meta.InsertAttachment(ctx, a); err != nil {
		logger.WithError(err).Warn("Attachment metadata not saved, removing object")
		if rmErr := s.objects.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); rmErr != nil {
			logger.WithError(rmErr).Error("Orphaned attachment object")
		}
		return nil, apperr.Persistence("uploadAttachment", err)
	}
	logger.WithField("size", size).Info("Attachment uploaded")
	return &a, nil
}

// Delete removes an attachment's object and metadata.
func (s *Store) Delete(ctx context.Context, id string) error {
	a, err := s.meta.FindAttachmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFound("deleteAttachment", id, "attachment %s not found", id)
		}
		return apperr.Persistence("deleteAttachment", err)
	}
	if err := s.objects.RemoveObject(ctx, s.bucket, a.ObjectKey, minio.RemoveObjectOptions{}); err != nil {
		return apperr.Persistence("deleteAttachment", err)
	}
	if err := s.meta.DeleteAttachment(ctx, id); err != nil {
		return apperr.Persistence("deleteAttachment", err)
	}
	s.log.WithFields(log.Fields{"attachment_id": id, "work_order_id": a.WorkOrderID}).Info("Attachment deleted")
	return nil
}
