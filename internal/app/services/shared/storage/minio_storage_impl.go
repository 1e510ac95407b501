package storage

import (
	"bytes"
	"context"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/exceptions"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// ObjectStore is the part of *minio.Client the archive uses.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type minioDocumentArchive struct {
	MinioClient ObjectStore
	BucketName  string
	Log         *zap.Logger
}

func NewMinioDocumentArchive(minioClient ObjectStore, bucketName string, logger *zap.Logger) contracts.DocumentArchive {
	return &minioDocumentArchive{
		MinioClient: minioClient,
		BucketName:  bucketName,
		Log:         logger,
	}
}

// EnsureBucket creates the archive bucket when it does not exist yet.
func EnsureBucket(ctx context.Context, minioClient ObjectStore, bucketName string) error {
	exists, err := minioClient.BucketExists(ctx, bucketName)
	if err != nil {
		return exceptions.ErrMinioCreateObject(err, bucketName)
	}
	if exists {
		return nil
	}
	if err := minioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
		return exceptions.ErrMinioCreateObject(err, bucketName)
	}
	return nil
}

// Archive stores content under "<tenant>/<fingerprint>". The same export
// always maps to the same object, so a re-run overwrites rather than
// duplicates.
func (m *minioDocumentArchive) Archive(ctx context.Context, tenantID, fingerprint, contentType string, content []byte) (string, error) {
	requestID, _ := ctx.Value(constvars.CONTEXT_REQUEST_ID_KEY).(string)
	objectName := fmt.Sprintf("%s/%s", tenantID, fingerprint)
	m.Log.Info("minioDocumentArchive.Archive called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingBucketNameKey, m.BucketName),
		zap.String(constvars.LoggingObjectKey, objectName),
	)

	_, err := m.MinioClient.PutObject(ctx, m.BucketName, objectName, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"tenant-id":   tenantID,
			"fingerprint": fingerprint,
		},
	})
	if err != nil {
		m.Log.Error("minioDocumentArchive.Archive error putting object",
			zap.String(constvars.LoggingRequestIDKey, requestID),
			zap.Error(err),
		)
		return "", exceptions.ErrMinioCreateObject(err, m.BucketName)
	}

	m.Log.Info("minioDocumentArchive.Archive succeeded",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(constvars.LoggingObjectKey, objectName),
	)
	return objectName, nil
}
