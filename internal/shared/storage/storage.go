// Package storage 报表归档到对象存储
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archiver 保存导出文件，返回对象路径
type Archiver interface {
	Archive(ctx context.Context, objectName, contentType string, data []byte) (string, error)
}

// MinioArchiver 基于 MinIO 的归档实现
type MinioArchiver struct {
	client *minio.Client
	bucket string
}

// NewMinioArchiver 创建 MinIO 客户端
func NewMinioArchiver(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioArchiver, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	return &MinioArchiver{client: client, bucket: bucket}, nil
}

// EnsureBucket 启动时确保 bucket 存在
func (a *MinioArchiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// Archive 上传文件
func (a *MinioArchiver) Archive(ctx context.Context, objectName, contentType string, data []byte) (string, error) {
	_, err := a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", objectName, err)
	}
	return a.bucket + "/" + objectName, nil
}

// ObjectName 按日期分目录的归档路径
func ObjectName(prefix, name string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s", prefix, at.Format("2006/01/02"), name)
}
