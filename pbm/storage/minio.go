package storage

import (
	"io"

	"github.com/minio/minio-go"
	"github.com/pkg/errors"
)

// MinIOConfig carries the connection parameters for the MinIO /
// S3-compatible backend.
type MinIOConfig struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// MinIO persists objects in a MinIO (or other S3-compatible) bucket
// via the minio-go client, distinct from the AWS-specific S3 backend
// so on-prem deployments don't need AWS credentials plumbing.
type MinIO struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIO builds a MinIO-backed Storage from cfg.
func NewMinIO(cfg MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.UseSSL)
	if err != nil {
		return nil, errors.Wrap(err, "new minio client")
	}
	return &MinIO{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (m *MinIO) key(name string) string {
	if m.prefix == "" {
		return name
	}
	return m.prefix + "/" + name
}

func (m *MinIO) Save(name string, data io.Reader, size int64) error {
	_, err := m.client.PutObject(m.bucket, m.key(name), data, size, minio.PutObjectOptions{})
	return errors.Wrap(err, "put object")
}

func (m *MinIO) SourceReader(name string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(m.bucket, m.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "get object")
	}
	if _, err := obj.Stat(); isMinIONotFound(err) {
		obj.Close()
		return nil, ErrNotFound
	}
	return obj, nil
}

func (m *MinIO) FileStat(name string) (FileInfo, error) {
	info, err := m.client.StatObject(m.bucket, m.key(name), minio.StatObjectOptions{})
	if isMinIONotFound(err) {
		return FileInfo{}, ErrNotFound
	}
	if err != nil {
		return FileInfo{}, errors.Wrap(err, "stat object")
	}
	return FileInfo{Name: name, Size: info.Size}, nil
}

func (m *MinIO) Delete(name string) error {
	err := m.client.RemoveObject(m.bucket, m.key(name))
	return errors.Wrap(err, "delete object")
}

func isMinIONotFound(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey"
}
