package storage

import (
	"bytes"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
)

// S3Config carries the connection parameters for the S3 backend.
// Region/Endpoint/ForcePathStyle let this also target S3-compatible
// services other than AWS's.
type S3Config struct {
	Bucket         string
	Prefix         string
	Region         string
	Endpoint       string
	AccessKeyID    string
	SecretKey      string
	ForcePathStyle bool
}

// S3 persists objects in an AWS S3 (or S3-compatible) bucket.
type S3 struct {
	svc    *s3.S3
	bucket string
	prefix string
}

// NewS3 builds an S3-backed Storage from cfg.
func NewS3(cfg S3Config) (*S3, error) {
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(cfg.ForcePathStyle)
	}
	if cfg.AccessKeyID != "" {
		awsCfg = awsCfg.WithCredentials(
			credentialsStatic(cfg.AccessKeyID, cfg.SecretKey))
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, errors.Wrap(err, "new aws session")
	}

	return &S3{
		svc:    s3.New(sess),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *S3) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func (s *S3) Save(name string, data io.Reader, size int64) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return errors.Wrap(err, "buffer object")
	}
	_, err = s.svc.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
		Body:   bytes.NewReader(buf),
	})
	return errors.Wrap(err, "put object")
}

func (s *S3) SourceReader(name string) (io.ReadCloser, error) {
	out, err := s.svc.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if isAWSNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get object")
	}
	return out.Body, nil
}

func (s *S3) FileStat(name string) (FileInfo, error) {
	out, err := s.svc.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if isAWSNotFound(err) {
		return FileInfo{}, ErrNotFound
	}
	if err != nil {
		return FileInfo{}, errors.Wrap(err, "head object")
	}
	return FileInfo{Name: name, Size: aws.Int64Value(out.ContentLength)}, nil
}

func (s *S3) Delete(name string) error {
	_, err := s.svc.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	return errors.Wrap(err, "delete object")
}

func isAWSNotFound(err error) bool {
	aerr, ok := err.(awserr.Error)
	return ok && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound")
}
