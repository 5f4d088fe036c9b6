package media

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

const (
	DevS3Bucket  = "strand-media-dev"
	ProdS3Bucket = "strand-media"
	cdnPrefix    = "https://media.strand.app/"
)

type S3FileStore struct {
	bucket   string
	uploader *s3manager.Uploader
	svc      *s3.S3
}

func NewS3FileStore(bucket string) (*S3FileStore, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String("us-west-1"),
	})
	if err != nil {
		return nil, err
	}

	return &S3FileStore{
		bucket:   bucket,
		uploader: s3manager.NewUploader(sess),
		svc:      s3.New(session.Must(sess, err)),
	}, nil
}

// Store uploads the object publicly readable and returns its CDN url. If the
// key already exists the upload is skipped; a retried upload lands on the
// same key with the same bytes.
func (s *S3FileStore) Store(ctx context.Context, key string, body io.Reader) (string, error) {
	if !s.isKeyExisted(key) {
		_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			ACL:    aws.String("public-read"),
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   body,
		})
		if err != nil {
			return "", err
		}
	}
	return s.GetUrlFromKey(key), nil
}

func (s *S3FileStore) GetUrlFromKey(key string) string {
	return cdnPrefix + key
}

func (s *S3FileStore) isKeyExisted(key string) bool {
	_, err := s.svc.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err == nil
}

func (s *S3FileStore) CleanUp() {}
