package services

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

// ObjectPresigner is the part of s3.PresignClient the signer uses.
type ObjectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3PhotoSigner presigns profile photo keys stored in S3. References that
// are already URLs are returned unchanged.
type S3PhotoSigner struct {
	presigner ObjectPresigner
	bucket    string
	expires   time.Duration
}

func NewS3PhotoSigner(client *s3.Client, bucket string, expires time.Duration) *S3PhotoSigner {
	return newS3PhotoSigner(s3.NewPresignClient(client), bucket, expires)
}

func newS3PhotoSigner(p ObjectPresigner, bucket string, expires time.Duration) *S3PhotoSigner {
	if expires <= 0 {
		expires = time.Hour
	}
	return &S3PhotoSigner{presigner: p, bucket: bucket, expires: expires}
}

// SignPhotoURL generates a presigned URL for reading the photo.
func (s *S3PhotoSigner) SignPhotoURL(ctx context.Context, ref string) (string, error) {
	if ref == "" || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://") {
		return ref, nil
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	}, s3.WithPresignExpires(s.expires))
	if err != nil {
		return "", errors.Wrapf(err, "failed to presign photo %q", ref)
	}
	return req.URL, nil
}
