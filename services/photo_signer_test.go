package services

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresigner struct {
	calls []string
	err   error
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.calls = append(f.calls, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	if f.err != nil {
		return nil, f.err
	}
	opts := s3.PresignOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &v4.PresignedHTTPRequest{
		URL: "https://s3.test/" + aws.ToString(in.Key) + "?X-Amz-Expires=" + opts.Expires.String(),
	}, nil
}

func TestS3PhotoSigner(t *testing.T) {
	ctx := context.Background()
	p := &fakePresigner{}
	signer := newS3PhotoSigner(p, "photos-bucket", 10*time.Minute)

	url, err := signer.SignPhotoURL(ctx, "profile-pics/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://s3.test/profile-pics/a.jpg?X-Amz-Expires=10m0s", url)

	url, err = signer.SignPhotoURL(ctx, "https://cdn.example.com/b.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/b.jpg", url)

	url, err = signer.SignPhotoURL(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, url)

	assert.Equal(t, []string{"photos-bucket/profile-pics/a.jpg"}, p.calls)
}

func TestS3PhotoSigner_Error(t *testing.T) {
	signer := newS3PhotoSigner(&fakePresigner{err: errors.New("no credentials")}, "b", 0)
	_, err := signer.SignPhotoURL(context.Background(), "k")
	assert.ErrorContains(t, err, "no credentials")
}
