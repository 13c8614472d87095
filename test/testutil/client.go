package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

// S3Client returns an AWS SDK client pointed at the test server. Path-style
// addressing is forced because the server does not resolve bucket
// subdomains.
func (ts *TestServer) S3Client(t *testing.T) *s3.Client {
	t.Helper()

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			ts.AccessKey, ts.SecretKey, "")),
	)
	require.NoError(t, err, "load sdk config")

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(ts.Endpoint)
		o.UsePathStyle = true
	})
}

// CreateTestBucket creates a bucket and returns a cleanup function that
// empties and removes it. The bucket must hold no objects and no
// in-progress multipart uploads before it can be deleted, so cleanup
// drains both.
func (ts *TestServer) CreateTestBucket(t *testing.T, name string) func() {
	t.Helper()

	client := ts.S3Client(t)
	ctx := context.Background()

	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)})
	require.NoError(t, err, "create bucket %s", name)

	return func() {
		drainObjects(ctx, client, name)
		abortUploads(ctx, client, name)
		client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)})
	}
}

// drainObjects deletes every object in the bucket, following continuation
// tokens. Errors are ignored; a failed delete surfaces as a BucketNotEmpty
// failure in the test that owns the bucket.
func drainObjects(ctx context.Context, client *s3.Client, bucket string) {
	var token *string
	for {
		page, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			ContinuationToken: token,
		})
		if err != nil {
			return
		}
		for _, obj := range page.Contents {
			client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(bucket),
				Key:    obj.Key,
			})
		}
		if page.IsTruncated == nil || !*page.IsTruncated {
			return
		}
		token = page.NextContinuationToken
	}
}

// abortUploads aborts every in-progress multipart upload in the bucket.
func abortUploads(ctx context.Context, client *s3.Client, bucket string) {
	out, err := client.ListMultipartUploads(ctx, &s3.ListMultipartUploadsInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return
	}
	for _, up := range out.Uploads {
		client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(bucket),
			Key:      up.Key,
			UploadId: up.UploadId,
		})
	}
}

// RandomBucketName returns a bucket name that satisfies the naming rules
// and will not collide across tests.
func RandomBucketName() string {
	return "test-bucket-" + randomHex(8)
}

// RandomObjectKey returns a unique object key.
func RandomObjectKey() string {
	return "test-object-" + randomHex(8)
}

// randomHex returns n hex characters from crypto/rand.
func randomHex(n int) string {
	b := make([]byte, (n+1)/2)
	rand.Read(b)
	return hex.EncodeToString(b)[:n]
}
