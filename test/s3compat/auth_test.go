package s3compat

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bleepstore/bleepstore/test/testutil"
)

func clientWithCreds(t *testing.T, endpoint, accessKey, secretKey string) *s3.Client {
	t.Helper()

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)),
	)
	require.NoError(t, err)

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
		o.RetryMaxAttempts = 1
	})
}

func TestAuthValidSignature(t *testing.T) {
	ts := testutil.NewTestServerWithAuth(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	require.NoError(t, err)

	_, err = client.ListBuckets(ctx, &s3.ListBucketsInput{})
	require.NoError(t, err)
}

func TestAuthWrongSecret(t *testing.T) {
	ts := testutil.NewTestServerWithAuth(t)
	defer ts.Cleanup()

	client := clientWithCreds(t, ts.Endpoint, ts.AccessKey, "wrong-secret")
	ctx := context.Background()

	_, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SignatureDoesNotMatch")
}

func TestAuthUnknownAccessKey(t *testing.T) {
	ts := testutil.NewTestServerWithAuth(t)
	defer ts.Cleanup()

	client := clientWithCreds(t, ts.Endpoint, "NOSUCHKEY", ts.SecretKey)
	ctx := context.Background()

	_, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InvalidAccessKeyId")
}

func TestAuthAnonymousDenied(t *testing.T) {
	ts := testutil.NewTestServerWithAuth(t)
	defer ts.Cleanup()

	// No Authorization header and no presign parameters.
	resp, err := http.Get(ts.Endpoint + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPresignedGetObject(t *testing.T) {
	ts := testutil.NewTestServerWithAuth(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	require.NoError(t, err)

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("presigned.txt"),
		Body:   strings.NewReader("presigned content"),
	})
	require.NoError(t, err)

	presigner := s3.NewPresignClient(client)
	presigned, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("presigned.txt"),
	}, s3.WithPresignExpires(5*time.Minute))
	require.NoError(t, err)

	// The URL authenticates on its own, no Authorization header.
	resp, err := http.Get(presigned.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "presigned content", string(body))
}

func TestPresignedURLTamperedSignature(t *testing.T) {
	ts := testutil.NewTestServerWithAuth(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	require.NoError(t, err)

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("secret.txt"),
		Body:   strings.NewReader("secret"),
	})
	require.NoError(t, err)

	presigner := s3.NewPresignClient(client)
	presigned, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("secret.txt"),
	}, s3.WithPresignExpires(5*time.Minute))
	require.NoError(t, err)

	tampered := strings.Replace(presigned.URL, "X-Amz-Signature=", "X-Amz-Signature=0000", 1)
	resp, err := http.Get(tampered)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAuthHealthBypassesAuth(t *testing.T) {
	ts := testutil.NewTestServerWithAuth(t)
	defer ts.Cleanup()

	for _, path := range []string{"/health", "/healthz", "/readyz"} {
		resp, err := http.Get(ts.Endpoint + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, "path %s", path)
	}
}
