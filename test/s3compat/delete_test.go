package s3compat

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bleepstore/bleepstore/test/testutil"
)

func TestDeleteObjects(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("hello.txt"),
		Body:   strings.NewReader("hello"),
	})
	require.NoError(t, err)

	// Absent keys still come back as Deleted.
	result, err := client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucketName),
		Delete: &types.Delete{
			Objects: []types.ObjectIdentifier{
				{Key: aws.String("hello.txt")},
				{Key: aws.String("missing.txt")},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Deleted, 2)
	assert.Empty(t, result.Errors)

	deleted := make(map[string]bool)
	for _, d := range result.Deleted {
		deleted[aws.ToString(d.Key)] = true
	}
	assert.True(t, deleted["hello.txt"])
	assert.True(t, deleted["missing.txt"])

	_, err = client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("hello.txt"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NoSuchKey")
}

func TestDeleteObjectsQuiet(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	for _, key := range []string{"q1.txt", "q2.txt"} {
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucketName),
			Key:    aws.String(key),
			Body:   strings.NewReader("q"),
		})
		require.NoError(t, err)
	}

	result, err := client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucketName),
		Delete: &types.Delete{
			Objects: []types.ObjectIdentifier{
				{Key: aws.String("q1.txt")},
				{Key: aws.String("q2.txt")},
			},
			Quiet: aws.Bool(true),
		},
	})
	require.NoError(t, err)
	// Quiet mode suppresses per-key success entries.
	assert.Empty(t, result.Deleted)
	assert.Empty(t, result.Errors)

	list, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucketName),
	})
	require.NoError(t, err)
	assert.Empty(t, list.Contents)
}

func TestDeleteObjectsEmptyRequest(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	_, err := client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucketName),
		Delete: &types.Delete{Objects: []types.ObjectIdentifier{}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MalformedXML")
}
