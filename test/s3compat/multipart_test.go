package s3compat

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bleepstore/bleepstore/test/testutil"
)

func TestMultipartUpload(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	create, err := client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("big.bin"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, aws.ToString(create.UploadId))

	part1Data := bytes.Repeat([]byte{'A'}, 5<<20)
	part2Data := []byte{'B'}

	part1, err := client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(bucketName),
		Key:        aws.String("big.bin"),
		UploadId:   create.UploadId,
		PartNumber: aws.Int32(1),
		Body:       bytes.NewReader(part1Data),
	})
	require.NoError(t, err)

	part2, err := client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(bucketName),
		Key:        aws.String("big.bin"),
		UploadId:   create.UploadId,
		PartNumber: aws.Int32(2),
		Body:       bytes.NewReader(part2Data),
	})
	require.NoError(t, err)

	complete, err := client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(bucketName),
		Key:      aws.String("big.bin"),
		UploadId: create.UploadId,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: []types.CompletedPart{
				{PartNumber: aws.Int32(1), ETag: part1.ETag},
				{PartNumber: aws.Int32(2), ETag: part2.ETag},
			},
		},
	})
	require.NoError(t, err)
	// Composite etag carries the part count suffix.
	assert.True(t, strings.HasSuffix(strings.Trim(aws.ToString(complete.ETag), `"`), "-2"))

	get, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("big.bin"),
	})
	require.NoError(t, err)
	defer get.Body.Close()

	body, err := io.ReadAll(get.Body)
	require.NoError(t, err)
	require.Equal(t, len(part1Data)+len(part2Data), len(body))
	assert.True(t, bytes.Equal(part1Data, body[:len(part1Data)]))
	assert.Equal(t, part2Data, body[len(part1Data):])
}

func TestMultipartUploadPartTooSmall(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	create, err := client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("small-parts.bin"),
	})
	require.NoError(t, err)

	// Both parts under 5 MiB: the non-final one breaks the size floor.
	part1, err := client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(bucketName),
		Key:        aws.String("small-parts.bin"),
		UploadId:   create.UploadId,
		PartNumber: aws.Int32(1),
		Body:       strings.NewReader("tiny"),
	})
	require.NoError(t, err)

	part2, err := client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(bucketName),
		Key:        aws.String("small-parts.bin"),
		UploadId:   create.UploadId,
		PartNumber: aws.Int32(2),
		Body:       strings.NewReader("tiny"),
	})
	require.NoError(t, err)

	_, err = client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(bucketName),
		Key:      aws.String("small-parts.bin"),
		UploadId: create.UploadId,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: []types.CompletedPart{
				{PartNumber: aws.Int32(1), ETag: part1.ETag},
				{PartNumber: aws.Int32(2), ETag: part2.ETag},
			},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EntityTooSmall")
}

func TestMultipartUploadWrongETag(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	create, err := client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("bad-etag.bin"),
	})
	require.NoError(t, err)

	_, err = client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(bucketName),
		Key:        aws.String("bad-etag.bin"),
		UploadId:   create.UploadId,
		PartNumber: aws.Int32(1),
		Body:       strings.NewReader("data"),
	})
	require.NoError(t, err)

	_, err = client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(bucketName),
		Key:      aws.String("bad-etag.bin"),
		UploadId: create.UploadId,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: []types.CompletedPart{
				{PartNumber: aws.Int32(1), ETag: aws.String(`"deadbeefdeadbeefdeadbeefdeadbeef"`)},
			},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InvalidPart")
}

func TestAbortMultipartUpload(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	create, err := client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("aborted.bin"),
	})
	require.NoError(t, err)

	_, err = client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(bucketName),
		Key:        aws.String("aborted.bin"),
		UploadId:   create.UploadId,
		PartNumber: aws.Int32(1),
		Body:       strings.NewReader("discard"),
	})
	require.NoError(t, err)

	_, err = client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucketName),
		Key:      aws.String("aborted.bin"),
		UploadId: create.UploadId,
	})
	require.NoError(t, err)

	// The upload is gone; aborting again reports NoSuchUpload.
	_, err = client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucketName),
		Key:      aws.String("aborted.bin"),
		UploadId: create.UploadId,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NoSuchUpload")
}

func TestListParts(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	create, err := client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("listed.bin"),
	})
	require.NoError(t, err)

	for n := 1; n <= 3; n++ {
		_, err = client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(bucketName),
			Key:        aws.String("listed.bin"),
			UploadId:   create.UploadId,
			PartNumber: aws.Int32(int32(n)),
			Body:       strings.NewReader(strings.Repeat("p", n)),
		})
		require.NoError(t, err)
	}

	list, err := client.ListParts(ctx, &s3.ListPartsInput{
		Bucket:   aws.String(bucketName),
		Key:      aws.String("listed.bin"),
		UploadId: create.UploadId,
	})
	require.NoError(t, err)
	require.Len(t, list.Parts, 3)
	for i, part := range list.Parts {
		assert.Equal(t, int32(i+1), aws.ToInt32(part.PartNumber))
		assert.Equal(t, int64(i+1), aws.ToInt64(part.Size))
	}
}

func TestListMultipartUploads(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	for _, key := range []string{"u/one.bin", "u/two.bin"} {
		_, err := client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
			Bucket: aws.String(bucketName),
			Key:    aws.String(key),
		})
		require.NoError(t, err)
	}

	list, err := client.ListMultipartUploads(ctx, &s3.ListMultipartUploadsInput{
		Bucket: aws.String(bucketName),
	})
	require.NoError(t, err)
	require.Len(t, list.Uploads, 2)
	assert.Equal(t, "u/one.bin", aws.ToString(list.Uploads[0].Key))
	assert.Equal(t, "u/two.bin", aws.ToString(list.Uploads[1].Key))
}

func TestUploadPartCopy(t *testing.T) {
	ts := testutil.NewTestServer(t)
	defer ts.Cleanup()

	client := ts.S3Client(t)
	ctx := context.Background()

	bucketName := testutil.RandomBucketName()
	cleanup := ts.CreateTestBucket(t, bucketName)
	defer cleanup()

	source := bytes.Repeat([]byte{'S'}, 5<<20)
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("source.bin"),
		Body:   bytes.NewReader(source),
	})
	require.NoError(t, err)

	create, err := client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("copied.bin"),
	})
	require.NoError(t, err)

	copied, err := client.UploadPartCopy(ctx, &s3.UploadPartCopyInput{
		Bucket:     aws.String(bucketName),
		Key:        aws.String("copied.bin"),
		UploadId:   create.UploadId,
		PartNumber: aws.Int32(1),
		CopySource: aws.String(bucketName + "/source.bin"),
	})
	require.NoError(t, err)
	require.NotNil(t, copied.CopyPartResult)

	tail, err := client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(bucketName),
		Key:        aws.String("copied.bin"),
		UploadId:   create.UploadId,
		PartNumber: aws.Int32(2),
		Body:       strings.NewReader("tail"),
	})
	require.NoError(t, err)

	_, err = client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(bucketName),
		Key:      aws.String("copied.bin"),
		UploadId: create.UploadId,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: []types.CompletedPart{
				{PartNumber: aws.Int32(1), ETag: copied.CopyPartResult.ETag},
				{PartNumber: aws.Int32(2), ETag: tail.ETag},
			},
		},
	})
	require.NoError(t, err)

	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String("copied.bin"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(source)+4), aws.ToInt64(head.ContentLength))
}
