package vault

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 keeps objects in memory and only supports single-part uploads.
type fakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
}

func newFakeS3(bucket string) *fakeS3 {
	return &fakeS3{bucket: bucket, objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if aws.ToString(in.Bucket) != f.bucket {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

var errMultipart = errors.New("multipart upload not supported by fake")

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errMultipart
}

func TestS3Vault(t *testing.T) {
	testVaultBehavior(t, NewS3VaultWithClient("remote", "bucket", "prefix", newFakeS3("bucket")))
}

func TestS3Vault_Keys(t *testing.T) {
	client := newFakeS3("bucket")
	v := NewS3VaultWithClient("remote", "bucket", "/fsindex/", client)

	if err := v.PutMetadata("host-1", "index.db", bytes.NewReader([]byte("abc")), 3, 5); err != nil {
		t.Fatalf("PutMetadata() error = %v", err)
	}

	if got := string(client.objects["fsindex/metadata/host-1/index.db"]); got != "abc" {
		t.Errorf("item object = %q, want abc", got)
	}
	if got := string(client.objects["fsindex/metadata/host-1/index.db.version"]); got != "5" {
		t.Errorf("version object = %q, want 5", got)
	}
}

func TestS3Vault_ValidateSetup(t *testing.T) {
	v := NewS3VaultWithClient("remote", "other-bucket", "", newFakeS3("bucket"))
	if err := v.ValidateSetup(); err == nil {
		t.Error("ValidateSetup() expected error for missing bucket")
	}
}
