package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"fsindex/internal/config"
	"fsindex/internal/indexer"
)

// S3API is the subset of the S3 client used by S3Vault.
type S3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Vault stores published items in an S3 bucket:
//
//	<prefix>/metadata/<hostID>/<name>
//	<prefix>/metadata/<hostID>/<name>.version
type S3Vault struct {
	name     string
	bucket   string
	prefix   string
	client   S3API
	uploader *manager.Uploader
}

// NewS3Vault builds an S3 client from the vault config. Static credentials are
// used when both keys are set; otherwise the default AWS credential chain applies.
func NewS3Vault(ctx context.Context, cfg config.VaultConfig) (*S3Vault, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 vault requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3VaultWithClient(cfg.Name, cfg.S3Bucket, cfg.S3Prefix, client), nil
}

// NewS3VaultWithClient creates a vault on top of an existing client.
func NewS3VaultWithClient(name, bucket, prefix string, client S3API) *S3Vault {
	return &S3Vault{
		name:     name,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

// Name returns the configured vault name.
func (v *S3Vault) Name() string {
	return v.name
}

func (v *S3Vault) key(hostID, name string) string {
	return path.Join(v.prefix, "metadata", hostID, name)
}

// PutMetadata uploads a named item for a host, then its version marker.
func (v *S3Vault) PutMetadata(hostID string, name string, r io.Reader, size int64, version int64) error {
	ctx := context.Background()
	counter := &countingReader{r: r}

	_, err := v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(hostID, name)),
		Body:   counter,
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", name, err)
	}
	if counter.n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, counter.n)
	}

	versionData := []byte(strconv.FormatInt(version, 10))
	_, err = v.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(v.bucket),
		Key:           aws.String(v.key(hostID, name) + ".version"),
		Body:          bytes.NewReader(versionData),
		ContentLength: aws.Int64(int64(len(versionData))),
	})
	if err != nil {
		return fmt.Errorf("writing version for %s: %w", name, err)
	}
	return nil
}

// GetMetadata downloads a named item for a host and writes it to w.
func (v *S3Vault) GetMetadata(hostID string, name string, w io.Writer) error {
	out, err := v.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(hostID, name)),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("metadata %q not found for host: %s", name, hostID)
		}
		return fmt.Errorf("downloading %s: %w", name, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}
	return nil
}

// GetMetadataVersion returns the version of a named item on a host.
// Returns 0 if no version marker exists.
func (v *S3Vault) GetMetadataVersion(hostID string, name string) (int64, error) {
	out, err := v.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(hostID, name) + ".version"),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return 0, fmt.Errorf("reading version: %w", err)
	}
	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup checks that the bucket exists and is reachable with the configured credentials.
func (v *S3Vault) ValidateSetup() error {
	_, err := v.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(v.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 bucket %s not accessible: %w", v.bucket, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Compile-time check that S3Vault implements indexer.Vault interface
var _ indexer.Vault = (*S3Vault)(nil)
