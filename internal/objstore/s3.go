package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/oca-cli/internal/resilience"
)

// s3API is the subset of the S3 client used by S3Store.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds the bucket and connection settings.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // S3-compatible endpoint, optional
	PathStyle       bool
	AccessKeyID     string // static credentials, optional
	SecretAccessKey string
}

// S3Store implements Store on an S3 bucket.
type S3Store struct {
	client s3API
	bucket string
	retry  resilience.RetryConfig
}

var _ Store = (*S3Store)(nil)

// NewS3 builds an S3 client from the default AWS credential chain, or from
// static keys when set.
func NewS3(ctx context.Context, cfg S3Config, retry resilience.RetryConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, eris.New("objstore: s3 bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "objstore: load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return newS3Store(client, cfg.Bucket, retry), nil
}

func newS3Store(client s3API, bucket string, retry resilience.RetryConfig) *S3Store {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("objstore", "s3")
	}
	return &S3Store{client: client, bucket: bucket, retry: retry}
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

// Put buffers r and uploads it under key.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return eris.Wrapf(err, "objstore: buffer %s", key)
	}
	return s.put(ctx, key, func() (io.ReadSeeker, int64, func(), error) {
		return bytes.NewReader(data), int64(len(data)), func() {}, nil
	})
}

// PutFile uploads a local file under key, reopening it on each attempt.
func (s *S3Store) PutFile(ctx context.Context, key, src string) error {
	return s.put(ctx, key, func() (io.ReadSeeker, int64, func(), error) {
		f, err := os.Open(src)
		if err != nil {
			return nil, 0, nil, eris.Wrapf(err, "objstore: open %s", src)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close() //nolint:errcheck
			return nil, 0, nil, eris.Wrapf(err, "objstore: stat %s", src)
		}
		return f, info.Size(), func() { f.Close() }, nil //nolint:errcheck
	})
}

func (s *S3Store) put(ctx context.Context, key string, open func() (io.ReadSeeker, int64, func(), error)) error {
	zap.L().Debug("objstore: put", zap.String("bucket", s.bucket), zap.String("key", key))

	return resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		body, size, done, err := open()
		if err != nil {
			return err
		}
		defer done()

		_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          body,
			ContentLength: aws.Int64(size),
		})
		return eris.Wrapf(err, "objstore: put %s", key)
	})
}

// Get opens key for reading.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*s3.GetObjectOutput, error) {
		return s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
	})
	if isNotFound(err) {
		return nil, eris.Wrapf(ErrNotFound, "objstore: get %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "objstore: get %s", key)
	}
	return out.Body, nil
}

// GetFile downloads key to a local path.
func (s *S3Store) GetFile(ctx context.Context, key, dest string) error {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close() //nolint:errcheck
	return writeFile(dest, rc)
}

// Exists reports whether key is present.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "objstore: head %s", key)
	}
	return true, nil
}

// List pages through every key under prefix.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var keys []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "objstore: list %s", prefix)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}
