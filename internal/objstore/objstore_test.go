package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/oca-cli/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeS3 keeps objects in memory and pages List results two at a time.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErrs []error
	puts    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if len(f.putErrs) > 0 {
		err := f.putErrs[0]
		f.putErrs = f.putErrs[1:]
		return nil, err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if in.ContentLength == nil || *in.ContentLength != int64(len(data)) {
		return nil, errors.New("content length mismatch")
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if len(keys) > 2 {
		keys = keys[:2]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[1])
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func testRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

// stores runs each test against both implementations.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	dir, err := NewDir(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"dir": dir,
		"s3":  newS3Store(newFakeS3(), "oca", testRetry()),
	}
}

func TestStore_PutGetList(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Put(ctx, "public/oca_index.csv", strings.NewReader("a,b\n")))
			require.NoError(t, s.Put(ctx, "private/oca_addresses.csv", strings.NewReader("x")))
			require.NoError(t, s.Put(ctx, "private/LandlordTenant.Incr.20210111.zip", strings.NewReader("z1")))
			require.NoError(t, s.Put(ctx, "private/LandlordTenant.Incr.20210118.zip", strings.NewReader("z2")))

			rc, err := s.Get(ctx, "public/oca_index.csv")
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, "a,b\n", string(data))

			keys, err := s.List(ctx, "private/")
			require.NoError(t, err)
			assert.Equal(t, []string{
				"private/LandlordTenant.Incr.20210111.zip",
				"private/LandlordTenant.Incr.20210118.zip",
				"private/oca_addresses.csv",
			}, keys)

			names, err := ListNames(ctx, s, "private", regexp.MustCompile(`\.zip$`))
			require.NoError(t, err)
			assert.Equal(t, []string{"LandlordTenant.Incr.20210111.zip", "LandlordTenant.Incr.20210118.zip"}, names)

			ok, err := s.Exists(ctx, "private/oca_addresses.csv")
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = s.Exists(ctx, "private/missing.csv")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_NotFound(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "private/oca_snapshot.zip")
			assert.True(t, errors.Is(err, ErrNotFound))

			err = s.GetFile(context.Background(), "private/oca_snapshot.zip", filepath.Join(t.TempDir(), "x"))
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestStore_PutFileGetFile(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			src := filepath.Join(t.TempDir(), "snap.zip")
			require.NoError(t, os.WriteFile(src, []byte("snapshot bytes"), 0o644))

			require.NoError(t, s.PutFile(ctx, "private/oca_snapshot.zip", src))

			dest := filepath.Join(t.TempDir(), "out.zip")
			require.NoError(t, s.GetFile(ctx, "private/oca_snapshot.zip", dest))
			data, err := os.ReadFile(dest)
			require.NoError(t, err)
			assert.Equal(t, "snapshot bytes", string(data))
		})
	}
}

func TestS3Store_PutRetriesTransient(t *testing.T) {
	fake := newFakeS3()
	fake.putErrs = []error{resilience.NewTransientError(errors.New("slow down"), 503)}
	s := newS3Store(fake, "oca", testRetry())

	src := filepath.Join(t.TempDir(), "a.csv")
	require.NoError(t, os.WriteFile(src, []byte("abc"), 0o644))

	require.NoError(t, s.PutFile(context.Background(), "public/a.csv", src))
	assert.Equal(t, 2, fake.puts)
	assert.Equal(t, []byte("abc"), fake.objects["public/a.csv"])
}

func TestS3Store_PutPermanentError(t *testing.T) {
	fake := newFakeS3()
	fake.putErrs = []error{errors.New("access denied")}
	s := newS3Store(fake, "oca", testRetry())

	err := s.Put(context.Background(), "public/a.csv", strings.NewReader("abc"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "objstore: put public/a.csv")
	assert.Equal(t, 1, fake.puts)
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{}, testRetry())
	require.Error(t, err)
}

func TestDirStore_RejectsEscapingKey(t *testing.T) {
	d, err := NewDir(t.TempDir())
	require.NoError(t, err)
	err = d.Put(context.Background(), "../outside.csv", strings.NewReader("x"))
	require.Error(t, err)
}

func TestLayout(t *testing.T) {
	l := Layout{Private: "private/", Public: ""}
	assert.Equal(t, "private/oca_addresses.csv", l.PrivateKey("oca_addresses.csv"))
	assert.Equal(t, "oca_index.csv", l.PublicKey("oca_index.csv"))
	assert.Equal(t, "public/x", DefaultLayout.PublicKey("x"))
}
