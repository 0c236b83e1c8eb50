// Package objstore keeps extract archives, snapshots and exported CSVs in
// object storage, split into a private and a public prefix.
package objstore

import (
	"context"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = eris.New("objstore: object not found")

// Store is a flat key/value object store.
type Store interface {
	// Put uploads the contents of r under key.
	Put(ctx context.Context, key string, r io.Reader) error

	// PutFile uploads a local file under key.
	PutFile(ctx context.Context, key, path string) error

	// Get opens key for reading. Returns ErrNotFound when missing.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// GetFile downloads key to a local path. Returns ErrNotFound when missing.
	GetFile(ctx context.Context, key, path string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns every key under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Layout maps object names to private and public keys.
type Layout struct {
	Private string
	Public  string
}

// DefaultLayout is private/ and public/.
var DefaultLayout = Layout{Private: "private", Public: "public"}

// PrivateKey returns the key for name under the private prefix.
func (l Layout) PrivateKey(name string) string {
	return join(l.Private, name)
}

// PublicKey returns the key for name under the public prefix.
func (l Layout) PublicKey(name string) string {
	return join(l.Public, name)
}

func join(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// ListNames lists the base names of the objects under prefix matching pattern
// (nil matches everything).
func ListNames(ctx context.Context, s Store, prefix string, pattern *regexp.Regexp) ([]string, error) {
	keys, err := s.List(ctx, strings.Trim(prefix, "/")+"/")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, k := range keys {
		name := path.Base(k)
		if pattern == nil || pattern.MatchString(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
