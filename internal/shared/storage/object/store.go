package object

import (
	"context"
	"io"
	"sort"
	"strings"
)

// Info describes a stored object. Key is relative to the store root and always uses "/".
type Info struct {
	Key  string
	Size int64
}

// ObjectStore defines the contract for listing, reading and writing keyed objects.
type ObjectStore interface {
	// List returns every object whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]Info, error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	SaveWithKey(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error)
}

// SortInfos orders objects by key so listings are stable across backends.
func SortInfos(infos []Info) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
}

// ApplyPrefix joins a store-level prefix and a key with a single "/".
func ApplyPrefix(prefix, key string) string {
	cleanPrefix := strings.Trim(prefix, "/")
	cleanKey := strings.TrimLeft(key, "/")
	if cleanPrefix == "" {
		return cleanKey
	}
	if cleanKey == "" {
		return cleanPrefix + "/"
	}
	return cleanPrefix + "/" + cleanKey
}

// StripPrefix removes a store-level prefix from a backend key.
func StripPrefix(prefix, key string) string {
	cleanPrefix := strings.Trim(prefix, "/")
	if cleanPrefix == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, cleanPrefix), "/")
}
