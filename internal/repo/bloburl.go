package repo

import "strings"

// ParseBlobURL extracts bucket and key from a blob://<bucket>/<key>
// URL, the scheme BlobStore.Put returns and the only form Image rows
// persist.
func ParseBlobURL(blobURL string) (bucket, key string, ok bool) {
	const prefix = "blob://"
	if !strings.HasPrefix(blobURL, prefix) {
		return "", "", false
	}

	rest := blobURL[len(prefix):]
	idx := strings.Index(rest, "/")
	if idx < 0 {
		return "", "", false
	}

	return rest[:idx], rest[idx+1:], true
}
