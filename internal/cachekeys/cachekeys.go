package cachekeys

import "fmt"

// Image is the cache key under which C4 seeds the original upload
// bytes and C5 consults them before falling back to the blob store.
func Image(imageID string) string {
	return fmt.Sprintf("image:%s", imageID)
}

// ImageMeta is the read-through cache key for an Image metadata row,
// distinct from Image's raw-bytes keyspace.
func ImageMeta(imageID string) string {
	return fmt.Sprintf("image-meta:%s", imageID)
}

// RecognitionMeta is the read-through cache key for a Recognition row.
func RecognitionMeta(recognitionID string) string {
	return fmt.Sprintf("recognition-meta:%s", recognitionID)
}
