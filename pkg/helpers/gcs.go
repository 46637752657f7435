package helpers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const gcsHost = "https://storage.googleapis.com/"

// NewGCSClient creates a Google Cloud Storage client. If credsPath is empty, ADC is used.
func NewGCSClient(ctx context.Context, credsPath string) (*storage.Client, error) {
	if credsPath == "" {
		return storage.NewClient(ctx)
	}
	return storage.NewClient(ctx, option.WithCredentialsFile(credsPath))
}

// ObjectUpload describes one object write.
type ObjectUpload struct {
	Bucket       string
	Path         string
	ContentType  string
	CacheControl string
	Metadata     map[string]string
}

// UploadObject streams r into the object and returns its public URL.
// The write is single-shot; a failed copy leaves no object behind.
func UploadObject(ctx context.Context, client *storage.Client, up ObjectUpload, r io.Reader) (string, error) {
	wc := client.Bucket(up.Bucket).Object(up.Path).NewWriter(ctx)
	wc.ContentType = up.ContentType
	wc.CacheControl = up.CacheControl
	wc.Metadata = up.Metadata
	wc.ChunkSize = 0
	if _, err := io.Copy(wc, r); err != nil {
		_ = wc.Close()
		return "", fmt.Errorf("gcs write %s: %w", up.Path, err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("gcs close %s: %w", up.Path, err)
	}
	return PublicURL(up.Bucket, up.Path), nil
}

// DeleteObject removes an object; a missing object is not an error.
func DeleteObject(ctx context.Context, client *storage.Client, bucket, objectPath string) error {
	err := client.Bucket(bucket).Object(objectPath).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

func PublicURL(bucket, objectPath string) string {
	return gcsHost + bucket + "/" + objectPath
}

// ObjectPathFromURL reverses PublicURL for objects in bucket.
func ObjectPathFromURL(bucket, url string) (string, bool) {
	p, ok := strings.CutPrefix(url, gcsHost+bucket+"/")
	if !ok || p == "" || path.Clean(p) != p {
		return "", false
	}
	return p, true
}
