// Package mediastore implements the media storage collaborator on top of
// a Firebase storage bucket.
package mediastore

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

type FirebaseStore struct {
	bucket     *gcs.BucketHandle
	bucketName string
}

// NewFirebaseStore connects to the configured storage bucket. Credentials
// resolve the same way as the FCM client: FCM_SERVICE_ACCOUNT_JSON first,
// local key file as fallback.
func NewFirebaseStore(ctx context.Context, bucketName, localFilePath string) (*FirebaseStore, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("storage bucket name is not set")
	}

	var opt option.ClientOption
	if encoded := os.Getenv("FCM_SERVICE_ACCOUNT_JSON"); encoded != "" {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode FCM_SERVICE_ACCOUNT_JSON: %w", err)
		}
		opt = option.WithCredentialsJSON(decoded)
	} else {
		opt = option.WithCredentialsFile(localFilePath)
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{StorageBucket: bucketName}, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting storage client: %w", err)
	}

	bucket, err := client.DefaultBucket()
	if err != nil {
		return nil, fmt.Errorf("error getting storage bucket: %w", err)
	}

	return &FirebaseStore{bucket: bucket, bucketName: bucketName}, nil
}

// Upload streams one file into the bucket under a fresh object name and
// returns its public URL plus the object ref used for later deletion.
func (s *FirebaseStore) Upload(ctx context.Context, filename, contentType string, r io.Reader) (url, storageRef string, err error) {
	objectName := "stories/" + uuid.New().String() + path.Ext(filename)

	w := s.bucket.Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", "", fmt.Errorf("failed to write object %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return "", "", fmt.Errorf("failed to finalize object %s: %w", objectName, err)
	}

	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucketName, objectName), objectName, nil
}

// Delete removes an uploaded object once its story row is gone.
func (s *FirebaseStore) Delete(ctx context.Context, storageRef string) error {
	if err := s.bucket.Object(storageRef).Delete(ctx); err != nil && err != gcs.ErrObjectNotExist {
		return fmt.Errorf("failed to delete object %s: %w", storageRef, err)
	}
	return nil
}
