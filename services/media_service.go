package services

import (
	"context"
	"io"
)

// UploadResult is what the storage collaborator hands back for one file.
type UploadResult struct {
	URL        string `json:"url"`
	StorageRef string `json:"storage_ref"`
}

// Uploader is the media storage collaborator boundary. The binary lives
// with the collaborator; stories only keep the returned references.
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, r io.Reader) (url, storageRef string, err error)
}

// MediaService fronts the uploader and normalizes failures into
// UploadError so story creation can abort cleanly.
type MediaService struct {
	uploader Uploader
}

func NewMediaService(uploader Uploader) *MediaService {
	return &MediaService{uploader: uploader}
}

func (s *MediaService) Upload(ctx context.Context, filename, contentType string, r io.Reader) (*UploadResult, error) {
	url, ref, err := s.uploader.Upload(ctx, filename, contentType, r)
	if err != nil {
		return nil, &UploadError{Err: err}
	}
	return &UploadResult{URL: url, StorageRef: ref}, nil
}
