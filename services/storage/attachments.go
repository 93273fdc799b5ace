package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// AttachmentService stores chat image attachments. The chat channel only
// ever carries the returned URL; the bytes live here.
type AttachmentService interface {
	UploadAttachment(ctx context.Context, sessionID string, file io.Reader, filename string) (string, error)
	DeleteAttachment(ctx context.Context, publicID string) error
}

// CloudinaryAttachmentService implements AttachmentService on Cloudinary,
// foldering uploads per session.
type CloudinaryAttachmentService struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryAttachmentService(cloudinaryURL string) (*CloudinaryAttachmentService, error) {
	if cloudinaryURL == "" {
		return nil, fmt.Errorf("cloudinary URL is not configured")
	}
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}
	return &CloudinaryAttachmentService{cld: cld}, nil
}

// UploadAttachment uploads the file under the session's folder and returns
// the delivery URL to embed in the chat message payload.
func (s *CloudinaryAttachmentService) UploadAttachment(ctx context.Context, sessionID string, file io.Reader, filename string) (string, error) {
	result, err := s.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:   "sessions/" + sessionID,
		PublicID: filename,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload attachment: %w", err)
	}
	if result.SecureURL == "" {
		return "", fmt.Errorf("no URL returned for attachment upload")
	}
	return result.SecureURL, nil
}

// DeleteAttachment removes an uploaded attachment by its public id.
func (s *CloudinaryAttachmentService) DeleteAttachment(ctx context.Context, publicID string) error {
	if _, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID}); err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return nil
}
