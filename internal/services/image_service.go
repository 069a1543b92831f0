package services

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"

	"sicklecare/internal/config"
)

// MaxMediaSize is the largest file WhatsApp accepts as a media message
const MaxMediaSize int64 = 16 << 20

// allowedMediaTypes maps accepted extensions to the Cloudinary resource type
var allowedMediaTypes = map[string]string{
	".jpg":  "image",
	".jpeg": "image",
	".png":  "image",
	".webp": "image",
	".pdf":  "image",
	".mp4":  "video",
	".mp3":  "video",
	".ogg":  "video",
}

// ImageService stores resource library media on Cloudinary
type ImageService struct {
	cld *cloudinary.Cloudinary
}

func NewImageService(cfg config.CloudinaryConfig) (*ImageService, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("missing Cloudinary configuration: %w", ErrNotConfigured)
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}

	return &ImageService{cld: cld}, nil
}

// MediaResourceType returns the Cloudinary resource type for filename, or an
// error when the extension cannot be sent as a WhatsApp media message
func MediaResourceType(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	resourceType, ok := allowedMediaTypes[ext]
	if !ok {
		return "", fmt.Errorf("invalid file type: %s. Allowed types: jpg, jpeg, png, webp, pdf, mp4, mp3, ogg", ext)
	}
	return resourceType, nil
}

// UploadResource uploads a resource file into the category's folder and
// returns its public URL
func (s *ImageService) UploadResource(ctx context.Context, file multipart.File, filename, category string) (string, error) {
	resourceType, err := MediaResourceType(filename)
	if err != nil {
		return "", err
	}

	publicID := fmt.Sprintf("%s_%s", strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)), uuid.NewString()[:8])

	uploadParams := uploader.UploadParams{
		PublicID:     publicID,
		Folder:       "sicklecare/resources/" + category,
		Overwrite:    &[]bool{false}[0],
		ResourceType: resourceType,
	}

	result, err := s.cld.Upload.Upload(ctx, file, uploadParams)
	if err != nil {
		return "", fmt.Errorf("failed to upload resource: %w", err)
	}

	return result.SecureURL, nil
}

// ValidateMediaFile checks the uploaded file against maxSize
func ValidateMediaFile(file io.ReadSeeker, maxSize int64) error {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	n, err := io.Copy(io.Discard, io.LimitReader(file, maxSize+1))
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if n > maxSize {
		return fmt.Errorf("file too large: more than %d bytes", maxSize)
	}

	// Reset file pointer for later use
	_, err = file.Seek(0, io.SeekStart)
	return err
}
