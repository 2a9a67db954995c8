package chat

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const SignedURLTTL = 7 * 24 * time.Hour

// Allowed upload types. A file must pass both lists on its own.
var (
	allowedMIMETypes = map[string]bool{
		"image/jpeg":         true,
		"image/png":          true,
		"image/gif":          true,
		"image/webp":         true,
		"application/pdf":    true,
		"application/msword": true,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	}
	allowedExtensions = map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".gif":  true,
		".webp": true,
		".pdf":  true,
		".doc":  true,
		".docx": true,
	}
)

// Upload is a raw file as received from the client.
type Upload struct {
	Data     []byte
	MIMEType string
	FileName string
}

// AttachmentValidator checks uploads and places accepted ones in object storage.
type AttachmentValidator struct {
	objects ObjectStore
	maxSize int64
	ttl     time.Duration
	newID   func() uuid.UUID
}

func NewAttachmentValidator(objects ObjectStore) *AttachmentValidator {
	return &AttachmentValidator{
		objects: objects,
		maxSize: MaxFileSizeBytes,
		ttl:     SignedURLTTL,
		newID:   uuid.New,
	}
}

// Validate rejects oversized files and anything outside the allow-lists.
func (v *AttachmentValidator) Validate(u Upload) error {
	if int64(len(u.Data)) > v.maxSize {
		return newError(CodeFileTooLarge, "file exceeds 10 MiB")
	}
	name := strings.TrimSpace(u.FileName)
	if name == "" {
		return invalidInput("file_name is required")
	}
	if len([]rune(name)) > MaxFileNameLength {
		return invalidInput("file_name exceeds 255 characters")
	}
	if !allowedMIMEType(u.MIMEType) {
		return newError(CodeFileTypeNotAllowed, "mime type not allowed")
	}
	return checkExtension(name)
}

func allowedMIMEType(raw string) bool {
	mime := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return allowedMIMETypes[mime]
}

func checkExtension(name string) error {
	if !allowedExtensions[strings.ToLower(filepath.Ext(name))] {
		return newError(CodeFileTypeNotAllowed, "extension not allowed")
	}
	return nil
}

// StoragePath returns a fresh object path scoped to the conversation.
func (v *AttachmentValidator) StoragePath(conversationID uuid.UUID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(fileName)))
	return path.Join("conversations", conversationID.String(), v.newID().String()+ext)
}

// Store validates u, writes it and signs a retrieval URL. Nothing is
// persisted in the message store here.
func (v *AttachmentValidator) Store(ctx context.Context, conversationID uuid.UUID, u Upload) (FilePayload, error) {
	if err := v.Validate(u); err != nil {
		return FilePayload{}, err
	}
	if v.objects == nil {
		return FilePayload{}, newError(CodeStorageUnavailable, "object storage not configured")
	}
	p := v.StoragePath(conversationID, u.FileName)
	if err := v.objects.Put(ctx, p, u.Data, u.MIMEType); err != nil {
		return FilePayload{}, wrapError(CodeStorageUnavailable, "put object", err)
	}
	url, err := v.objects.SignedURL(ctx, p, v.ttl)
	if err != nil {
		return FilePayload{}, wrapError(CodeStorageUnavailable, "sign url", err)
	}
	return FilePayload{
		FileURL:       url,
		FileName:      strings.TrimSpace(u.FileName),
		FileType:      u.MIMEType,
		FileSizeBytes: int64(len(u.Data)),
	}, nil
}
