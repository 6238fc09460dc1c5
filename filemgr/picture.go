package filemgr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
)

// Saved describes an uploaded picture and its thumbnail.
type Saved struct {
	URL      string `json:"url"`
	ThumbURL string `json:"thumbUrl"`
	MIME     string `json:"mime"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Size     int64  `json:"size"`
}

// Manager writes uploads below Root and reports them under URLPrefix.
type Manager struct {
	Root      string
	URLPrefix string
	MaxBytes  int64
}

func New(root, urlPrefix string, maxBytes int64) *Manager {
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &Manager{Root: root, URLPrefix: urlPrefix, MaxBytes: maxBytes}
}

// SaveImage validates src as an image of an allowed type, stores it under a
// fresh uuid name and writes a ThumbWidth-wide JPEG thumbnail beside it.
func (m *Manager) SaveImage(entity EntityType, originalName string, src io.Reader) (*Saved, error) {
	ext := filepath.Ext(originalName)
	if !isExtensionAllowed(ext, PicPhoto) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidExtension, ext)
	}

	data, err := io.ReadAll(io.LimitReader(src, m.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > m.MaxBytes {
		return nil, ErrFileTooLarge
	}

	mimeType := http.DetectContentType(data)
	if !isMIMEAllowed(mimeType, PicPhoto) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMIME, mimeType)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	photoDir := ResolvePath(m.Root, entity, PicPhoto)
	thumbDir := ResolvePath(m.Root, entity, PicThumb)
	for _, dir := range []string{photoDir, thumbDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create upload dir: %w", err)
		}
	}

	id := uuid.NewString()
	photoName := id + normalizeExt(ext)
	if err := os.WriteFile(filepath.Join(photoDir, photoName), data, 0o644); err != nil {
		return nil, fmt.Errorf("write upload: %w", err)
	}

	thumbName := id + ".jpg"
	if err := writeThumb(filepath.Join(thumbDir, thumbName), img); err != nil {
		os.Remove(filepath.Join(photoDir, photoName))
		return nil, err
	}

	b := img.Bounds()
	slog.Info("image stored", "entity", entity, "file", photoName, "mime", mimeType, "size", len(data))
	return &Saved{
		URL:      publicURL(m.URLPrefix, entity, PicPhoto, photoName),
		ThumbURL: publicURL(m.URLPrefix, entity, PicThumb, thumbName),
		MIME:     mimeType,
		Width:    b.Dx(),
		Height:   b.Dy(),
		Size:     int64(len(data)),
	}, nil
}

func writeThumb(path string, img image.Image) error {
	thumb := imaging.Resize(img, ThumbWidth, 0, imaging.Lanczos)

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create thumbnail: %w", err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, thumb, &jpeg.Options{Quality: 85}); err != nil {
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	return nil
}
