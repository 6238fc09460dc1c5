package filemgr

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSaveImage(t *testing.T) {
	root := t.TempDir()
	m := New(root, "/uploads", 0)

	saved, err := m.SaveImage(EntityProduct, "Cat Tree.PNG", bytes.NewReader(pngBytes(t, 400, 300)))
	require.NoError(t, err)

	assert.Equal(t, "image/png", saved.MIME)
	assert.Equal(t, 400, saved.Width)
	assert.True(t, strings.HasPrefix(saved.URL, "/uploads/products/photo/"))
	assert.True(t, strings.HasSuffix(saved.URL, ".png"))
	assert.True(t, strings.HasPrefix(saved.ThumbURL, "/uploads/products/thumb/"))

	_, err = os.Stat(filepath.Join(root, "products", "photo", filepath.Base(saved.URL)))
	assert.NoError(t, err)

	thumb, err := imaging.Open(filepath.Join(root, "products", "thumb", filepath.Base(saved.ThumbURL)))
	require.NoError(t, err)
	assert.Equal(t, ThumbWidth, thumb.Bounds().Dx())
	assert.Equal(t, 150, thumb.Bounds().Dy())
}

func TestSaveImageRejects(t *testing.T) {
	m := New(t.TempDir(), "/uploads", 100)

	_, err := m.SaveImage(EntityProduct, "notes.txt", strings.NewReader("hello"))
	assert.ErrorIs(t, err, ErrInvalidExtension)

	_, err = m.SaveImage(EntityProduct, "fake.png", strings.NewReader("just some text pretending"))
	assert.ErrorIs(t, err, ErrInvalidMIME)

	_, err = m.SaveImage(EntityProduct, "big.png", bytes.NewReader(pngBytes(t, 400, 300)))
	assert.ErrorIs(t, err, ErrFileTooLarge)
}
