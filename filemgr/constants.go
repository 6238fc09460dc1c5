package filemgr

import "errors"

type EntityType string
type PictureType string

const (
	EntityProduct EntityType = "products"

	PicPhoto PictureType = "photo"
	PicThumb PictureType = "thumb"
)

// ThumbWidth is the width of generated thumbnails; height keeps the aspect ratio.
const ThumbWidth = 200

var (
	AllowedExtensions = map[PictureType][]string{
		PicPhoto: {".jpg", ".jpeg", ".png", ".gif", ".webp"},
		PicThumb: {".jpg"},
	}

	AllowedMIMEs = map[PictureType][]string{
		PicPhoto: {"image/jpeg", "image/png", "image/gif", "image/webp"},
		PicThumb: {"image/jpeg"},
	}

	PictureSubfolders = map[PictureType]string{
		PicPhoto: "photo",
		PicThumb: "thumb",
	}

	ErrInvalidExtension = errors.New("invalid file extension")
	ErrInvalidMIME      = errors.New("invalid MIME type")
	ErrFileTooLarge     = errors.New("file size exceeds limit")
	ErrUndecodable      = errors.New("file is not a readable image")
)
