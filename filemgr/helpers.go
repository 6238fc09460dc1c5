package filemgr

import (
	"path"
	"path/filepath"
	"slices"
	"strings"
)

func isExtensionAllowed(ext string, picType PictureType) bool {
	return slices.Contains(AllowedExtensions[picType], strings.ToLower(ext))
}

func isMIMEAllowed(mimeType string, picType PictureType) bool {
	return slices.Contains(AllowedMIMEs[picType], mimeType)
}

// ResolvePath is the directory under root that holds files of picType.
func ResolvePath(root string, entity EntityType, picType PictureType) string {
	subfolder := PictureSubfolders[picType]
	if subfolder == "" {
		subfolder = "misc"
	}
	return filepath.Join(root, strings.ToLower(string(entity)), subfolder)
}

func publicURL(prefix string, entity EntityType, picType PictureType, name string) string {
	return path.Join("/", prefix, string(entity), PictureSubfolders[picType], name)
}

// normalizeExt maps ".jpeg" and upper-case variants onto one spelling.
func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext == ".jpeg" {
		return ".jpg"
	}
	return ext
}
