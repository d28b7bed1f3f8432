package attachment

import (
	"fmt"
	"path/filepath"
	"strings"

	"portal-messaging/pkg/apperr"
)

// 附件分类枚举
const (
	TypeImage    = "image"
	TypeDocument = "document"
	TypeVideo    = "video"
	TypeAudio    = "audio"
	TypeFile     = "file" // 兜底分类
)

// 扩展名分类表
var (
	imageExtensions = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true,
	}
	documentExtensions = map[string]bool{
		".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
		".ppt": true, ".pptx": true, ".txt": true,
	}
	videoExtensions = map[string]bool{
		".mp4": true, ".avi": true, ".mov": true, ".wmv": true, ".flv": true, ".mkv": true,
	}
	audioExtensions = map[string]bool{
		".mp3": true, ".wav": true, ".ogg": true, ".m4a": true, ".flac": true,
	}
)

// 文档类MIME类型表
var documentMIMETypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/vnd.ms-powerpoint":                                     true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"text/plain": true,
}

// 群组头图允许的扩展名
var groupImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
}

// Classify 附件分类
// 确定性优先级：声明的MIME类型优先，扩展名兜底，都无法识别时归为 file
// 纯函数，不做任何IO
func Classify(mimeType, filename string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))

	// 去掉 "text/plain; charset=utf-8" 这类参数部分
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}

	// 1. 按声明的MIME类型判断
	if mimeType != "" && mimeType != "application/octet-stream" {
		switch {
		case strings.HasPrefix(mimeType, "image/"):
			return TypeImage
		case strings.HasPrefix(mimeType, "video/"):
			return TypeVideo
		case strings.HasPrefix(mimeType, "audio/"):
			return TypeAudio
		case documentMIMETypes[mimeType]:
			return TypeDocument
		}
	}

	// 2. 按扩展名判断
	extension := strings.ToLower(filepath.Ext(filename))
	switch {
	case imageExtensions[extension]:
		return TypeImage
	case documentExtensions[extension]:
		return TypeDocument
	case videoExtensions[extension]:
		return TypeVideo
	case audioExtensions[extension]:
		return TypeAudio
	}

	// 3. 兜底
	return TypeFile
}

// ValidateSize 校验附件大小
func ValidateSize(size, maxSize int64) error {
	if size > maxSize {
		return apperr.Validation(fmt.Sprintf("file is too large, maximum size is %dMB", maxSize/(1024*1024)))
	}
	return nil
}

// ValidateGroupImage 校验群组头图（大小 + 扩展名白名单）
func ValidateGroupImage(filename string, size, maxSize int64) error {
	if size > maxSize {
		return apperr.Validation(fmt.Sprintf("image is too large, maximum size is %dMB", maxSize/(1024*1024)))
	}
	extension := strings.ToLower(filepath.Ext(filename))
	if !groupImageExtensions[extension] {
		return apperr.Validation("only JPG, JPEG, PNG, and GIF images are allowed")
	}
	return nil
}
