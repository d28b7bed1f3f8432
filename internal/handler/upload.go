package handler

import (
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"portal-messaging/pkg/apperr"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// saveUpload 将上传文件落盘并返回访问URL
// 存储文件名使用UUID，保留原始扩展名；目录按需创建
func saveUpload(c *gin.Context, file *multipart.FileHeader, uploadDir string) (string, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return "", apperr.Internal("create upload directory failed", err)
	}

	extension := strings.ToLower(filepath.Ext(file.Filename))
	filename := uuid.NewString() + extension
	dst := filepath.Join(uploadDir, filename)

	if err := c.SaveUploadedFile(file, dst); err != nil {
		return "", apperr.Internal("save uploaded file failed", err)
	}

	return fmt.Sprintf("/uploads/%s", filename), nil
}
