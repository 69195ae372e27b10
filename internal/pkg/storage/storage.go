package storage

import (
	"PromptVault/internal/api/config"
	"PromptVault/internal/model"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidName 文件名为空或包含路径穿越
var ErrInvalidName = errors.New("invalid file name")

var safeNamePattern = regexp.MustCompile(`[^A-Za-z0-9._-]`)

var (
	imageExtensions = map[string]struct{}{
		".png": {}, ".jpg": {}, ".jpeg": {}, ".webp": {}, ".gif": {},
	}
	videoExtensions = map[string]struct{}{
		".mp4": {}, ".mov": {}, ".webm": {}, ".mkv": {},
	}
	imageContentTypes = map[string]struct{}{
		"image/png": {}, "image/jpeg": {}, "image/webp": {}, "image/gif": {},
	}
	videoContentTypes = map[string]struct{}{
		"video/mp4": {}, "video/quicktime": {}, "video/webm": {}, "video/x-matroska": {},
	}
)

var mediaDir string

// Init 初始化受管媒体目录
func Init(cfg *config.StorageConfig) error {
	dir := cfg.MediaDir
	if dir == "" {
		return errors.New("storage media_dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create media directory: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	mediaDir = abs
	return nil
}

// MediaDir 受管媒体目录的绝对路径
func MediaDir() string {
	return mediaDir
}

// SanitizeName 归一化文件名：去掉目录部分，替换不安全字符
func SanitizeName(name string) (string, error) {
	if name == "" {
		return "", ErrInvalidName
	}
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	sanitized := safeNamePattern.ReplaceAllString(base, "_")
	if sanitized == "" || sanitized == "." || sanitized == ".." {
		return "", ErrInvalidName
	}
	return sanitized, nil
}

// ResolvePath 将文件名解析为媒体目录下的绝对路径，拒绝逃逸
func ResolvePath(name string) (string, error) {
	safeName, err := SanitizeName(name)
	if err != nil {
		return "", err
	}
	destination := filepath.Join(mediaDir, safeName)
	if !strings.HasPrefix(destination, mediaDir+string(filepath.Separator)) {
		return "", ErrInvalidName
	}
	return destination, nil
}

// Save 以随机名称落盘，返回存储名
func Save(r io.Reader, ext string) (string, error) {
	name := uuid.NewString() + strings.ToLower(ext)
	destination, err := ResolvePath(name)
	if err != nil {
		return "", err
	}
	out, err := os.Create(destination)
	if err != nil {
		return "", err
	}
	defer func() { _ = out.Close() }()
	if _, err = io.Copy(out, r); err != nil {
		_ = os.Remove(destination)
		return "", err
	}
	return name, nil
}

// CopyIntoManaged 把已有文件拷入媒体目录，目标名冲突时追加 _1、_2…
func CopyIntoManaged(sourcePath string, targetName string) (string, error) {
	destination, err := ResolvePath(targetName)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(destination)
	stem := strings.TrimSuffix(destination, ext)
	counter := 1
	for {
		if _, err = os.Stat(destination); errors.Is(err, fs.ErrNotExist) {
			break
		}
		destination = fmt.Sprintf("%s_%d%s", stem, counter, ext)
		counter++
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return "", err
	}
	defer func() { _ = src.Close() }()

	out, err := os.Create(destination)
	if err != nil {
		return "", err
	}
	defer func() { _ = out.Close() }()

	if _, err = io.Copy(out, src); err != nil {
		_ = os.Remove(destination)
		return "", err
	}
	return filepath.Base(destination), nil
}

// Delete 删除存储文件，文件不存在视为成功
func Delete(name string) error {
	path, err := ResolvePath(name)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// AllowedExtension 扩展名是否允许用于该媒体类型
func AllowedExtension(mediaType model.MediaType, ext string) bool {
	ext = strings.ToLower(ext)
	if mediaType == model.MediaTypeVideo {
		_, ok := videoExtensions[ext]
		return ok
	}
	_, ok := imageExtensions[ext]
	return ok
}

// AllowedContentType 探测出的 MIME 是否允许用于该媒体类型
func AllowedContentType(mediaType model.MediaType, contentType string) bool {
	if mediaType == model.MediaTypeVideo {
		_, ok := videoContentTypes[contentType]
		return ok
	}
	_, ok := imageContentTypes[contentType]
	return ok
}

// InferMediaType 按扩展名推断媒体类型，视频扩展之外一律视为图片
func InferMediaType(fileName string) model.MediaType {
	ext := strings.ToLower(filepath.Ext(fileName))
	if _, ok := videoExtensions[ext]; ok {
		return model.MediaTypeVideo
	}
	return model.MediaTypeImage
}
