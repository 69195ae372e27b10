package util

import (
	"errors"
	"io"

	"github.com/h2non/filetype"
)

// GetSafeContentType 读取文件头嗅探 MIME 类型，不信任客户端声明的 Content-Type
func GetSafeContentType(r io.ReadSeeker) (string, error) {
	head := make([]byte, 261)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	if _, err = r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	kind, err := filetype.Match(head[:n])
	if err != nil {
		return "", err
	}
	if kind == filetype.Unknown {
		return "", errors.New("unrecognized content type")
	}
	return kind.MIME.Value, nil
}
