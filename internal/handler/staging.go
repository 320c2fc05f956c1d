package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/videotube/internal/apperror"
)

// stager copies multipart file parts into a local directory so the media
// uploader can work from plain paths.
type stager struct {
	dir       string
	maxMemory int64
}

// staged maps form field name to the local path of its file. Fields with no
// file are absent.
type staged map[string]string

// stage parses r as multipart/form-data and writes each named file part to
// the staging directory under a fresh xid name. The returned cleanup removes
// every staged file and must always be called, even when err is non-nil.
func (s stager) stage(r *http.Request, fields ...string) (staged, func(), error) {
	files := staged{}
	cleanup := func() {
		for _, p := range files {
			_ = os.Remove(p)
		}
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	if err := r.ParseMultipartForm(s.maxMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return files, cleanup, apperror.ValidationFailed("body", "Request must be multipart/form-data")
		}
		return files, cleanup, apperror.ValidationFailed("body", "Invalid multipart form")
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return files, cleanup, apperror.Internal("Something went wrong", fmt.Errorf("creating staging dir: %w", err))
	}

	for _, field := range fields {
		file, header, err := r.FormFile(field)
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				continue
			}
			return files, cleanup, apperror.ValidationFailed(field, "Invalid file")
		}

		path, err := s.write(file, header)
		file.Close()
		if err != nil {
			return files, cleanup, apperror.Internal("Something went wrong", err)
		}
		files[field] = path
	}

	return files, cleanup, nil
}

func (s stager) write(src multipart.File, header *multipart.FileHeader) (string, error) {
	path := filepath.Join(s.dir, xid.New().String()+safeExt(header.Filename))

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("creating staged file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("writing staged file: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("closing staged file: %w", err)
	}
	return path, nil
}

// safeExt keeps a short alphanumeric extension from the client's file name
// and drops anything else.
func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}
