package sdk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
)

// FilesAPI uploads and manages files such as project images
type FilesAPI struct {
	c *Client
}

// Upload sends r as a multipart/form-data "file" part named name. The body
// is buffered so an offline upload can be queued and replayed.
func (f *FilesAPI) Upload(ctx context.Context, name string, r io.Reader, contentType string) (*FileInfo, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &ValidationError{Field: "name", Message: "file name is required"}
	}

	body, err := encodeMultipart(filepath.Base(name), r, contentType)
	if err != nil {
		return nil, &ValidationError{Field: "file", Message: err.Error(), Err: err}
	}
	return one[FileInfo](ctx, f.c, http.MethodPost, "/files", body)
}

// List returns one page of the caller's uploads
func (f *FilesAPI) List(ctx context.Context, page PageRequest) (*Page[FileInfo], error) {
	return list[FileInfo](ctx, f.c, "/files", page.values())
}

// Delete removes an upload
func (f *FilesAPI) Delete(ctx context.Context, id string) error {
	_, err := Dispatch[struct{}](ctx, f.c, http.MethodDelete, "/files/"+url.PathEscape(id), nil, nil)
	return err
}

func encodeMultipart(name string, r io.Reader, contentType string) (*Multipart, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	return &Multipart{ContentType: w.FormDataContentType(), Data: buf.Bytes()}, nil
}
