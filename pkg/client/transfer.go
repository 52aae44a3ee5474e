package client

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	openapiTypes "github.com/oapi-codegen/runtime/types"
)

// UploadPath is the multipart file upload endpoint.
const UploadPath = "/api/files"

const defaultContentType = "application/octet-stream"

// Upload reads the file at path into memory and posts it as the "file" part
// of a multipart/form-data request. The decoded JSON response describes the
// stored file.
func (c *Client) Upload(ctx context.Context, path, token string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, unclassifiedError(err, goerrors.CategoryBadInput, "digisign: read upload file",
			TextCodeFile, http.StatusBadRequest, map[string]any{"file": path})
	}

	var file openapiTypes.File
	file.InitFromBytes(data, filepath.Base(path))
	return c.UploadFile(ctx, file, token)
}

// UploadFile posts an in-memory file to the upload endpoint.
func (c *Client) UploadFile(ctx context.Context, file openapiTypes.File, token string) (any, error) {
	body, contentType, err := multipartBody(file)
	if err != nil {
		return nil, unclassifiedError(err, goerrors.CategoryInternal, "digisign: build multipart body",
			TextCodeRequest, http.StatusInternalServerError, map[string]any{"file": file.Filename()})
	}

	headers := c.authHeaders(token, "")
	headers["Content-Type"] = contentType

	req := Request{Method: http.MethodPost, Path: UploadPath}
	resp, err := c.roundTrip(ctx, req.Method, req.Path, nil, bytes.NewReader(body), headers)
	if err != nil {
		return nil, err
	}
	return c.interpret(req, resp, defaultSuccess)
}

// Download fetches a binary resource such as a signed document.
func (c *Client) Download(ctx context.Context, req Request, token string) ([]byte, error) {
	return c.SendBinary(ctx, req, token)
}

func multipartBody(file openapiTypes.File) ([]byte, string, error) {
	data, err := file.Bytes()
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.SetBoundary(newBoundary()); err != nil {
		return nil, "", err
	}

	name := file.Filename()
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(name)))
	header.Set("Content-Type", guessContentType(name))

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func newBoundary() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "----WebKitFormBoundary" + id[:16]
}

func guessContentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return defaultContentType
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
