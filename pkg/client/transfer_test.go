package client

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	openapiTypes "github.com/oapi-codegen/runtime/types"
)

type uploadCapture struct {
	method      string
	path        string
	auth        string
	boundary    string
	fieldName   string
	filename    string
	contentType string
	data        []byte
}

func uploadServer(t *testing.T, status int, body string) (*Client, *uploadCapture) {
	t.Helper()
	captured := &uploadCapture{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured.method = r.Method
		captured.path = r.URL.Path
		captured.auth = r.Header.Get("Authorization")

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/form-data" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		} else {
			captured.boundary = params["boundary"]
			reader := multipart.NewReader(r.Body, captured.boundary)
			part, err := reader.NextPart()
			if err != nil {
				t.Errorf("read part: %v", err)
			} else {
				captured.fieldName = part.FormName()
				captured.filename = part.FileName()
				captured.contentType = part.Header.Get("Content-Type")
				captured.data, _ = io.ReadAll(part)
			}
		}

		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
	return c, captured
}

// TestUpload tests the multipart file upload
func TestUpload(t *testing.T) {
	tests := []struct {
		name            string
		filename        string
		wantContentType string
	}{
		{name: "pdf", filename: "contract.pdf", wantContentType: "application/pdf"},
		{name: "unknown extension", filename: "payload.unknownext", wantContentType: "application/octet-stream"},
		{name: "no extension", filename: "README", wantContentType: "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.filename)
			content := []byte("%PDF-1.7\x00binary\r\n--not-a-boundary")
			if err := os.WriteFile(path, content, 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}

			c, got := uploadServer(t, http.StatusCreated, `{"id":"file-1"}`)
			result, err := c.Upload(context.Background(), path, "tok")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !reflect.DeepEqual(result, map[string]any{"id": "file-1"}) {
				t.Errorf("unexpected result %v", result)
			}
			if got.method != http.MethodPost || got.path != UploadPath {
				t.Errorf("unexpected request %s %s", got.method, got.path)
			}
			if got.auth != "Bearer tok" {
				t.Errorf("unexpected Authorization %q", got.auth)
			}
			if !strings.HasPrefix(got.boundary, "----WebKitFormBoundary") || len(got.boundary) != len("----WebKitFormBoundary")+16 {
				t.Errorf("unexpected boundary %q", got.boundary)
			}
			if got.fieldName != "file" || got.filename != tt.filename {
				t.Errorf("unexpected part name %q filename %q", got.fieldName, got.filename)
			}
			if got.contentType != tt.wantContentType {
				t.Errorf("expected content type %q, got %q", tt.wantContentType, got.contentType)
			}
			if string(got.data) != string(content) {
				t.Errorf("file content was altered: %q", got.data)
			}
		})
	}
}

func TestUploadBoundaryIsRandom(t *testing.T) {
	if newBoundary() == newBoundary() {
		t.Error("expected distinct boundaries")
	}
}

func TestUploadErrorMapping(t *testing.T) {
	c, _ := uploadServer(t, http.StatusUnprocessableEntity, `{"detail":"Unsupported file","violations":[{"propertyPath":"file","message":"too large"}]}`)

	var file openapiTypes.File
	file.InitFromBytes([]byte("x"), "a.txt")
	_, err := c.UploadFile(context.Background(), file, "tok")

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fields := ve.Fields(); len(fields) != 1 || fields[0].PropertyPath != "file" {
		t.Errorf("unexpected violations %v", ve.Violations)
	}
}

func TestUploadMissingFile(t *testing.T) {
	c, _ := uploadServer(t, http.StatusCreated, `{}`)
	_, err := c.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), "tok")
	if err == nil {
		t.Fatal("expected error for missing file")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.TextCode != TextCodeFile {
		t.Errorf("expected %q text code, got %q", TextCodeFile, rich.TextCode)
	}
	if KindOf(err) != KindUnclassified {
		t.Errorf("local file errors must stay unclassified, got %q", KindOf(err))
	}
}

func TestDownload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/envelopes/e1/download" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte{0x25, 0x50, 0x44, 0x46, 0x00, 0xff})
	})

	data, err := c.Download(context.Background(), Request{Method: http.MethodGet, Path: "/api/envelopes/e1/download"}, "t")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != 6 || data[5] != 0xff {
		t.Errorf("unexpected payload %v", data)
	}

	_, err = c.Download(context.Background(), Request{Method: http.MethodGet, Path: "/api/envelopes/e2/download"}, "t")
	if !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}
