package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nunotfc/amelie/internal/services"
)

// FileState reports remote processing status for an uploaded file.
type FileState string

const (
	FileProcessing FileState = "PROCESSING"
	FileActive     FileState = "ACTIVE"
	FileSucceeded  FileState = "SUCCEEDED"
	FileFailed     FileState = "FAILED"
)

// FileRef identifies an uploaded file on the backend.
type FileRef struct {
	Name     string
	URI      string
	MimeType string
	State    FileState
}

type filePayload struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	State    string `json:"state"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p filePayload) toRef() FileRef {
	return FileRef{
		Name:     p.Name,
		URI:      p.URI,
		MimeType: p.MimeType,
		State:    FileState(strings.ToUpper(strings.TrimSpace(p.State))),
	}
}

// Upload pushes media bytes to the backend file store. Video files come back
// in the PROCESSING state and must be polled via FileStatus before analysis.
func (c *Client) Upload(ctx context.Context, data []byte, mimeType string) (FileRef, error) {
	const op = "inference upload"
	var empty FileRef
	if len(data) == 0 {
		return empty, services.NewError(services.KindGeneral, op, "empty payload", nil)
	}
	if mimeType == "" {
		return empty, services.NewError(services.KindGeneral, op, "mime type required", nil)
	}
	if c.cfg.APIKey == "" {
		return empty, services.NewError(services.KindGeneral, op, "api key required", nil)
	}

	endpoint := c.endpoint("upload", "v1beta", "files") + "?key=" + c.cfg.APIKey
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return empty, services.NewError(services.KindGeneral, op, "new request", err)
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("X-Goog-Upload-Protocol", "raw")

	body, err := c.do(op, req)
	if err != nil {
		return empty, err
	}

	var decoded struct {
		File filePayload `json:"file"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return empty, services.NewError(services.KindGeneral, op, "decode response", err)
	}
	if decoded.File.Name == "" {
		return empty, services.NewError(services.KindGeneral, op, "missing file name in response", nil)
	}
	return decoded.File.toRef(), nil
}

// FileStatus fetches the current remote state of an uploaded file.
func (c *Client) FileStatus(ctx context.Context, name string) (FileRef, error) {
	const op = "inference file status"
	var empty FileRef
	name = strings.TrimSpace(name)
	if name == "" {
		return empty, services.NewError(services.KindGeneral, op, "file name required", nil)
	}

	endpoint := c.endpoint("v1beta", name) + "?key=" + c.cfg.APIKey
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return empty, services.NewError(services.KindGeneral, op, "new request", err)
	}

	body, err := c.do(op, req)
	if err != nil {
		return empty, err
	}

	var decoded filePayload
	if err := json.Unmarshal(body, &decoded); err != nil {
		return empty, services.NewError(services.KindGeneral, op, "decode response", err)
	}
	ref := decoded.toRef()
	if ref.State == FileFailed {
		detail := "remote processing failed"
		if decoded.Error != nil && decoded.Error.Message != "" {
			detail = decoded.Error.Message
		}
		return ref, services.NewError(services.KindGeneral, op, detail, nil)
	}
	return ref, nil
}

// DeleteFile removes an uploaded file. Callers use it best-effort; a missing
// file is not an error.
func (c *Client) DeleteFile(ctx context.Context, name string) error {
	const op = "inference delete file"
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	endpoint := c.endpoint("v1beta", name) + "?key=" + c.cfg.APIKey
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return services.NewError(services.KindGeneral, op, "new request", err)
	}

	_, err = c.do(op, req)
	if err != nil {
		var classified *services.Error
		if errors.As(err, &classified) && classified.Kind == services.KindFileExpired {
			return nil
		}
		return err
	}
	return nil
}

func (c *Client) do(op string, req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.NewError(services.KindGeneral, op, fmt.Sprintf("read body (timeout=%s)", c.httpClient.Timeout), err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, classifyHTTP(op, resp.StatusCode, string(body))
	}
	return body, nil
}
