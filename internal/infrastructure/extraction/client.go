package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kirillkom/document-validity-gateway/internal/core/domain"
	"github.com/kirillkom/document-validity-gateway/internal/infrastructure/resilience"
)

const processFilesPath = "/api/v1/process_files"

// Client submits intake batches to the extraction service. Each multipart
// part's filename carries the item id so identifiers round-trip through the
// service unchanged; the display name travels in a part header for files and
// inside the JSON descriptor for URLs.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

type urlDescriptor struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type processFilesResponse struct {
	Results map[string]string         `json:"results"`
	Data    map[string]map[string]any `json:"data"`
}

func (c *Client) ProcessFiles(ctx context.Context, items []domain.IntakeItem) (*domain.ExtractionResponse, error) {
	payload, contentType, err := buildMultipart(items)
	if err != nil {
		return nil, fmt.Errorf("build multipart payload: %w", err)
	}

	var out *domain.ExtractionResponse
	call := func(ctx context.Context) error {
		response, err := c.dispatch(ctx, payload, contentType)
		if err != nil {
			return err
		}
		out = response
		return nil
	}

	if c.executor != nil {
		err = c.executor.Do(ctx, "extraction.process_files", call, classifyServiceError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded("process files", err)
	}
	return out, nil
}

func (c *Client) dispatch(ctx context.Context, payload []byte, contentType string) (*domain.ExtractionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+processFilesPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create process_files request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction process_files request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return decodeSuccess(resp.Body)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, decodeRejection(resp)
	default:
		return nil, newHTTPStatusError("process_files", resp)
	}
}

func decodeSuccess(body io.Reader) (*domain.ExtractionResponse, error) {
	var decoded processFilesResponse
	if err := json.NewDecoder(body).Decode(&decoded); err != nil {
		return nil, domain.WrapError(domain.ErrMalformedResponse, "decode process_files response", err)
	}
	if decoded.Results == nil || decoded.Data == nil {
		return nil, domain.WrapError(
			domain.ErrMalformedResponse,
			"decode process_files response",
			fmt.Errorf("results or data map missing"),
		)
	}

	data := make(map[string]map[string]string, len(decoded.Data))
	for id, fields := range decoded.Data {
		converted := make(map[string]string, len(fields))
		for key, value := range fields {
			converted[key] = stringifyField(value)
		}
		data[id] = converted
	}
	return &domain.ExtractionResponse{Results: decoded.Results, Data: data}, nil
}

// stringifyField tolerates numeric or boolean field values; the contract says
// scalar, not string.
func stringifyField(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

type rejectionDetail struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
}

// decodeRejection treats the response's embedded detail object as the
// authoritative error. Both the wrapped form {"detail": {...}} and the bare
// detail object are accepted.
func decodeRejection(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))

	var wrapped struct {
		Detail json.RawMessage `json:"detail"`
	}
	detailBytes := raw
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Detail) > 0 {
		detailBytes = wrapped.Detail
	}

	var detail rejectionDetail
	if err := json.Unmarshal(detailBytes, &detail); err != nil || (detail.Error == "" && detail.Message == "") {
		message := strings.TrimSpace(string(raw))
		if message == "" {
			message = resp.Status
		}
		if resp.StatusCode == http.StatusUnprocessableEntity {
			return &domain.BatchRejectedError{Code: "UNSUPPORTED_FORMAT", Message: message}
		}
		return &domain.BatchRejectedError{Message: message}
	}

	return &domain.BatchRejectedError{
		Code:     detail.Error,
		Message:  detail.Message,
		Filename: detail.Filename,
	}
}

func buildMultipart(items []domain.IntakeItem) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, item := range items {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, item.ID))

		switch item.Kind {
		case domain.KindRemoteURL:
			header.Set("Content-Type", "application/json")
			part, err := writer.CreatePart(header)
			if err != nil {
				return nil, "", err
			}
			descriptor, err := json.Marshal(urlDescriptor{URL: item.URL, Name: item.Name, Type: "url"})
			if err != nil {
				return nil, "", err
			}
			if _, err := part.Write(descriptor); err != nil {
				return nil, "", err
			}
		default:
			header.Set("Content-Type", "application/octet-stream")
			header.Set("X-Item-Name", item.Name)
			part, err := writer.CreatePart(header)
			if err != nil {
				return nil, "", err
			}
			if _, err := part.Write(item.Content); err != nil {
				return nil, "", err
			}
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}
