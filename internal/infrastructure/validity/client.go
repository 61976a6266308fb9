package validity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/document-validity-gateway/internal/core/domain"
	"github.com/kirillkom/document-validity-gateway/internal/infrastructure/resilience"
)

const checkValidityPath = "/api/v1/check_validity"

// itemIDField is injected into every serialized record so the service's
// echoed subsets can be resolved back to submitted identifiers.
const itemIDField = "item_id"

// Client submits classified records with a date range and parses the
// per-type valid subsets the service returns.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

func (c *Client) CheckValidity(
	ctx context.Context,
	rng domain.ValidityRange,
	records map[domain.DocType]map[string]domain.ExtractionRecord,
) (*domain.ValidityResponse, error) {
	payload, err := json.Marshal(buildRequest(rng, records))
	if err != nil {
		return nil, fmt.Errorf("marshal check_validity request: %w", err)
	}

	var out *domain.ValidityResponse
	call := func(ctx context.Context) error {
		response, err := c.dispatch(ctx, payload)
		if err != nil {
			return err
		}
		out = response
		return nil
	}

	if c.executor != nil {
		err = c.executor.Do(ctx, "validity.check_validity", call, classifyError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapTemporary("check validity", err)
	}
	return out, nil
}

type checkRequest struct {
	StartDate string                                  `json:"start_date"`
	EndDate   string                                  `json:"end_date"`
	Docs      map[string]map[string]map[string]string `json:"docs"`
}

func buildRequest(rng domain.ValidityRange, records map[domain.DocType]map[string]domain.ExtractionRecord) checkRequest {
	docs := make(map[string]map[string]map[string]string, len(records))
	for docType, bucket := range records {
		if len(bucket) == 0 {
			continue
		}
		wireBucket := make(map[string]map[string]string, len(bucket))
		for id, record := range bucket {
			fields := make(map[string]string, len(record.Fields)+1)
			for key, value := range record.Fields {
				fields[key] = value
			}
			fields[itemIDField] = id
			wireBucket[id] = fields
		}
		docs[docType.Bucket()] = wireBucket
	}
	return checkRequest{
		StartDate: rng.StartDate,
		EndDate:   rng.EndDate,
		Docs:      docs,
	}
}

func (c *Client) dispatch(ctx context.Context, payload []byte) (*domain.ValidityResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+checkValidityPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create check_validity request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("validity check_validity request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError("check_validity", resp)
	}
	return decodeResponse(resp.Body)
}

func decodeResponse(body io.Reader) (*domain.ValidityResponse, error) {
	var decoded map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&decoded); err != nil {
		return nil, domain.WrapError(domain.ErrMalformedResponse, "decode check_validity response", err)
	}

	response := &domain.ValidityResponse{ValidIDs: make(map[domain.DocType][]string)}
	sawValidKey := false
	for _, docType := range domain.KnownDocTypes() {
		raw, ok := decoded[docType.ValidKey()]
		if !ok {
			// Absent type keys mean zero valid for that type.
			continue
		}
		sawValidKey = true

		var entries []map[string]any
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, domain.WrapError(domain.ErrMalformedResponse, "decode "+docType.ValidKey(), err)
		}
		for _, entry := range entries {
			id, _ := entry[itemIDField].(string)
			if id == "" {
				continue
			}
			response.ValidIDs[docType] = append(response.ValidIDs[docType], id)
		}
	}
	if !sawValidKey {
		return nil, domain.WrapError(
			domain.ErrMalformedResponse,
			"decode check_validity response",
			fmt.Errorf("no valid_* keys present"),
		)
	}

	if raw, ok := decoded["total_valid"]; ok {
		if err := json.Unmarshal(raw, &response.ReportedTotal); err != nil {
			return nil, domain.WrapError(domain.ErrMalformedResponse, "decode total_valid", err)
		}
	}
	return response, nil
}
