package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"feed-engine/internal/domain"
	"feed-engine/internal/infra/metrics"
)

// HTTPClient обращается к удалённому сервису классификации эмоций.
type HTTPClient struct {
	http    *http.Client
	baseURL string
}

var _ domain.Classifier = (*HTTPClient)(nil)

// NewHTTPClient создаёт клиента. Таймаут отдельной попытки задаёт вызывающий через контекст,
// timeout клиента лишь страхует от зависших соединений.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		http:    &http.Client{Timeout: timeout + 5*time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type classifyRequest struct {
	PostID      int64  `json:"post_id"`
	ImageRef    string `json:"image_ref,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
}

type apiErrorResponse struct {
	Error string `json:"error"`
}

// Classify вызывает POST /classify. Ответы 4xx, кроме 408 и 429, повторять бессмысленно:
// они возвращаются как backoff.Permanent.
func (c *HTTPClient) Classify(ctx context.Context, req domain.ClassifyRequest) (domain.ClassifyResult, error) {
	payload := classifyRequest{PostID: int64(req.PostID), ImageRef: req.ImageRef}
	if len(req.Image) > 0 {
		payload.ImageBase64 = base64.StdEncoding.EncodeToString(req.Image)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.ClassifyResult{}, backoff.Permanent(fmt.Errorf("classifier: marshal request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return domain.ClassifyResult{}, backoff.Permanent(fmt.Errorf("classifier: build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.ObserveNetworkRequest("classifier", "classify", c.baseURL, start, err)
		return domain.ClassifyResult{}, fmt.Errorf("classifier: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.ObserveNetworkRequest("classifier", "classify", c.baseURL, start, err)
		return domain.ClassifyResult{}, fmt.Errorf("classifier: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr apiErrorResponse
		if jsonErr := json.Unmarshal(respBody, &apiErr); jsonErr == nil && apiErr.Error != "" {
			err = fmt.Errorf("classifier: status %d: %s", resp.StatusCode, apiErr.Error)
		} else {
			err = fmt.Errorf("classifier: unexpected status %d", resp.StatusCode)
		}
		metrics.ObserveNetworkRequest("classifier", "classify", c.baseURL, start, err)
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
			return domain.ClassifyResult{}, backoff.Permanent(err)
		}
		return domain.ClassifyResult{}, err
	}
	var result domain.ClassifyResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		metrics.ObserveNetworkRequest("classifier", "classify", c.baseURL, start, err)
		return domain.ClassifyResult{}, fmt.Errorf("classifier: decode response: %w", err)
	}
	metrics.ObserveNetworkRequest("classifier", "classify", c.baseURL, start, nil)
	return result, nil
}
