package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rl1809/scan-sync/internal/adapter/rpc"
	"github.com/rl1809/scan-sync/internal/core/domain"
)

const syncPath = "/api/inventory/sync"

type HTTPDispatcher struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPDispatcher(baseURL, token string, client *http.Client) *HTTPDispatcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPDispatcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

func (d *HTTPDispatcher) Reconcile(ctx context.Context, req domain.ReconcileRequest) (*domain.ReconcileResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+syncPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.token)
	}
	if req.MutationID != "" {
		httpReq.Header.Set("Idempotency-Key", req.MutationID)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", syncPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var res domain.ReconcileResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode reconcile result: %w", err)
	}
	return &res, nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var env rpc.ErrorEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.Error.Code == "" {
		return &Error{
			Code:    rpc.CodeSyncFailed,
			Message: strings.TrimSpace(string(data)),
			Status:  resp.StatusCode,
		}
	}
	return &Error{Code: env.Error.Code, Message: env.Error.Message, Status: resp.StatusCode}
}
