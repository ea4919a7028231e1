package oee

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const DefaultFunction = "calculate_oee_snapshot"

// RPCCalculator invokes the snapshot function through the REST endpoint of the hosted database
// (POST <base>/rest/v1/rpc/<function>).
type RPCCalculator struct {
	client   *resty.Client
	function string
}

// NewRPCCalculator creates a calculator calling function at baseURL, authenticated with apiKey
func NewRPCCalculator(baseURL string, apiKey string, function string, timeout time.Duration) *RPCCalculator {
	if function == "" {
		function = DefaultFunction
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetHeader("content-type", "application/json").
		SetTimeout(timeout)
	if apiKey != "" {
		client.SetHeader("apikey", apiKey).SetAuthToken(apiKey)
	}
	return &RPCCalculator{client: client, function: function}
}

type rpcRequest struct {
	LotID string `json:"p_lot_id"`
}

// rpcError is the error body returned by the REST endpoint
type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// CalculateSnapshot computes and persists the OEE snapshot of lotID and returns its id
func (r *RPCCalculator) CalculateSnapshot(ctx context.Context, lotID string) (string, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(rpcRequest{LotID: lotID}).
		Post("/rest/v1/rpc/" + r.function)
	if err != nil {
		return "", fmt.Errorf("%s: %w", r.function, err)
	}
	if resp.IsError() {
		var body rpcError
		if json.Unmarshal(resp.Body(), &body) == nil && body.Message != "" {
			return "", fmt.Errorf("%s: %s (%s)", r.function, body.Message, body.Code)
		}
		return "", fmt.Errorf("%s: %s", r.function, resp.Status())
	}
	id, err := parseSnapshotID(resp.Body())
	if err != nil {
		return "", fmt.Errorf("%s: %w", r.function, err)
	}
	zap.S().Debugf("Snapshot %s calculated for lot %s", id, lotID)
	return id, nil
}

// parseSnapshotID accepts a bare JSON string or an object with snapshot_id or id
func parseSnapshotID(body []byte) (string, error) {
	var id string
	if err := json.Unmarshal(body, &id); err == nil && id != "" {
		return id, nil
	}
	var obj struct {
		SnapshotID string `json:"snapshot_id"`
		ID         string `json:"id"`
	}
	if err := json.Unmarshal(body, &obj); err == nil {
		if obj.SnapshotID != "" {
			return obj.SnapshotID, nil
		}
		if obj.ID != "" {
			return obj.ID, nil
		}
	}
	return "", fmt.Errorf("unexpected response %q", string(body))
}
