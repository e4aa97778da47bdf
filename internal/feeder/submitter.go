package feeder

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const submitTimeout = 30 * time.Second

type (
	submitHeaderRequest struct {
		Header        string `json:"header"`
		Height        uint32 `json:"height"`
		PayoutAccount string `json:"payout_account,omitempty"`
	}

	tipResponse struct {
		BlockHash string `json:"block_hash"`
		Height    uint32 `json:"height"`
		ChainWork string `json:"chain_work"`
	}

	errorResponse struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
)

// RelaySubmitter submits headers to a relay daemon over its REST API.
type RelaySubmitter struct {
	client  *http.Client
	baseURL string
}

// NewRelaySubmitter constructs a RelaySubmitter talking to baseURL.
func NewRelaySubmitter(baseURL string) (*RelaySubmitter, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("relay url %q must be absolute", baseURL)
	}
	return &RelaySubmitter{
		client:  &http.Client{Timeout: submitTimeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// TipHeight returns the relay's current best height.
func (s *RelaySubmitter) TipHeight(ctx context.Context) (uint32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/relay/tip", nil)
	if err != nil {
		return 0, fmt.Errorf("build tip request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("get tip: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("get tip: %s", formatError(resp, parseError(resp)))
	}

	var tip tipResponse
	if err := json.NewDecoder(resp.Body).Decode(&tip); err != nil {
		return 0, fmt.Errorf("decode tip response: %w", err)
	}
	return tip.Height, nil
}

// Submit posts a raw header at the given height to the relay.
func (s *RelaySubmitter) Submit(ctx context.Context, rawHeader []byte, height uint32, payoutAccount string) error {
	body, err := json.Marshal(submitHeaderRequest{
		Header:        hex.EncodeToString(rawHeader),
		Height:        height,
		PayoutAccount: payoutAccount,
	})
	if err != nil {
		return fmt.Errorf("marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, s.baseURL+"/v1/relay/headers", bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit header %d: %w", height, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		return nil
	case http.StatusConflict:
		// Only a taken height means another submitter got there first;
		// other conflicts (a rejected fork) are real failures.
		if parsed := parseError(resp); parsed.Code != "duplicate_block" {
			return fmt.Errorf("submit header %d: %s", height, formatError(resp, parsed))
		}
		return nil
	default:
		return fmt.Errorf("submit header %d: %s", height, formatError(resp, parseError(resp)))
	}
}

func parseError(resp *http.Response) errorResponse {
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return errorResponse{}
	}
	var parsed errorResponse
	_ = json.Unmarshal(payload, &parsed)
	return parsed
}

func formatError(resp *http.Response, parsed errorResponse) string {
	if parsed.Error != "" {
		return fmt.Sprintf("%s: %s", resp.Status, parsed.Error)
	}
	return resp.Status
}
