package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tradedesk/internal/logging"
	"tradedesk/internal/market"
	"tradedesk/internal/opportunity"
	"tradedesk/internal/validation"
)

// Validator runs the check battery against a remote validation endpoint. Any
// failure to reach or parse the backend yields the synthetic
// backend-unavailable result instead of silently falling back to local rules.
type Validator struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewValidator creates a remote validator. An empty endpoint disables it.
func NewValidator(endpoint, apiKey string, timeout time.Duration) *Validator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Validator{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a remote endpoint is configured.
func (v *Validator) Enabled() bool {
	return v.endpoint != ""
}

type validateRequest struct {
	Opportunity *opportunity.TradeOpportunity `json:"opportunity"`
	Levels      []market.FibLevel             `json:"levels"`
	Pivots      []float64                     `json:"pivots"`
}

// Validate posts the opportunity to the remote endpoint and returns its
// verdict, or the backend-unavailable result on any failure.
func (v *Validator) Validate(ctx context.Context, opp *opportunity.TradeOpportunity, levels []market.FibLevel, pivots []float64) validation.Result {
	log := logging.New("remote-validator")

	payload, err := json.Marshal(validateRequest{Opportunity: opp, Levels: levels, Pivots: pivots})
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode validation request")
		return validation.Unavailable()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(payload))
	if err != nil {
		log.Error().Err(err).Msg("Failed to build validation request")
		return validation.Unavailable()
	}
	req.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		req.Header.Set("X-API-Key", v.apiKey)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("Validation backend unreachable")
		return validation.Unavailable()
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read validation response")
		return validation.Unavailable()
	}
	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Msg("Validation backend returned error")
		return validation.Unavailable()
	}

	var result validation.Result
	if err := json.Unmarshal(body, &result); err != nil {
		log.Warn().Err(err).Msg("Malformed validation response")
		return validation.Unavailable()
	}
	if len(result.Checks) == 0 {
		log.Warn().Msg(fmt.Sprintf("Validation backend returned no checks for %s", opp.ID))
		return validation.Unavailable()
	}

	return result
}
