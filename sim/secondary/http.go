package secondary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/radiosim/eventgen/sim"
)

// HTTPPropagator delegates propagation to a remote service speaking JSON.
type HTTPPropagator struct {
	baseURL    string
	config     string
	httpClient *http.Client
}

// NewHTTPPropagator creates a client for the service at baseURL. config is
// the propagator configuration profile forwarded with every request.
func NewHTTPPropagator(baseURL, config string) *HTTPPropagator {
	return &HTTPPropagator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		config:     config,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

type wireLepton struct {
	EventGroupID int64      `json:"event_group_id"`
	Energy       float64    `json:"energy"`
	Code         int        `json:"code"`
	Position     [3]float64 `json:"position"`
	Direction    [3]float64 `json:"direction"`
}

type wireProduct struct {
	Distance   float64 `json:"distance"`
	Energy     float64 `json:"energy"`
	ShowerType string  `json:"shower_type"`
	Code       int     `json:"code"`
}

type secondariesRequest struct {
	Config  string       `json:"config"`
	Leptons []wireLepton `json:"leptons"`
}

type secondariesResponse struct {
	Secondaries [][]wireProduct `json:"secondaries"`
}

// ComputeSecondaries implements Propagator via POST {base}/v1/secondaries.
func (c *HTTPPropagator) ComputeSecondaries(ctx context.Context, leptons []Lepton) ([][]Product, error) {
	req := secondariesRequest{Config: c.config, Leptons: make([]wireLepton, len(leptons))}
	for i, l := range leptons {
		req.Leptons[i] = wireLepton{
			EventGroupID: l.EventGroupID,
			Energy:       l.Energy,
			Code:         int(l.Code),
			Position:     [3]float64{l.Position.X, l.Position.Y, l.Position.Z},
			Direction:    [3]float64{l.Direction.X, l.Direction.Y, l.Direction.Z},
		}
	}
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/secondaries", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: request creation: %v", ErrPropagatorFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: HTTP error: %v", ErrPropagatorFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		bodyData, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrPropagatorFailed, resp.StatusCode, strings.TrimSpace(string(bodyData)))
	}

	var result secondariesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: JSON parse error: %v", ErrPropagatorFailed, err)
	}
	if len(result.Secondaries) != len(leptons) {
		return nil, fmt.Errorf("%w: got secondaries for %d leptons, sent %d",
			ErrPropagatorFailed, len(result.Secondaries), len(leptons))
	}

	out := make([][]Product, len(leptons))
	for i, list := range result.Secondaries {
		out[i] = make([]Product, len(list))
		for j, w := range list {
			class, err := sim.ParseShowerClass(w.ShowerType)
			if err != nil {
				return nil, fmt.Errorf("lepton of event group %d: %w", leptons[i].EventGroupID, err)
			}
			out[i][j] = Product{Distance: w.Distance, Energy: w.Energy, ShowerClass: class, Code: sim.Flavor(w.Code)}
		}
	}
	return out, nil
}
