// Package solver implements the HTTP client for the external routing/solver
// service.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/citydrop/dispatch/auth"
	"github.com/citydrop/dispatch/core/errs"
	corelogger "github.com/citydrop/dispatch/core/logger"
	"github.com/citydrop/dispatch/core/model"
	coresolver "github.com/citydrop/dispatch/core/solver"
	"github.com/citydrop/dispatch/infra/logger"
)

// Config defines the solver endpoint parameters.
type Config struct {
	BaseURL        string    `json:"base_url"`
	TimeoutSeconds int       `json:"timeout_seconds"`
	PollIntervalMS int       `json:"poll_interval_ms"`
	PollAttempts   int       `json:"poll_attempts"`
	Auth           auth.Conf `json:"auth"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
	if c.PollIntervalMS <= 0 {
		c.PollIntervalMS = 2000
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = 15
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("solver base_url is required")
	}
	return nil
}

// HTTPClient talks to the solver over HTTP.
type HTTPClient struct {
	base   string
	client *http.Client
	cred   *auth.ClientCred
	log    corelogger.Logger
}

var _ coresolver.Client = (*HTTPClient)(nil)

// NewHTTPClient creates a solver client from the configuration.
func NewHTTPClient(cfg Config) *HTTPClient {
	cfg.SetDefaults()
	c := &HTTPClient{
		base:   cfg.BaseURL,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		log:    logger.New("solver-client"),
	}
	if cfg.Auth.Enabled() {
		c.cred = auth.NewClientCred(cfg.Auth)
	}
	return c
}

func (c *HTTPClient) authorize(req *http.Request) error {
	if c.cred == nil {
		return nil
	}
	if err := c.cred.SetAuthHeader(req); err != nil {
		return fmt.Errorf("%w: auth: %v", errs.ErrUpstream, err)
	}
	return nil
}

type solveRequest struct {
	BatchID  string         `json:"batch_id"`
	Orders   []orderPayload `json:"orders"`
	Clusters []clusterInfo  `json:"clusters"`
}

type orderPayload struct {
	OrderID string         `json:"order_id"`
	Pickup  model.GeoPoint `json:"pickup"`
	Dropoff model.GeoPoint `json:"dropoff"`
}

type clusterInfo struct {
	Centroid model.GeoPoint `json:"centroid"`
	OrderIDs []string       `json:"order_ids"`
}

type solveResponse struct {
	ProblemID string `json:"problem_id"`
}

type statusResponse struct {
	State    string `json:"state"`
	Assigned []struct {
		DriverID       string           `json:"driver_id"`
		DriverIdentity string           `json:"driver_identity"`
		OrderIDs       []string         `json:"order_ids"`
		Route          []model.GeoPoint `json:"route"`
	} `json:"assigned"`
	Unassigned []string `json:"unassigned"`
}

// Submit POSTs the batch to the solver and returns the problem id. Network
// failures and 5xx responses surface as errs.ErrUpstream so the invoking
// trigger retries the whole cycle.
func (c *HTTPClient) Submit(ctx context.Context, p coresolver.Problem) (string, error) {
	req := solveRequest{BatchID: p.BatchID}
	for _, o := range p.Orders {
		req.Orders = append(req.Orders, orderPayload{OrderID: o.ID, Pickup: o.Pickup, Dropoff: o.Dropoff})
	}
	for _, cl := range p.Clusters {
		req.Clusters = append(req.Clusters, clusterInfo{Centroid: cl.Centroid, OrderIDs: cl.OrderIDs})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/dispatch/solve", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if err := c.authorize(httpReq); err != nil {
		return "", err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: submit: %v", errs.ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: solver returned %d", errs.ErrUpstream, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("solver rejected batch %s: status %d", p.BatchID, resp.StatusCode)
	}
	var sr solveResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("decode solve response: %w", err)
	}
	if sr.ProblemID == "" {
		return "", fmt.Errorf("solver returned empty problem id")
	}
	c.log.Infof("submitted batch %s as problem %s (%d orders)", p.BatchID, sr.ProblemID, len(p.Orders))
	return sr.ProblemID, nil
}

// Status GETs the solver state for a problem. NOT_SOLVING and NO_DRIVERS are
// final; any other state means the solver is still running.
func (c *HTTPClient) Status(ctx context.Context, problemID string) (coresolver.Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/dispatch/status/"+problemID, nil)
	if err != nil {
		return coresolver.Result{}, err
	}
	if err := c.authorize(httpReq); err != nil {
		return coresolver.Result{}, err
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return coresolver.Result{}, fmt.Errorf("%w: status: %v", errs.ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 500 {
		return coresolver.Result{}, fmt.Errorf("%w: solver returned %d", errs.ErrUpstream, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return coresolver.Result{}, fmt.Errorf("status for %s: unexpected code %d", problemID, resp.StatusCode)
	}
	var sr statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return coresolver.Result{}, fmt.Errorf("decode status response: %w", err)
	}
	res := coresolver.Result{Unassigned: sr.Unassigned}
	switch sr.State {
	case string(coresolver.StateNotSolving):
		res.State = coresolver.StateNotSolving
	case string(coresolver.StateNoDrivers):
		res.State = coresolver.StateNoDrivers
	default:
		res.State = coresolver.StateSolving
		return res, nil
	}
	for _, a := range sr.Assigned {
		res.Assigned = append(res.Assigned, coresolver.Assignment{
			DriverID:       a.DriverID,
			DriverIdentity: a.DriverIdentity,
			OrderIDs:       a.OrderIDs,
			Route:          a.Route,
		})
	}
	return res, nil
}
