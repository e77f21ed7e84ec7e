package regclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned by reads when the period or registration does not exist.
var ErrNotFound = errors.New("regclient: not found")

// Client talks to the public registration API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New builds a client for baseURL, e.g. "https://api.example.com/api/v1".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) periodURL(periodID string, parts ...string) string {
	u := c.baseURL + "/public/periods/" + url.PathEscape(periodID)
	for _, p := range parts {
		u += "/" + p
	}
	return u
}

// Period fetches the period and its phase.
func (c *Client) Period(ctx context.Context, periodID string) (*Period, error) {
	var period Period
	if err := c.get(ctx, c.periodURL(periodID), &period); err != nil {
		return nil, err
	}
	return &period, nil
}

// Slots fetches the slot grid.
func (c *Client) Slots(ctx context.Context, periodID string) (*Grid, error) {
	var grid Grid
	if err := c.get(ctx, c.periodURL(periodID, "slots"), &grid); err != nil {
		return nil, err
	}
	return &grid, nil
}

// Lookup finds the active registration for phone. The returned phone is masked.
func (c *Client) Lookup(ctx context.Context, periodID, phone string) (*Registration, error) {
	var reg Registration
	target := c.periodURL(periodID, "registrations", "lookup") + "?phone=" + url.QueryEscape(phone)
	if err := c.get(ctx, target, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Submit calls the atomic registration procedure.
func (c *Client) Submit(ctx context.Context, periodID string, g Guardian, slotIDs []string) Result {
	return c.procedure(ctx, http.MethodPost, periodID, g, slotIDs)
}

// Update replaces the slots of the guardian's existing registration.
func (c *Client) Update(ctx context.Context, periodID string, g Guardian, slotIDs []string) Result {
	return c.procedure(ctx, http.MethodPut, periodID, g, slotIDs)
}

func (c *Client) procedure(ctx context.Context, method, periodID string, g Guardian, slotIDs []string) Result {
	body, err := json.Marshal(registrationPayload{
		StudentName:     g.StudentName,
		SchoolName:      g.SchoolName,
		Grade:           g.Grade,
		GuardianPhone:   g.Phone,
		SelectedSlotIDs: slotIDs,
	})
	if err != nil {
		return Result{Kind: KindValidation, Message: err.Error(), Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.periodURL(periodID, "registrations"), bytes.NewReader(body))
	if err != nil {
		return transport(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return transport(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return transport(err)
	}

	if resp.StatusCode == http.StatusOK {
		var payload procedurePayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return transport(fmt.Errorf("decode procedure result: %w", err))
		}
		if payload.Success {
			return Result{Kind: KindOK, Registration: payload.Registration}
		}
		return Result{
			Kind:         kindFromCode(payload.Error),
			Registration: payload.Registration,
			FullSlots:    payload.FullSlots,
			Message:      payload.Message,
		}
	}

	apiErr := decodeError(raw)
	if resp.StatusCode >= 500 || apiErr == nil {
		return transport(fmt.Errorf("%s %s: status %d", method, req.URL.Path, resp.StatusCode))
	}
	c.logger.Debug("procedure rejected", zap.Int("status", resp.StatusCode), zap.String("code", apiErr.Code))
	return Result{Kind: kindFromCode(apiErr.Code), Message: apiErr.Message}
}

func (c *Client) get(ctx context.Context, target string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		if apiErr := decodeError(raw); apiErr != nil {
			return fmt.Errorf("regclient: %s: %s", apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("regclient: GET %s: status %d", req.URL.Path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("regclient: decode envelope: %w", err)
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("regclient: decode data: %w", err)
	}
	return nil
}

func decodeError(raw []byte) *apiError {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Error == nil {
		return nil
	}
	return env.Error
}
