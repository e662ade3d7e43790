// Package webhook forwards restriction changes to an external enforcement
// agent over HTTP. Requests are retried with backoff on transport errors and
// 5xx responses.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"focusgate/internal/core"
)

const AuthorityName = "webhook"

// Actions sent to the agent
const (
	ActionApply  = "apply"
	ActionRemove = "remove"
)

// Config contains the agent endpoint configuration
type Config struct {
	URL          string // endpoint receiving restriction actions
	APIKey       string // sent as x-api-key
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// Request is the JSON body posted for every action
type Request struct {
	ActionID    string   `json:"actionId"`
	Action      string   `json:"action"`
	ProfileID   string   `json:"profileId"`
	ProfileName string   `json:"profileName"`
	Targets     []string `json:"targets"`
}

// Authority implements core.RestrictionAuthority against an HTTP agent
type Authority struct {
	config Config
	client *retryablehttp.Client
	logger *slog.Logger
}

// New creates a new webhook authority
func New(config Config, logger *slog.Logger) *Authority {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	client := retryablehttp.NewClient()
	client.RetryMax = config.RetryMax
	if config.RetryWaitMin > 0 {
		client.RetryWaitMin = config.RetryWaitMin
	}
	if config.RetryWaitMax > 0 {
		client.RetryWaitMax = config.RetryWaitMax
	}
	client.HTTPClient.Timeout = config.Timeout
	client.Logger = nil

	return &Authority{
		config: config,
		client: client,
		logger: logger.With("authority", AuthorityName),
	}
}

// Name returns the authority name
func (a *Authority) Name() string {
	return AuthorityName
}

// Apply asks the agent to restrict the profile's targets
func (a *Authority) Apply(ctx context.Context, profile *core.Profile) error {
	return a.send(ctx, ActionApply, profile)
}

// Remove asks the agent to lift the profile's restrictions
func (a *Authority) Remove(ctx context.Context, profile *core.Profile) error {
	return a.send(ctx, ActionRemove, profile)
}

func (a *Authority) send(ctx context.Context, action string, profile *core.Profile) error {
	body := Request{
		ActionID:    uuid.New().String(),
		Action:      action,
		ProfileID:   profile.ID,
		ProfileName: profile.Name,
		Targets:     append([]string{}, profile.Targets...),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, payload)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.config.APIKey != "" {
		req.Header.Set("x-api-key", a.config.APIKey)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s failed with status %d: %s", action, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	a.logger.Debug("Restriction action delivered",
		"action", action,
		"action_id", body.ActionID,
		"profile_id", profile.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

var _ core.RestrictionAuthority = (*Authority)(nil)
