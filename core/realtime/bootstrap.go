package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BootstrapClient asks the backend for the instructions and voice that belong
// to a profile.
type BootstrapClient struct {
	httpClient
}

func NewBootstrapClient(baseURL string, opts ...ClientOption) *BootstrapClient {
	return &BootstrapClient{httpClient: newHTTPClient(baseURL, opts...)}
}

type SessionInit struct {
	SessionID          string `json:"session_id"`
	SystemInstructions string `json:"system_instructions"`
	VoicePreset        string `json:"voice_preset"`
}

type sessionInitRequest struct {
	ProfileID string   `json:"profile_id"`
	Goals     []string `json:"goals"`
}

func (c *BootstrapClient) InitSession(ctx context.Context, profileID string, goals []string) (*SessionInit, error) {
	ctx, span := tracer.Start(ctx, "init session")
	defer span.End()
	span.SetAttributes(attribute.String("profile.id", profileID))

	if goals == nil {
		goals = []string{}
	}
	payload, err := json.Marshal(sessionInitRequest{ProfileID: profileID, Goals: goals})
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/session/init", bytes.NewReader(payload))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	switch {
	case resp.StatusCode == http.StatusNotFound:
		err := fmt.Errorf("%w: %s", ErrProfileNotFound, profileID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile not found")
		return nil, err
	case resp.StatusCode != http.StatusOK:
		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, "session init rejected")
		return nil, err
	}

	var session SessionInit
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		err = fmt.Errorf("error decoding response: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid session init response")
		return nil, err
	}
	return &session, nil
}
