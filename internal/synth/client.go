// Package synth streams speech from the ElevenLabs text-to-speech API.
package synth

import (
	"bufio"
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

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the ElevenLabs API endpoint.
const DefaultBaseURL = "https://api.elevenlabs.io"

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 * 1024

// Request describes one synthesis call.
type Request struct {
	APIKey  string
	VoiceID string
	ModelID string
	Text    string
}

// Streamer produces an audio stream for a request.
type Streamer interface {
	Stream(ctx context.Context, req Request) (io.ReadCloser, error)
}

// VoiceSettings are sent with every request.
type VoiceSettings struct {
	SimilarityBoost float64 `json:"similarity_boost"`
	Stability       float64 `json:"stability"`
}

type requestBody struct {
	ModelID       string        `json:"model_id"`
	Text          string        `json:"text"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	// HTTPClient defaults to a client without a timeout, since streams last
	// as long as the speech.
	HTTPClient *http.Client
	// VoiceSettings default to 0.5 similarity and 0.5 stability.
	VoiceSettings *VoiceSettings
	// RequestsPerMinute limits request starts. Zero means 60.
	RequestsPerMinute int
}

// Client talks to the streaming endpoint.
type Client struct {
	base     string
	http     *http.Client
	settings VoiceSettings
	limiter  *rate.Limiter
}

// NewClient creates a client.
func NewClient(config ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	settings := VoiceSettings{SimilarityBoost: 0.5, Stability: 0.5}
	if config.VoiceSettings != nil {
		settings = *config.VoiceSettings
	}
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 60
	}

	return &Client{
		base:     strings.TrimRight(config.BaseURL, "/"),
		http:     config.HTTPClient,
		settings: settings,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 3),
	}
}

// Stream requests speech for req.Text. On success the caller owns the
// returned body, which yields MP3 data as it arrives. Failures are *Error
// values, except ErrMissingAPIKey and context cancellation.
func (c *Client) Stream(ctx context.Context, req Request) (io.ReadCloser, error) {
	if req.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if req.VoiceID == "" {
		req.VoiceID = FallbackVoiceID
	}
	if req.ModelID == "" {
		req.ModelID = ModelForMode("")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting to send request: %w", err)
	}

	payload, err := json.Marshal(requestBody{
		ModelID:       req.ModelID,
		Text:          req.Text,
		VoiceSettings: c.settings,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to encode request: %w", err)
	}

	endpoint := c.base + "/v1/text-to-speech/" + url.PathEscape(req.VoiceID) + "/stream"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: KindGeneric, Err: err}
	}
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", req.APIKey)

	start := time.Now()
	resp, err := c.http.Do(httpReq) //nolint:bodyclose
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Kind: KindGeneric, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close() //nolint:errcheck
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		e := classify(resp.StatusCode, body)
		log.Debug("Synthesis request rejected", "status", resp.StatusCode, "kind", e.Kind, "voice", req.VoiceID)
		return nil, e
	}

	br := bufio.NewReader(resp.Body)
	if _, err := br.Peek(1); err != nil {
		_ = resp.Body.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, io.EOF) {
			err = errors.New("empty response body")
		}
		return nil, &Error{Kind: KindGeneric, Status: resp.StatusCode, Err: err}
	}

	log.Debug("Synthesis stream started", "voice", req.VoiceID, "model", req.ModelID, "chars", len(req.Text), "latency", time.Since(start))
	return &body{Reader: br, Closer: resp.Body}, nil
}

type body struct {
	io.Reader
	io.Closer
}
