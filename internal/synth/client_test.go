package synth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestModelForMode(t *testing.T) {
	tests := []struct {
		mode string
		want string
	}{
		{"englishfast", ModelTurboV2},
		{"eleven_turbo_v2", ModelTurboV2},
		{"multilingual", ModelMultilingualV2},
		{"eleven_multilingual_v2", ModelMultilingualV2},
		{"", ModelTurboV25},
		{"something", ModelTurboV25},
	}
	for _, tt := range tests {
		if got := ModelForMode(tt.mode); got != tt.want {
			t.Errorf("ModelForMode(%q) = %q, want %q", tt.mode, got, tt.want)
		}
	}
}

func TestStreamRequest(t *testing.T) {
	var got struct {
		path   string
		header http.Header
		body   requestBody
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.header = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&got.body)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = io.WriteString(w, "ID3mp3data")
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	body, err := c.Stream(context.Background(), Request{APIKey: "secret", VoiceID: "voice123", ModelID: ModelTurboV25, Text: "hello there"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	data, _ := io.ReadAll(body)
	_ = body.Close()

	if string(data) != "ID3mp3data" {
		t.Errorf("body = %q", data)
	}
	if got.path != "/v1/text-to-speech/voice123/stream" {
		t.Errorf("path = %q", got.path)
	}
	if got.header.Get("xi-api-key") != "secret" || got.header.Get("Accept") != "audio/mpeg" {
		t.Errorf("headers = %v", got.header)
	}
	if got.body.Text != "hello there" || got.body.ModelID != ModelTurboV25 {
		t.Errorf("request body = %+v", got.body)
	}
	if got.body.VoiceSettings.SimilarityBoost != 0.5 || got.body.VoiceSettings.Stability != 0.5 {
		t.Errorf("voice settings = %+v", got.body.VoiceSettings)
	}
}

func TestStreamDefaults(t *testing.T) {
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		_, _ = io.WriteString(w, "audio")
	}))
	defer srv.Close()

	body, err := NewClient(ClientConfig{BaseURL: srv.URL}).Stream(context.Background(), Request{APIKey: "k", Text: "x"})
	if err != nil {
		t.Fatal(err)
	}
	_ = body.Close()
	if p := path.Load().(string); !strings.Contains(p, FallbackVoiceID) {
		t.Errorf("path %q does not use the fallback voice", p)
	}
}

func TestStreamErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    Kind
		message string
	}{
		{"plain unauthorized", 401, `{"detail":{"status":"invalid_api_key","message":"Invalid API key"}}`, KindAuth, "Invalid API key"},
		{"unauthorized without body", 401, ``, KindAuth, ""},
		{"quota", 401, `{"detail":{"status":"quota_exceeded","message":"You have 3 credits left."}}`, KindQuota, "You have 3 credits left."},
		{"unusual activity", 401, `{"detail":{"status":"detected_unusual_activity","message":"Unusual activity detected."}}`, KindQuota, "Unusual activity detected."},
		{"rate limited", 429, `{"detail":"Too many concurrent requests"}`, KindQuota, "Too many concurrent requests"},
		{"server error", 500, `oops`, KindGeneric, ""},
		{"bad request", 400, `{"detail":{"status":"bad","message":"text too long"}}`, KindGeneric, "text too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(ClientConfig{BaseURL: srv.URL}).Stream(context.Background(), Request{APIKey: "k", Text: "x"})
			var se *Error
			if !errors.As(err, &se) {
				t.Fatalf("Stream() error = %v, want *Error", err)
			}
			if se.Kind != tt.kind || se.Message != tt.message || se.Status != tt.status {
				t.Errorf("error = %+v, want kind %v message %q", se, tt.kind, tt.message)
			}
		})
	}
}

func TestStreamEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := NewClient(ClientConfig{BaseURL: srv.URL}).Stream(context.Background(), Request{APIKey: "k", Text: "x"})
	if !IsKind(err, KindGeneric) {
		t.Errorf("Stream() error = %v, want generic", err)
	}
}

func TestStreamTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(ClientConfig{BaseURL: url}).Stream(context.Background(), Request{APIKey: "k", Text: "x"})
	if !IsKind(err, KindGeneric) {
		t.Errorf("Stream() error = %v, want generic", err)
	}
}

func TestStreamMissingKey(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { calls.Add(1) }))
	defer srv.Close()

	_, err := NewClient(ClientConfig{BaseURL: srv.URL}).Stream(context.Background(), Request{Text: "x"})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Stream() error = %v, want ErrMissingAPIKey", err)
	}
	if calls.Load() != 0 {
		t.Errorf("made %d requests without a key", calls.Load())
	}
}

func TestResolveVoice(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", FallbackVoiceID, false},
		{"Rachel", "21m00Tcm4TlvDq8ikWAM", false},
		{"rachel", "21m00Tcm4TlvDq8ikWAM", false},
		{"21m00Tcm4TlvDq8ikWAM", "21m00Tcm4TlvDq8ikWAM", false},
		{"abcdefghij0123456789", "abcdefghij0123456789", false},
		{"charlt", "XB0fDUnXU5powFXDhCwa", false},
		{"zzzzzz", "", true},
	}
	for _, tt := range tests {
		got, err := ResolveVoice(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ResolveVoice(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveVoice(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if VoiceName("21m00Tcm4TlvDq8ikWAM") != "Rachel" {
		t.Error("VoiceName() should return the preset name")
	}
}
