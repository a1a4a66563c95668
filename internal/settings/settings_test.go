package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dgnsrekt/readaloud/internal/synth"
)

func TestLoadDefaults(t *testing.T) {
	s := Load(NewMemoryStore(nil))
	if s.HasAPIKey() {
		t.Error("empty store should have no key")
	}
	if s.VoiceID != synth.FallbackVoiceID {
		t.Errorf("VoiceID = %q, want fallback", s.VoiceID)
	}
	if s.Speed != 1 {
		t.Errorf("Speed = %v, want 1", s.Speed)
	}
	if s.Model() != synth.ModelTurboV25 {
		t.Errorf("Model() = %q, want %q", s.Model(), synth.ModelTurboV25)
	}
}

func TestLoad(t *testing.T) {
	s := Load(NewMemoryStore(map[string]string{
		KeyAPIKey: " key ",
		KeyVoice:  "voice",
		KeyMode:   "multilingual",
		KeySpeed:  "1.5",
	}))
	if s.APIKey != "key" || s.VoiceID != "voice" || s.Speed != 1.5 || s.Model() != synth.ModelMultilingualV2 {
		t.Errorf("Load() = %+v", s)
	}
}

func TestParseSpeed(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1", 1},
		{"0.75", 0.75},
		{"2", 2},
		{"0", 1},
		{"-1", 1},
		{"fast", 1},
		{"", 1},
		{"100", 1},
	}
	for _, tt := range tests {
		if got := ParseSpeed(tt.in); got != tt.want {
			t.Errorf("ParseSpeed(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yml")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	s.lookup = func(string) (string, bool) { return "", false }

	if err := s.Set(KeyAPIKey, "abc"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(KeySpeed, "1.25"); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("settings file mode = %v, want 0600", info.Mode().Perm())
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := reopened.Get(KeyAPIKey); !ok || v != "abc" {
		t.Errorf("Get(apiKey) = %q, %v", v, ok)
	}

	if err := reopened.Delete(KeyAPIKey); err != nil {
		t.Fatal(err)
	}
	if _, ok := reopened.Get(KeyAPIKey); ok {
		t.Error("deleted key still present")
	}
	if v, _ := reopened.Get(KeySpeed); v != "1.25" {
		t.Errorf("Delete removed other settings, speed = %q", v)
	}

	if err := reopened.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, ok := reopened.Get(KeySpeed); ok {
		t.Error("Clear() left settings behind")
	}
}

func TestFileStoreEnvKey(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "settings.yml"))
	if err != nil {
		t.Fatal(err)
	}
	env := map[string]string{"ELEVENLABS_API_KEY": "from-env"}
	s.lookup = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	if v, ok := s.Get(KeyAPIKey); !ok || v != "from-env" {
		t.Errorf("Get(apiKey) = %q, %v; want env value", v, ok)
	}

	// A rejected credential must not come back from the environment.
	if err := s.Delete(KeyAPIKey); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get(KeyAPIKey); ok {
		t.Error("env key should be ignored after Delete")
	}

	if err := s.Set(KeyAPIKey, "typed"); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Get(KeyAPIKey); v != "typed" {
		t.Errorf("Get(apiKey) = %q, want typed", v)
	}
}

func TestFileStoreBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yml")
	if err := os.WriteFile(path, []byte("apiKey: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path); err == nil {
		t.Error("expected an error for malformed settings")
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("READALOUD_TEST_VALUE=hello\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("READALOUD_TEST_VALUE", "")
	os.Unsetenv("READALOUD_TEST_VALUE") //nolint:errcheck

	LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env"))
	if got := os.Getenv("READALOUD_TEST_VALUE"); got != "hello" {
		t.Errorf("READALOUD_TEST_VALUE = %q, want hello", got)
	}
}
