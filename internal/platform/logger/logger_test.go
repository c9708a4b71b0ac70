package logger

import (
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestScrubberRedactsSecrets(t *testing.T) {
	s := &scrubber{}
	cases := []struct {
		key  string
		val  interface{}
		want interface{}
	}{
		{"password", "hunter2", redacted},
		{"api_key", "AIza-123", redacted},
		{"access_token", "abc", redacted},
		{"word", "ubiquitous", "ubiquitous"},
		{"credential_index", 2, 2},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			if got := s.value(tc.key, tc.val); got != tc.want {
				t.Fatalf("value(%q): got=%v want=%v", tc.key, got, tc.want)
			}
		})
	}
}

func TestScrubberHashesIdentifiers(t *testing.T) {
	s := &scrubber{salt: "pepper"}
	got, ok := s.value("user_id", "linh").(string)
	if !ok {
		t.Fatalf("expected string hash")
	}
	if got == "linh" || len(got) != len("hash:")+12 {
		t.Fatalf("unexpected hash: %q", got)
	}
	if again := s.value("user_id", "linh"); again != got {
		t.Fatalf("hash not stable: %v vs %v", again, got)
	}
	if other := (&scrubber{}).value("user_id", "linh"); other == got {
		t.Fatalf("salt ignored")
	}
}

func TestScrubberSummarizesPayloadsAndClipsText(t *testing.T) {
	s := &scrubber{}
	if got := s.value("audio", []byte("abcd")); got != "[4 bytes]" {
		t.Fatalf("audio: got=%v", got)
	}
	long := strings.Repeat("a", maxTextLogs+30)
	got, _ := s.value("transcript", long).(string)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != maxTextLogs+3 {
		t.Fatalf("transcript not clipped: %d", len(got))
	}
	nested, _ := s.value("payload", map[string]interface{}{"password": "x", "word": "y"}).(map[string]interface{})
	if nested["password"] != redacted || nested["word"] != "y" {
		t.Fatalf("nested map not scrubbed: %v", nested)
	}
}

func TestPairsKeepsOddTrailingValue(t *testing.T) {
	s := &scrubber{}
	out := s.pairs([]interface{}{"password", "x", "dangling"})
	if len(out) != 3 || out[1] != redacted || out[2] != "dangling" {
		t.Fatalf("unexpected pairs: %v", out)
	}
	var nilScrub *scrubber
	in := []interface{}{"password", "x"}
	if got := nilScrub.pairs(in); got[1] != "x" {
		t.Fatalf("disabled scrubber should pass through")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":        zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"WARNING": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.DebugLevel,
	}
	for raw, want := range cases {
		if got := parseLevel(raw); got != want {
			t.Fatalf("parseLevel(%q): got=%v want=%v", raw, got, want)
		}
	}
}

func TestNopLoggerIsUsable(t *testing.T) {
	log := NewNop()
	log.With("service", "test").Info("hello", "k", "v")
	log.Sync()
}
