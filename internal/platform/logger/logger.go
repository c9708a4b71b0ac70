package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a sugared zap logger and scrubs learner data out of key/value pairs.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
	scrub         *scrubber
}

// New builds a logger for the given mode ("prod" or anything else for development).
// LOG_LEVEL picks the level, LOG_REDACTION_ENABLED=false disables scrubbing and
// LOG_HASH_SALT salts hashed identifiers.
func New(mode string) (*Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if m := strings.ToLower(strings.TrimSpace(mode)); m == "prod" || m == "production" {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(os.Getenv("LOG_LEVEL")))
	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: base.Sugar(), scrub: scrubberFromEnv()}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func parseLevel(raw string) zapcore.Level {
	var lvl zapcore.Level
	switch v := strings.ToLower(strings.TrimSpace(raw)); v {
	case "":
		return zapcore.DebugLevel
	case "warning":
		return zapcore.WarnLevel
	default:
		if err := lvl.UnmarshalText([]byte(v)); err != nil {
			return zapcore.DebugLevel
		}
		return lvl
	}
}

func (l *Logger) Sync() {
	if l == nil || l.SugaredLogger == nil {
		return
	}
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.SugaredLogger.Debugw(msg, l.scrub.pairs(kv)...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.SugaredLogger.Infow(msg, l.scrub.pairs(kv)...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.SugaredLogger.Warnw(msg, l.scrub.pairs(kv)...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.SugaredLogger.Errorw(msg, l.scrub.pairs(kv)...) }
func (l *Logger) Fatal(msg string, kv ...interface{}) { l.SugaredLogger.Fatalw(msg, l.scrub.pairs(kv)...) }

func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(l.scrub.pairs(kv)...), scrub: l.scrub}
}

const (
	redacted    = "[REDACTED]"
	maxTextLogs = 120
)

// scrubber rewrites log values by key. A nil scrubber passes values through.
type scrubber struct {
	salt string
}

func scrubberFromEnv() *scrubber {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
	case "0", "false", "no", "off":
		return nil
	}
	return &scrubber{salt: strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))}
}

func (s *scrubber) pairs(kv []interface{}) []interface{} {
	if s == nil || len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		out = append(out, key, s.value(strings.ToLower(strings.TrimSpace(key)), kv[i+1]))
	}
	if len(kv)%2 == 1 {
		out = append(out, kv[len(kv)-1])
	}
	return out
}

func (s *scrubber) value(key string, val interface{}) interface{} {
	switch keyClass(key) {
	case classSecret:
		return redacted
	case classIdentity:
		return s.hash(val)
	case classPayload:
		return payloadSize(val)
	case classText:
		if str, ok := val.(string); ok {
			return clip(str)
		}
	}
	switch v := val.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = s.value(strings.ToLower(strings.TrimSpace(k)), inner)
		}
		return out
	case string:
		if looksLikeJWT(v) {
			return redacted
		}
	}
	return val
}

type valueClass int

const (
	classPlain valueClass = iota
	classSecret
	classIdentity
	classPayload
	classText
)

var keyClasses = []struct {
	fragment string
	class    valueClass
}{
	{"password", classSecret},
	{"token", classSecret},
	{"secret", classSecret},
	{"authorization", classSecret},
	{"cookie", classSecret},
	{"api_key", classSecret},
	{"apikey", classSecret},
	{"credentials", classSecret},
	{"user_id", classIdentity},
	{"session_id", classIdentity},
	{"audio", classPayload},
	{"image", classPayload},
	{"transcript", classText},
	{"prompt", classText},
	{"text", classText},
}

func keyClass(key string) valueClass {
	if key == "" {
		return classPlain
	}
	for _, kc := range keyClasses {
		if strings.Contains(key, kc.fragment) {
			return kc.class
		}
	}
	return classPlain
}

func (s *scrubber) hash(val interface{}) string {
	raw := strings.TrimSpace(fmt.Sprint(val))
	if val == nil || raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s.salt + raw))
	return "hash:" + hex.EncodeToString(sum[:6])
}

func payloadSize(val interface{}) interface{} {
	switch v := val.(type) {
	case []byte:
		return fmt.Sprintf("[%d bytes]", len(v))
	case string:
		return fmt.Sprintf("[%d chars]", len(v))
	default:
		return val
	}
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxTextLogs {
		return s
	}
	return string(r[:maxTextLogs]) + "..."
}

func looksLikeJWT(s string) bool {
	parts := strings.Split(s, ".")
	return len(parts) == 3 && len(parts[0]) > 10 && len(parts[1]) > 10
}
