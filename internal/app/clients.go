package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/ielts-tutor-backend/internal/modules/replication"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/aiengine"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/cache"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/gcp"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/tts"
	"github.com/yungbote/ielts-tutor-backend/internal/realtime/bus"
)

type Clients struct {
	Cache        cache.Cache
	Bus          *bus.RedisBus
	Invoker      *aiengine.Invoker
	TTS          tts.Client
	Speech       gcp.Speech
	SnapshotSink replication.Sink

	closeSink func() error
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, r Repos) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	// Redis
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		rc, err := cache.NewRedis(cfg.RedisAddr, log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis cache: %w", err)
		}
		c.Cache = rc
		b, err := bus.NewRedisBus(log, bus.Config{Addr: cfg.RedisAddr, Channel: cfg.RedisChannel})
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init redis SSE bus: %w", err)
		}
		c.Bus = b
	} else {
		log.Info("REDIS_ADDR unset; vocabulary cache disabled and SSE stays local")
		c.Cache = cache.NewNop()
	}

	// AI engine
	engine, err := aiengine.New(cfg.AIEngine, cfg.AIBaseURL, cfg.AITimeout)
	if err != nil {
		c.Close()
		return Clients{}, fmt.Errorf("init ai engine: %w", err)
	}
	pool := aiengine.NewCredentialPool(cfg.AIAPIKeys)
	switch {
	case pool.Len() > 0:
	case engine.Name() == aiengine.EngineMock:
		pool = aiengine.NewCredentialPool([]string{"mock"})
	default:
		log.Warn("No AI API keys configured; gateway calls will fail", "engine", engine.Name())
	}
	c.Invoker = aiengine.NewInvoker(engine, pool, log)

	// ElevenLabs
	c.TTS = tts.New(log, cfg.ElevenLabsAPIKey, cfg.ElevenLabsBaseURL, 0)

	// Gcp
	if cfg.SpeechEnabled() {
		speech, err := gcp.NewSpeech(ctx, log, cfg.GCPCredentials)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init speech client: %w", err)
		}
		c.Speech = speech
	}
	sink, closeSink, err := resolveSnapshotSink(ctx, log, cfg, r.Snapshots)
	if err != nil {
		c.Close()
		return Clients{}, err
	}
	c.SnapshotSink = sink
	c.closeSink = closeSink

	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.closeSink != nil {
		_ = c.closeSink()
	}
	if c.Speech != nil {
		_ = c.Speech.Close()
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
}
