package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/ielts-tutor-backend/internal/data/repos"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/replication"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/gcp"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

const (
	SnapshotSinkDB   = "db"
	SnapshotSinkGCS  = "gcs"
	SnapshotSinkNone = "none"
)

var newBucketStore = gcp.NewBucketStore

type SnapshotSinkBootstrapErrorCode string

const (
	SnapshotSinkBootstrapErrorUnknownSink         SnapshotSinkBootstrapErrorCode = "unknown_sink"
	SnapshotSinkBootstrapErrorInvalidMode         SnapshotSinkBootstrapErrorCode = "invalid_mode"
	SnapshotSinkBootstrapErrorMissingBucket       SnapshotSinkBootstrapErrorCode = "missing_bucket"
	SnapshotSinkBootstrapErrorMissingEmulatorHost SnapshotSinkBootstrapErrorCode = "missing_emulator_host"
	SnapshotSinkBootstrapErrorInvalidEmulatorHost SnapshotSinkBootstrapErrorCode = "invalid_emulator_host"
	SnapshotSinkBootstrapErrorConnectFailed       SnapshotSinkBootstrapErrorCode = "connect_failed"
)

type SnapshotSinkBootstrapError struct {
	Code  SnapshotSinkBootstrapErrorCode
	Sink  string
	Mode  string
	Cause error
}

func (e *SnapshotSinkBootstrapError) Error() string {
	if e == nil {
		return "snapshot sink bootstrap failed"
	}
	return fmt.Sprintf("snapshot sink bootstrap failed (code=%s sink=%q mode=%q): %v", e.Code, e.Sink, e.Mode, e.Cause)
}

func (e *SnapshotSinkBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveSnapshotSink picks where replicated user snapshots land. The returned closer
// releases the object store client, if any.
func resolveSnapshotSink(ctx context.Context, log *logger.Logger, cfg Config, snapshots repos.UserSnapshotRepo) (replication.Sink, func() error, error) {
	noop := func() error { return nil }
	kind := strings.ToLower(strings.TrimSpace(cfg.SnapshotSink))
	switch kind {
	case "", SnapshotSinkDB:
		log.Info("Selecting snapshot sink", "sink", SnapshotSinkDB)
		return replication.DBSink{Repo: snapshots}, noop, nil
	case SnapshotSinkNone:
		log.Info("Snapshot replication disabled")
		return replication.NopSink{}, noop, nil
	case SnapshotSinkGCS:
	default:
		err := &SnapshotSinkBootstrapError{
			Code:  SnapshotSinkBootstrapErrorUnknownSink,
			Sink:  cfg.SnapshotSink,
			Cause: fmt.Errorf("unsupported SNAPSHOT_SINK %q (allowed: db, gcs, none)", cfg.SnapshotSink),
		}
		log.Error("Snapshot sink selection failed", "sink", cfg.SnapshotSink, "error", err)
		return nil, nil, err
	}

	storageCfg, err := gcp.ResolveStorageConfig(cfg.ObjectStorageMode, cfg.StorageEmulator, cfg.SnapshotBucket, cfg.SnapshotPrefix)
	if err != nil {
		classified := classifySnapshotSinkBootstrapError(kind, cfg.ObjectStorageMode, err)
		log.Error("Snapshot sink selection failed", "sink", kind, "mode", cfg.ObjectStorageMode, "error", classified)
		return nil, nil, classified
	}
	storageCfg.Credentials = cfg.GCPCredentials

	log.Info(
		"Selecting snapshot sink",
		"sink", kind,
		"mode", storageCfg.Mode,
		"bucket", storageCfg.Bucket,
		"prefix", storageCfg.Prefix,
		"compatibility_fallback", storageCfg.CompatibilityFallback,
		"emulator_host", storageCfg.EmulatorHost,
	)
	store, err := newBucketStore(ctx, log, storageCfg)
	if err != nil {
		classified := classifySnapshotSinkBootstrapError(kind, string(storageCfg.Mode), err)
		log.Error("Snapshot sink bootstrap failed", "sink", kind, "error_code", snapshotSinkBootstrapErrorCode(classified), "error", classified)
		return nil, nil, classified
	}
	return replication.GCSSink{Store: store}, store.Close, nil
}

func classifySnapshotSinkBootstrapError(sink, mode string, err error) error {
	code := SnapshotSinkBootstrapErrorConnectFailed
	var cfgErr *gcp.ObjectStorageConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case gcp.ObjectStorageConfigErrorInvalidMode:
			code = SnapshotSinkBootstrapErrorInvalidMode
		case gcp.ObjectStorageConfigErrorMissingBucket:
			code = SnapshotSinkBootstrapErrorMissingBucket
		case gcp.ObjectStorageConfigErrorMissingEmulatorHost:
			code = SnapshotSinkBootstrapErrorMissingEmulatorHost
		case gcp.ObjectStorageConfigErrorInvalidEmulatorHost:
			code = SnapshotSinkBootstrapErrorInvalidEmulatorHost
		}
	}
	return &SnapshotSinkBootstrapError{Code: code, Sink: sink, Mode: mode, Cause: err}
}

func snapshotSinkBootstrapErrorCode(err error) SnapshotSinkBootstrapErrorCode {
	var bootstrapErr *SnapshotSinkBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return SnapshotSinkBootstrapErrorConnectFailed
}
