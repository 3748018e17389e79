package cli

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/adapters/file"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/adapters/process"
	"github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/expressions"
	"github.com/aretw0/arbor/pkg/history"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
	"github.com/aretw0/arbor/pkg/ports"
)

// Backend is the report store selected by the settings. Store is nil for the "none"
// backend.
type Backend struct {
	Name   string
	Store  ports.ReportStore
	Locker ports.DistributedLocker
	close  func() error
}

// OpenBackend connects the configured report backend. Relative file directories are
// resolved against baseDir.
func OpenBackend(settings config.Settings, baseDir string) (*Backend, error) {
	rs := settings.Reports
	b := &Backend{Name: rs.Backend}

	switch rs.Backend {
	case config.BackendNone:
	case config.BackendMemory:
		b.Store = memory.NewStore()
	case config.BackendFile, "":
		dir := rs.Dir
		if dir == "" {
			dir = file.DefaultDir
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(baseDir, dir)
		}
		b.Name = config.BackendFile
		b.Store = file.New(dir)
	case config.BackendRedis:
		store := redis.New(rs.Redis.Addr, rs.Redis.Password, rs.Redis.DB,
			redis.WithPrefix(rs.Redis.Prefix),
			redis.WithTTL(rs.Redis.TTL),
		)
		b.Store = store
		b.Locker = redis.NewLocker(store.Client(), store.Prefix())
		b.close = store.Close
	default:
		return nil, fmt.Errorf("unknown reports backend %q", rs.Backend)
	}

	if b.Store != nil {
		mws, err := storeMiddleware(rs)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Store = middleware.Chain(b.Store, mws...)
	}
	return b, nil
}

// storeMiddleware builds the redaction and encryption layers. Redaction runs first so
// masked values never reach the ciphertext.
func storeMiddleware(rs config.ReportSettings) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(rs.Redact) > 0 {
		mw, err := middleware.NewRedactionMiddleware(rs.Redact)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	if rs.EncryptionKeyEnv == "" {
		return mws, nil
	}

	active, err := envKey(rs.EncryptionKeyEnv)
	if err != nil {
		return nil, err
	}
	cfg := middleware.EncryptionConfig{ActiveKey: active}
	for _, name := range rs.FallbackKeyEnvs {
		key, err := envKey(name)
		if err != nil {
			return nil, err
		}
		cfg.FallbackKeys = append(cfg.FallbackKeys, key)
	}
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	if err != nil {
		return nil, err
	}
	return append(mws, mw), nil
}

func envKey(name string) ([]byte, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return nil, fmt.Errorf("encryption key variable %s is not set", name)
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("encryption key variable %s is not valid base64: %w", name, err)
	}
	return key, nil
}

// History wraps the store in a history manager, or returns nil without a store.
func (b *Backend) History(settings config.Settings, logger *slog.Logger) *history.Manager {
	if b.Store == nil {
		return nil
	}
	opts := []history.Option{
		history.WithLogger(logger),
		history.WithRetention(settings.Reports.Retention),
	}
	if b.Locker != nil {
		opts = append(opts, history.WithLocker(b.Locker))
	}
	return history.NewManager(b.Store, opts...)
}

// Close releases backend connections.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// EngineOptions configures createEngine.
type EngineOptions struct {
	Settings config.Settings
	Logger   *slog.Logger
	History  *history.Manager
	// Parallel overrides Settings.Parallelism when positive.
	Parallel int
	Hooks    []domain.LifecycleHooks
	// Dir is the working directory of configured commands.
	Dir string
}

// createEngine initializes an arbor engine with standard CLI conventions: settings
// parameters as configuration and node events logged through the CLI logger.
func createEngine(opts EngineOptions) *arbor.Engine {
	parallel := opts.Settings.Parallelism
	if opts.Parallel > 0 {
		parallel = opts.Parallel
	}

	engineOpts := []arbor.Option{
		arbor.WithLogger(opts.Logger),
		arbor.WithConfiguration(opts.Settings.ConfigurationParameters()),
		arbor.WithParallelism(parallel),
		arbor.WithLifecycleHooks(observability.LogHooks(opts.Logger)),
	}
	for _, h := range opts.Hooks {
		engineOpts = append(engineOpts, arbor.WithLifecycleHooks(h))
	}
	if opts.History != nil {
		engineOpts = append(engineOpts, arbor.WithHistory(opts.History))
	}
	if len(opts.Settings.Commands) > 0 {
		engineOpts = append(engineOpts, arbor.WithInvoker(commandInvoker(opts.Settings, opts.Dir)))
	}
	return arbor.New(engineOpts...)
}

// commandInvoker runs the configured commands and evaluates assert expressions for the
// remaining nodes.
func commandInvoker(settings config.Settings, dir string) *process.Invoker {
	commands := make(map[string]process.Command, len(settings.Commands))
	for id, c := range settings.Commands {
		commands[id] = process.Command{Command: c.Command, Args: c.Args, Env: c.Env}
	}
	return process.NewInvoker(
		process.WithCommands(commands),
		process.WithBaseDir(dir),
		process.WithFallback(expressions.NewInvoker()),
	)
}

// LoadSettings reads path, or <dir>/arbor.yaml when path is empty. A missing default
// file yields the default settings.
func LoadSettings(path, dir string) (config.Settings, error) {
	if path != "" {
		return config.Load(path)
	}
	candidate := filepath.Join(dir, SettingsFile)
	if _, err := os.Stat(candidate); err != nil {
		return config.DefaultSettings(), nil
	}
	return config.Load(candidate)
}

// SettingsFile is the settings file looked up in the project directory.
const SettingsFile = "arbor.yaml"
