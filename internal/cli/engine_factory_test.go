package cli

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/adapters/file"
	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend(t *testing.T) {
	base := t.TempDir()

	t.Run("none", func(t *testing.T) {
		s := config.DefaultSettings()
		s.Reports.Backend = config.BackendNone
		b, err := OpenBackend(s, base)
		require.NoError(t, err)
		assert.Nil(t, b.Store)
		assert.Nil(t, b.History(s, logging.NewNop()))
		assert.NoError(t, b.Close())
	})

	t.Run("file resolves against the project", func(t *testing.T) {
		s := config.DefaultSettings()
		b, err := OpenBackend(s, base)
		require.NoError(t, err)
		require.IsType(t, &file.Store{}, b.Store)

		report := &domain.Report{RunID: "r1", Root: &domain.Result{NodeID: "root"}}
		require.NoError(t, b.Store.Save(context.Background(), "r1", report))
		_, err = os.Stat(filepath.Join(base, ".arbor", "reports", "r1.json"))
		assert.NoError(t, err)
	})

	t.Run("redis with locker", func(t *testing.T) {
		mr := miniredis.RunT(t)
		s := config.DefaultSettings()
		s.Reports.Backend = config.BackendRedis
		s.Reports.Redis.Addr = mr.Addr()
		b, err := OpenBackend(s, base)
		require.NoError(t, err)
		defer b.Close()
		require.NotNil(t, b.Locker)

		m := b.History(s, logging.NewNop())
		require.NoError(t, m.Record(context.Background(), &domain.Report{RunID: "r1", Plan: "p"}))
		ids, err := m.List(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"r1"}, ids)
	})

	t.Run("redacted and encrypted", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("ARBOR_TEST_KEY", base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")))
		s := config.DefaultSettings()
		s.Reports.Redact = []string{`hunter\d`}
		s.Reports.EncryptionKeyEnv = "ARBOR_TEST_KEY"
		b, err := OpenBackend(s, dir)
		require.NoError(t, err)

		report := &domain.Report{RunID: "r1", Root: &domain.Result{NodeID: "login", Error: "bad password hunter2"}}
		require.NoError(t, b.Store.Save(context.Background(), "r1", report))

		raw, err := os.ReadFile(filepath.Join(dir, ".arbor", "reports", "r1.json"))
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "bad password")

		loaded, err := b.Store.Load(context.Background(), "r1")
		require.NoError(t, err)
		assert.Equal(t, "bad password ***", loaded.Root.Error)
	})

	t.Run("missing encryption key", func(t *testing.T) {
		s := config.DefaultSettings()
		s.Reports.EncryptionKeyEnv = "ARBOR_TEST_UNSET_KEY"
		_, err := OpenBackend(s, base)
		assert.ErrorContains(t, err, "is not set")
	})

	t.Run("unknown", func(t *testing.T) {
		s := config.DefaultSettings()
		s.Reports.Backend = "s3"
		_, err := OpenBackend(s, base)
		assert.Error(t, err)
	})
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	s, err := LoadSettings("", dir)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultSettings(), s)

	require.NoError(t, os.WriteFile(filepath.Join(dir, SettingsFile), []byte("parallelism: 3\n"), 0o644))
	s, err = LoadSettings("", dir)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Parallelism)

	_, err = LoadSettings(filepath.Join(dir, "missing.yaml"), dir)
	assert.Error(t, err)
}
