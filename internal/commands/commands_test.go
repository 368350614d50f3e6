package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/nfeflow/internal/config"
	"github.com/dwsmith1983/nfeflow/internal/ledger"
	"github.com/dwsmith1983/nfeflow/internal/ledger/xlsx"
	"github.com/dwsmith1983/nfeflow/internal/lock"
	"github.com/dwsmith1983/nfeflow/internal/testutil"
	"github.com/dwsmith1983/nfeflow/pkg/types"
)

const scenario = `
documents:
  "1001":
    items:
      - ref: "123"
        product: "CADEIRA LUNA (0123) *(Sugestão)"
    entry: "https://erp.example/entries/77"
`

type workspace struct {
	dir      string
	cacheDir string
	ledger   string
	lockPath string
	reports  string
	config   string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	ws := &workspace{
		dir:      dir,
		cacheDir: filepath.Join(dir, "downloads"),
		ledger:   filepath.Join(dir, "ledger.xlsx"),
		lockPath: filepath.Join(dir, "run.lock"),
		reports:  filepath.Join(dir, "reports.jsonl"),
		config:   filepath.Join(dir, "nfeflow.yaml"),
	}
	require.NoError(t, os.MkdirAll(ws.cacheDir, 0o755))
	scenarioPath := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(scenarioPath, []byte(scenario), 0o644))

	cfg := fmt.Sprintf(`remote:
  driver: scripted
  scenario: %s
ledger:
  backend: xlsx
  path: %s
source:
  backend: none
lock:
  path: %s
cacheDir: %s
log:
  dir: %s
retry:
  maxAttempts: 1
alerts:
  - type: file
    path: %s
`, scenarioPath, ws.ledger, ws.lockPath, ws.cacheDir, filepath.Join(dir, "logs"), ws.reports)
	require.NoError(t, os.WriteFile(ws.config, []byte(cfg), 0o644))

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	return ws
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := NewRootCmd("test")
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func TestRoot_RunsPipelineByDefault(t *testing.T) {
	ws := newWorkspace(t)
	testutil.WriteInvoice(t, ws.cacheDir, "1001.xml", "1001", "2026-01-15")

	require.NoError(t, execute(t, "--config", ws.config))

	_, err := os.Stat(filepath.Join(ws.cacheDir, "1001(DONE).xml"))
	assert.NoError(t, err)
	_, err = os.Stat(ws.lockPath)
	assert.True(t, os.IsNotExist(err), "lock released after the run")

	report, err := os.ReadFile(ws.reports)
	require.NoError(t, err)
	assert.Contains(t, string(report), "1001 OK (https://erp.example/entries/77)")

	store, err := xlsx.New(ws.ledger, "PROCESSO ENTRADA")
	require.NoError(t, err)
	l := ledger.New(store, nil)
	ctx := context.Background()
	row, found, err := l.Lookup(ctx, "1001")
	require.NoError(t, err)
	require.True(t, found)
	for _, col := range []types.Column{types.ColImported, types.ColLinked, types.ColEntrySaved, types.ColInvoiceSaved} {
		ok, err := l.Flag(ctx, row, col)
		require.NoError(t, err)
		assert.True(t, ok, col.String())
	}
}

func TestRun_NothingToDo(t *testing.T) {
	ws := newWorkspace(t)
	require.NoError(t, execute(t, "run", "--config", ws.config))
	_, err := os.Stat(ws.reports)
	require.NoError(t, err)
	data, err := os.ReadFile(ws.reports)
	require.NoError(t, err)
	assert.Empty(t, data, "an empty report is not sent")
}

func TestRun_LockHeld(t *testing.T) {
	ws := newWorkspace(t)
	testutil.WriteInvoice(t, ws.cacheDir, "1001.xml", "1001", "2026-01-15")

	held := lock.NewFile(ws.lockPath)
	ok, err := held.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	err = execute(t, "--config", ws.config)
	assert.ErrorIs(t, err, lock.ErrHeld)
	_, statErr := os.Stat(filepath.Join(ws.cacheDir, "1001.xml"))
	assert.NoError(t, statErr, "nothing processed while the lock is held")

	require.NoError(t, execute(t, "unlock", "--config", ws.config))
	_, statErr = os.Stat(ws.lockPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSelftest_WritesHeartbeat(t *testing.T) {
	ws := newWorkspace(t)
	require.NoError(t, execute(t, "selftest", "--config", ws.config))

	store, err := xlsx.New(ws.ledger, "PROCESSO ENTRADA")
	require.NoError(t, err)
	rows, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	require.Greater(t, len(rows[0]), int(types.HeartbeatColumn))
	assert.NotEmpty(t, rows[0][types.HeartbeatColumn])
}

func TestRoot_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nfeflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("remote:\n  driver: carrier-pigeon\n"), 0o644))

	err := execute(t, "--config", path)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestBuilders_UnsupportedBackends(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		Remote: config.Remote{Driver: "telnet"},
		Ledger: config.Ledger{Backend: "csv"},
		Source: config.Source{Backend: "ftp"},
		Lock:   config.Lock{Backend: "etcd"},
	}
	var cl closers

	_, err := newLedgerStore(ctx, cfg, nil)
	assert.Error(t, err)
	_, err = newSource(ctx, cfg, nil, &cl)
	assert.Error(t, err)
	_, err = newLocker(ctx, cfg, nil, slog.Default(), &cl)
	assert.Error(t, err)
	_, err = newDriver(cfg, slog.Default())
	assert.Error(t, err)
}

func TestBuilders_LocalBackends(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		Remote: config.Remote{Driver: "http", URL: "http://127.0.0.1:1", Username: "u", Password: "p"},
		Ledger: config.Ledger{Backend: "memory"},
		Source: config.Source{Backend: "none"},
		Lock:   config.Lock{Backend: "redis", RedisAddr: "127.0.0.1:1", Key: "k", StaleAfter: lock.DefaultStaleAfter},
	}
	var cl closers
	defer cl.close(slog.Default())

	store, err := newLedgerStore(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &ledger.MemoryStore{}, store)

	src, err := newSource(ctx, cfg, nil, &cl)
	require.NoError(t, err)
	assert.Nil(t, src)

	locker, err := newLocker(ctx, cfg, nil, slog.Default(), &cl)
	require.NoError(t, err)
	assert.IsType(t, &lock.RedisLocker{}, locker)
	assert.Len(t, cl, 1)

	driver, err := newDriver(cfg, slog.Default())
	require.NoError(t, err)
	assert.NotNil(t, driver)

	key, err := googleKey(ctx, cfg)
	require.NoError(t, err)
	assert.Nil(t, key)
}
