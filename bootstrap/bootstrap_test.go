package bootstrap_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/artpar/entityapi/bootstrap"
	"github.com/artpar/entityapi/config"
	"github.com/artpar/entityapi/core/runtime"
	"github.com/artpar/entityapi/domain/user"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("ENTITYAPI_DATABASE_DSN", filepath.Join(t.TempDir(), "test.db"))
	t.Setenv("ENTITYAPI_LOG_FORMAT", "json")
	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)
	return cfg
}

func newApp(t *testing.T, cfg *config.Config, logs *bytes.Buffer) *bootstrap.App {
	t.Helper()
	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{
		LogOutput:   logs,
		UserOptions: []user.Option{user.WithHashCost(bcrypt.MinCost)},
	})
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app
}

func TestBootstrap_UserRoundTrip(t *testing.T) {
	var logs bytes.Buffer
	app := newApp(t, testConfig(t), &logs)

	assert.Equal(t, []string{"user"}, app.Runtime.Entities())
	assert.Nil(t, app.Metrics, "metrics are disabled by default")

	in, err := app.Runtime.Load("user")
	require.NoError(t, err)
	rec, err := in.Set("mail", "jane@example.com").Set("name", "Jane").Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Jane", rec["login"])
	password, _ := rec["password"].(string)
	require.Len(t, password, 6)

	in, err = app.Runtime.Load("user")
	require.NoError(t, err)
	rec, err = in.Context("mail", "jane@example.com").Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Jane", rec["name"])

	out := logs.String()
	assert.Contains(t, out, `"message":"audit"`)
	assert.Contains(t, out, `"event":"user.created"`)
	assert.Contains(t, out, `"message":"user account created"`)
	assert.NotContains(t, out, password, "password never reaches the log")
}

func TestBootstrap_Reopen(t *testing.T) {
	cfg := testConfig(t)

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{LogOutput: &bytes.Buffer{}})
	require.NoError(t, err)
	require.NoError(t, app.Close())

	// Migration is idempotent.
	app = newApp(t, cfg, &bytes.Buffer{})
	var n int
	require.NoError(t, app.Store.DB().QueryRow("SELECT COUNT(*) FROM profile").Scan(&n))
}

func TestBootstrap_Metrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "entityapi.prom")

	app := newApp(t, cfg, &bytes.Buffer{})
	require.NotNil(t, app.Metrics)

	in, err := app.Runtime.Load("user")
	require.NoError(t, err)
	_, err = in.Set("name", "Jane").Create(context.Background())
	require.Error(t, err)

	app.RecordConfigReload(nil)
	require.NoError(t, app.WriteMetrics())

	data, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `entityapi_validation_failures_total{category="group",entity="user"} 1`)
	assert.Contains(t, out, `entityapi_schema_parses_total{entity="user",result="ok"} 1`)
	assert.Contains(t, out, `entityapi_config_reloads_total 1`)
}

func TestBootstrap_SchemaDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	write("tag.yaml", `
entity: tag
fields:
  - name: label
    meta: '@Api\Validate(regex="[a-z]+")'
`)

	cfg := testConfig(t)
	cfg.Schema.Dir = dir
	app := newApp(t, cfg, &bytes.Buffer{})

	require.Len(t, app.Extra, 1)
	assert.Equal(t, "tag", app.Extra[0].Name())
	_, ok := app.Registry.Get("tag")
	assert.True(t, ok)

	write("ghost.yaml", `
entity: ghost
fields:
  - name: x
    meta: '@Api\Validate(function="no_such_validator")'
`)
	_, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{LogOutput: &bytes.Buffer{}})
	var uve *runtime.UnknownValidatorError
	require.ErrorAs(t, err, &uve)
	assert.Equal(t, []string{"no_such_validator"}, uve.Names)
}

func TestNewLogger(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	logger := bootstrap.NewLogger(&buf, "warn", "json")
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)

	buf.Reset()
	logger = bootstrap.NewLogger(&buf, "bogus", "console")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	logger.Info().Msg("plain")
	assert.False(t, strings.HasPrefix(buf.String(), "{"), "console output is not JSON")
	assert.Contains(t, buf.String(), "plain")
}

func TestApplyConfig(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var logs bytes.Buffer
	app := newApp(t, testConfig(t), &logs)

	next := *app.Config
	next.Logging.Level = "error"
	app.ApplyConfig(&next)

	assert.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())
	assert.Equal(t, "error", app.Config.Logging.Level)
}

func TestApplyConfig_FormatReachesComponents(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var logs bytes.Buffer
	app := newApp(t, testConfig(t), &logs)

	in, err := app.Runtime.Load("user")
	require.NoError(t, err)
	_, err = in.Set("mail", "jane@example.com").Create(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(logs.String(), "{"), "json before reload")

	next := *app.Config
	next.Logging.Format = "console"
	app.ApplyConfig(&next)
	logs.Reset()

	in, err = app.Runtime.Load("user")
	require.NoError(t, err)
	_, err = in.Set("mail", "joe@example.com").Create(context.Background())
	require.NoError(t, err)

	out := logs.String()
	assert.Contains(t, out, "account created", "user entity logger follows the reload")
	assert.Contains(t, out, "audit", "event bus logger follows the reload")
	assert.NotContains(t, out, `{"level"`)
	assert.Equal(t, "console", app.Config.Logging.Format)
}
