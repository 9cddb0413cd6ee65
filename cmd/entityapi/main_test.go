package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/artpar/entityapi/bootstrap"
	"github.com/artpar/entityapi/core/channel/tty"
	"github.com/artpar/entityapi/core/runtime"
	"github.com/artpar/entityapi/domain/user"
)

type harness struct {
	s      *session
	db     string
	dir    string
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newHarness(t *testing.T, stdin string) *harness {
	t.Helper()

	dir := t.TempDir()
	h := &harness{
		db:     filepath.Join(dir, "test.db"),
		dir:    dir,
		out:    &bytes.Buffer{},
		errOut: &bytes.Buffer{},
	}
	h.s = newSession(strings.NewReader(stdin), h.out, h.errOut)
	h.s.flags.config = filepath.Join(dir, "missing.yaml")
	h.s.appOptions = bootstrap.Options{
		LogOutput:   io.Discard,
		UserOptions: []user.Option{user.WithHashCost(bcrypt.MinCost)},
	}
	t.Cleanup(func() { h.s.close() })
	return h
}

// run executes one command line and resets the captured output.
func (h *harness) run(args ...string) (code int, stdout, stderr string) {
	h.out.Reset()
	h.errOut.Reset()
	args = append(args, "--db", h.db)
	code = execute(context.Background(), h.s, args)
	return code, h.out.String(), h.errOut.String()
}

// runJSON executes a command with JSON output and decodes the record data.
func (h *harness) runJSON(t *testing.T, args ...string) map[string]any {
	t.Helper()
	code, stdout, stderr := h.run(append(args, "-o", "json")...)
	require.Equal(t, 0, code, "stderr: %s", stderr)

	var out struct {
		Entity string         `json:"entity"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out), stdout)
	return out.Data
}

func TestCRUD(t *testing.T) {
	h := newHarness(t, "")

	rec := h.runJSON(t, "create", "user", "--set", "mail=jane@example.com", "--set", "name=Jane")
	assert.Equal(t, float64(1), rec["uid"])
	assert.Equal(t, "Jane", rec["login"])
	assert.Len(t, rec["password"], 6)

	rec = h.runJSON(t, "get", "user", "--context", "mail=jane@example.com")
	assert.Equal(t, "Jane", rec["name"])
	assert.NotContains(t, rec, "password")

	rec = h.runJSON(t, "update", "user", "--context", "mail=jane@example.com", "--set", "last_name=Doe")
	assert.Equal(t, "Doe", rec["last_name"])

	rec = h.runJSON(t, "remove", "user", "--context", "mail=jane@example.com")
	assert.Equal(t, true, rec["removed"])

	rec = h.runJSON(t, "remove", "user", "--context", "mail=jane@example.com")
	assert.Equal(t, false, rec["removed"])
}

func TestVerbExamples(t *testing.T) {
	h := newHarness(t, "")

	verbs := []runtime.Verb{runtime.VerbCreate, runtime.VerbGet, runtime.VerbUpdate, runtime.VerbRemove}
	for _, verb := range verbs {
		args := tty.ParseArgs(verbHelp[verb].example)
		require.Equal(t, "entityapi", args[0])

		code, _, stderr := h.run(args[1:]...)
		assert.Equal(t, 0, code, "%s example failed: %s", verb, stderr)
	}
}

func TestRepeatedKeysLastWins(t *testing.T) {
	h := newHarness(t, "")
	h.runJSON(t, "create", "user", "--set", "mail=jane@example.com")

	for i := 0; i < 5; i++ {
		rec := h.runJSON(t, "update", "user", "--context", "mail=jane@example.com",
			"--set", "lastName=Adams", "--set", "last_name=Baker")
		assert.Equal(t, "Baker", rec["last_name"])
	}
}

func TestCRUDTableOutput(t *testing.T) {
	h := newHarness(t, "")

	code, stdout, _ := h.run("create", "user", "--set", "mobile=5551234567", "--columns", "uid,mobile")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Uid:")
	assert.Contains(t, stdout, "5551234567")
	assert.NotContains(t, stdout, "Password")

	code, stdout, _ = h.run("update", "user", "--context", "mail=nobody@example.com", "--set", "name=Joe")
	require.Equal(t, 0, code)
	assert.Equal(t, "Nothing changed.\n", stdout)
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "group constraint",
			args: []string{"create", "user", "--set", "name=Jane", "-o", "json"},
			want: `"category": "group"`,
		},
		{
			name: "malformed value",
			args: []string{"create", "user", "--set", "mail=not-an-address", "-o", "json"},
			want: `"category": "invalid"`,
		},
		{
			name: "unknown entity",
			args: []string{"get", "ghost", "--context", "id=1"},
			want: "ghost",
		},
		{
			name: "missing equals",
			args: []string{"create", "user", "--set", "mail"},
			want: "--set",
		},
		{
			name: "unknown format",
			args: []string{"get", "user", "--context", "uid=1", "-o", "xml"},
			want: `unknown output format "xml"`,
		},
		{
			name: "missing entity argument",
			args: []string{"get"},
			want: "accepts 1 arg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "")
			code, _, stderr := h.run(tt.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestSchema(t *testing.T) {
	h := newHarness(t, "")

	code, stdout, _ := h.run("schema")
	require.Equal(t, 0, code)
	assert.Equal(t, "user\n", stdout)

	code, stdout, _ = h.run("schema", "user")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "FIELD")
	assert.Contains(t, stdout, "field_user_mobile")
	assert.Contains(t, stdout, "valid_cell()")

	code, _, stderr := h.run("schema", "ghost")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "ghost")
}

func TestValidate(t *testing.T) {
	h := newHarness(t, "")

	good := filepath.Join(h.dir, "tag.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`entity: tag
fields:
  - name: label
    meta: |
      @Api\Table("tag")
      @Api\Column(name="label", type="varchar", required="true")
      @Api\Validate(regex="[a-z]+")
`), 0o644))

	ghost := filepath.Join(h.dir, "ghost.yaml")
	require.NoError(t, os.WriteFile(ghost, []byte(`entity: ghost
fields:
  - name: code
    meta: |
      @Api\Table("ghost")
      @Api\Column(name="code", type="varchar")
      @Api\Validate(function="no_such_check")
`), 0o644))

	code, stdout, _ := h.run("validate", good)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, checkMark+" "+good)
	assert.Contains(t, stdout, "All declarations are valid.")

	code, stdout, stderr := h.run("validate", good, ghost)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, crossMark+" "+ghost)
	assert.Contains(t, stdout, "no_such_check")
	assert.Contains(t, stderr, "1 of 2 declarations invalid")

	_, err := os.Stat(h.db)
	assert.True(t, os.IsNotExist(err), "validate does not open the database")
}

func TestValidateConfig(t *testing.T) {
	h := newHarness(t, "")

	code, stdout, _ := h.run("validate")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Config valid")
	assert.Contains(t, stdout, h.db)
	assert.Contains(t, stdout, "Configuration is valid.")
}

func TestShell(t *testing.T) {
	script := strings.Join([]string{
		"# comment",
		"create user --set mail=jane@example.com --set name=Jane -o json",
		"get user --context mail=jane@example.com --columns name",
		"create user --set name=Nobody",
		"shell",
		"quit",
		"get user --context uid=1",
	}, "\n")
	h := newHarness(t, script)

	code, stdout, _ := h.run("shell")
	require.Equal(t, 0, code)

	assert.Contains(t, stdout, `"login": "Jane"`)
	assert.Contains(t, stdout, "Name:  Jane")
	assert.Contains(t, stdout, "Error: already in a shell")
	assert.NotContains(t, stdout, "entityapi interactive shell", "no banner without a terminal")
	assert.Equal(t, 1, strings.Count(stdout, `"login"`), "flags apply to their own line")

	assert.Contains(t, h.errOut.String(), "you must have at least one of")
}

func TestVersion(t *testing.T) {
	h := newHarness(t, "")

	code, stdout, _ := h.run("version")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "entityapi dev")
}
