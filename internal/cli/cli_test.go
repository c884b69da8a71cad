package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/olsync/olsync/internal/codec"
	"github.com/olsync/olsync/internal/fakert"
	"github.com/olsync/olsync/pkg/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "olsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const sampleConfig = `
base_url: https://www.overleaf.com
user_id: u1
identity:
  cookies: overleaf_session2=abc
  csrf_token: tok
project: p-file
log:
  level: debug
`

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	flags := newRootCmd().PersistentFlags()

	cfg, err := loadConfig(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "overleaf", cfg.ServerName)
	assert.Equal(t, "https://www.overleaf.com", cfg.BaseURL)
	assert.Equal(t, "https://www.overleaf.com", cfg.APIURL)
	assert.Equal(t, "u1", cfg.UserID)
	assert.Equal(t, "overleaf_session2=abc", cfg.Identity.Cookies)
	assert.Equal(t, "tok", cfg.Identity.CSRFToken)
	assert.Equal(t, "p-file", cfg.Project)
	assert.Equal(t, "json", cfg.Codec)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv("OLSYNC_PROJECT", "p-env")
	t.Setenv("OLSYNC_IDENTITY_CSRF_TOKEN", "tok-env")

	flags := newRootCmd().PersistentFlags()
	cfg, err := loadConfig(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "p-env", cfg.Project)
	assert.Equal(t, "tok-env", cfg.Identity.CSRFToken)

	require.NoError(t, flags.Parse([]string{"--project", "p-flag", "--api", "http://api.test"}))
	cfg, err = loadConfig(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "p-flag", cfg.Project)
	assert.Equal(t, "http://api.test", cfg.APIURL)
}

func TestLoadConfig_BadFile(t *testing.T) {
	path := writeConfig(t, "base_url: [unterminated")
	_, err := loadConfig(path, newRootCmd().PersistentFlags())
	assert.Error(t, err)
}

func TestParseTarget(t *testing.T) {
	id, p, err := parseTarget("/sections/intro.tex")
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, "/sections/intro.tex", p)

	id, p, err = parseTarget("overleaf://www.overleaf.com/Thesis/sections/intro.tex?project=p7")
	require.NoError(t, err)
	assert.Equal(t, "p7", id)
	assert.Equal(t, "/sections/intro.tex", p)

	_, _, err = parseTarget("overleaf://www.overleaf.com/Thesis/main.tex")
	assert.Error(t, err)
}

// testServers starts a realtime server and an HTTP API for project p1.
func testServers(t *testing.T) (rt *fakert.Server, api *httptest.Server) {
	t.Helper()

	rt = fakert.NewServer("127.0.0.1:0", codec.JSON())
	rt.SetProject(&models.Project{
		ID:   "p1",
		Name: "Thesis",
		RootFolder: []*models.Folder{{
			ID:   "root",
			Name: "rootFolder",
			Docs: []*models.Document{{ID: "d-main", Name: "main.tex"}},
			Folders: []*models.Folder{{
				ID:       "s1",
				Name:     "sections",
				FileRefs: []*models.FileRef{{ID: "f-plot", Name: "plot.png"}},
			}},
		}},
	})
	rt.SetDoc("d-main", fakert.Doc{Lines: []string{`\input{sections/intro}`}, Version: 2})
	require.NoError(t, rt.Start())
	t.Cleanup(func() { _ = rt.Stop() })

	r := mux.NewRouter()
	r.HandleFunc("/project/{id}/settings", func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(`{"learnedWords": []}`))
	})
	r.HandleFunc("/user/projects", func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(`{"projects": [
			{"_id": "p1", "name": "Thesis", "accessLevel": "owner"},
			{"_id": "p2", "name": "Old", "accessLevel": "owner", "trashed": true}
		]}`))
	})
	r.HandleFunc("/project/{id}/compile", func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(`{"status": "success", "compileGroup": "standard", "outputFiles": [
			{"path": "output.pdf", "url": "/build/1/output.pdf", "type": "pdf", "build": "1"}
		]}`))
	}).Methods(http.MethodPost)
	api = httptest.NewServer(r)
	t.Cleanup(api.Close)

	return rt, api
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out, errOut bytes.Buffer
	err := Main(ctx, args, &out, &errOut)
	return out.String(), err
}

func commonArgs(t *testing.T, rt *fakert.Server, api *httptest.Server) []string {
	return []string{
		"--config", writeConfig(t, "user_id: u1\n"),
		"--server", rt.URL(),
		"--api", api.URL,
		"--project", "p1",
		"--cookies", "sid=1",
	}
}

func TestTreeCommand(t *testing.T) {
	rt, api := testServers(t)

	out, err := run(t, append([]string{"tree"}, commonArgs(t, rt, api)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "/main.tex")
	assert.Contains(t, out, "/sections/plot.png")

	out, err = run(t, append([]string{"tree", "--yaml"}, commonArgs(t, rt, api)...)...)
	require.NoError(t, err)

	var root node
	require.NoError(t, yaml.Unmarshal([]byte(out), &root))
	assert.Equal(t, "root", root.ID)
	require.Len(t, root.Children, 2)
	assert.Equal(t, "main.tex", root.Children[0].Name)
	assert.Equal(t, "doc", root.Children[0].Kind)
	assert.Equal(t, "sections", root.Children[1].Name)
	require.Len(t, root.Children[1].Children, 1)
	assert.Equal(t, "file", root.Children[1].Children[0].Kind)
}

func TestCatCommand(t *testing.T) {
	rt, api := testServers(t)

	out, err := run(t, append([]string{"cat", "/main.tex"}, commonArgs(t, rt, api)...)...)
	require.NoError(t, err)
	assert.Equal(t, `\input{sections/intro}`, out)

	_, err = run(t, append([]string{"cat", "/sections"}, commonArgs(t, rt, api)...)...)
	assert.Error(t, err)
}

func TestProjectsCommand(t *testing.T) {
	rt, api := testServers(t)

	out, err := run(t, append([]string{"projects"}, commonArgs(t, rt, api)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "p1")
	assert.Contains(t, out, "Thesis")
	assert.NotContains(t, out, "p2")
}

func TestCompileCommand(t *testing.T) {
	rt, api := testServers(t)

	out, err := run(t, append([]string{"compile"}, commonArgs(t, rt, api)...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "/output.pdf")
}

func TestCommandsNeedAProject(t *testing.T) {
	_, err := run(t, "tree", "--config", writeConfig(t, "base_url: http://127.0.0.1:1\n"))
	assert.ErrorIs(t, err, errNoProject)
}
