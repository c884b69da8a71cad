package olsync_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/olsync/olsync"
	"github.com/olsync/olsync/internal/mock"
	"github.com/olsync/olsync/pkg/channel"
	"github.com/olsync/olsync/pkg/models"
	"github.com/olsync/olsync/pkg/reconnect"
	"github.com/olsync/olsync/pkg/remote"
)

const (
	testProjectID = "p1"

	defaultWait = 2 * time.Second
	tick        = 5 * time.Millisecond
)

// Layout:
//
//	/main.tex              d-main
//	/refs.bib              f-bib
//	/sections/intro.tex    d-intro
//	/sections/figures/plot.png  f-plot
const fixtureJSON = `{
  "_id": "p1",
  "name": "Thesis",
  "rootDoc_id": "d-main",
  "compiler": "pdflatex",
  "rootFolder": [{
    "_id": "root",
    "name": "rootFolder",
    "docs": [{"_id": "d-main", "name": "main.tex"}],
    "fileRefs": [{"_id": "f-bib", "name": "refs.bib"}],
    "folders": [{
      "_id": "s1",
      "name": "sections",
      "docs": [{"_id": "d-intro", "name": "intro.tex"}],
      "fileRefs": [],
      "folders": [{
        "_id": "s2",
        "name": "figures",
        "docs": [],
        "fileRefs": [{"_id": "f-plot", "name": "plot.png"}],
        "folders": []
      }]
    }]
  }]
}`

func fixtureProject(t *testing.T) *models.Project {
	t.Helper()
	p := &models.Project{}
	require.NoError(t, json.Unmarshal([]byte(fixtureJSON), p))
	return p
}

// fakeRemote is an in-memory remote.API.
type fakeRemote struct {
	mu            sync.Mutex
	settingsErr   error
	settingsCalls int
	compile       *remote.CompileResult
	files         map[string][]byte
	downloads     []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{files: make(map[string][]byte)}
}

func (r *fakeRemote) GetProjectSettings(ctx context.Context, identity remote.Identity, projectID string) (*models.ProjectSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settingsCalls++
	if r.settingsErr != nil {
		return nil, r.settingsErr
	}
	return &models.ProjectSettings{
		LearnedWords: []string{"olsync"},
		Languages:    []models.Language{{Code: "en", Name: "English"}},
		Compilers:    []models.Compiler{{Code: "pdflatex", Name: "pdfLaTeX"}},
	}, nil
}

func (r *fakeRemote) GetFileFromClsi(ctx context.Context, identity remote.Identity, fileURL, compileGroup string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloads = append(r.downloads, compileGroup+":"+fileURL)
	data, ok := r.files[fileURL]
	if !ok {
		return nil, &remote.HTTPError{StatusCode: 404, Path: fileURL}
	}
	return data, nil
}

func (r *fakeRemote) Compile(ctx context.Context, identity remote.Identity, projectID, rootDocID string) (*remote.CompileResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.compile == nil {
		return nil, &remote.HTTPError{StatusCode: 500, Path: "/compile"}
	}
	res := *r.compile
	models.NormalizeOutputs(res.OutputFiles)
	return &res, nil
}

func (r *fakeRemote) ListProjects(ctx context.Context, identity remote.Identity) ([]models.ProjectSummary, error) {
	return []models.ProjectSummary{{ID: testProjectID, Name: "Thesis"}}, nil
}

// harness runs an engine against mock channels, one per join attempt.
type harness struct {
	t      *testing.T
	engine *olsync.Engine
	remote *fakeRemote

	mu       sync.Mutex
	channels []*mock.Channel
	schemes  []reconnect.Scheme
	setup    setupFunc
}

type setupFunc func(ch *mock.Channel, scheme reconnect.Scheme)

// joinsWithFixture answers joinProject with the fixture project.
func joinsWithFixture(t *testing.T) setupFunc {
	return func(ch *mock.Channel, _ reconnect.Scheme) {
		ch.Reply("joinProject", func(ctx context.Context, args []any) ([]any, error) {
			return []any{fixtureProject(t), "owner", 2}, nil
		})
	}
}

func newHarness(t *testing.T, setup setupFunc, opts ...olsync.Option) *harness {
	t.Helper()
	h := &harness{t: t, remote: newFakeRemote(), setup: setup}

	factory := func(scheme reconnect.Scheme, projectID string) (channel.Channel, error) {
		ch := mock.Create()
		h.mu.Lock()
		h.channels = append(h.channels, ch)
		h.schemes = append(h.schemes, scheme)
		fn := h.setup
		h.mu.Unlock()
		if fn != nil {
			fn(ch, scheme)
		}
		return ch, nil
	}

	sess := olsync.Session{
		ServerName: "test",
		BaseURL:    "http://overleaf.test",
		UserID:     "u1",
		Identity:   remote.Identity{CSRFToken: "csrf", Cookies: "sid=1"},
	}
	opts = append([]olsync.Option{
		olsync.WithRemote(h.remote),
		olsync.WithChannelFactory(factory),
		olsync.WithRetryer(nil),
		olsync.WithEmitTimeout(time.Second),
	}, opts...)

	e, err := olsync.New(sess, testProjectID, opts...)
	require.NoError(t, err)
	h.engine = e
	t.Cleanup(func() {
		_ = e.Close(context.Background())
	})
	return h
}

func (h *harness) setSetup(fn setupFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setup = fn
}

func (h *harness) channelCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels)
}

func (h *harness) last() *mock.Channel {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.channels) == 0 {
		return nil
	}
	return h.channels[len(h.channels)-1]
}

func (h *harness) usedSchemes() []reconnect.Scheme {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]reconnect.Scheme(nil), h.schemes...)
}

func (h *harness) init() *models.Project {
	h.t.Helper()
	p, err := h.engine.Init(testContext(h.t))
	require.NoError(h.t, err)
	return p
}

func (h *harness) push(event string, values ...any) {
	h.t.Helper()
	require.NoError(h.t, h.last().Push(event, values...))
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
