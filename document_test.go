package olsync_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olsync/olsync"
	"github.com/olsync/olsync/internal/mock"
	"github.com/olsync/olsync/pkg/models"
	"github.com/olsync/olsync/pkg/ot"
	"github.com/olsync/olsync/pkg/reconnect"
	"github.com/olsync/olsync/pkg/remote"
)

// withDocs extends the fixture join with joinDoc and leaveDoc replies.
func withDocs(t *testing.T, docs map[string][]string, version int) setupFunc {
	return func(ch *mock.Channel, scheme reconnect.Scheme) {
		joinsWithFixture(t)(ch, scheme)
		ch.Reply("joinDoc", func(ctx context.Context, args []any) ([]any, error) {
			lines := docs[args[0].(string)]
			return []any{lines, version, []any{}, map[string]any{}}, nil
		})
		ch.Reply("leaveDoc", func(ctx context.Context, args []any) ([]any, error) {
			return nil, nil
		})
	}
}

func open(t *testing.T, h *harness, path string) string {
	t.Helper()
	text, err := h.engine.OpenDocument(testContext(t), path)
	require.NoError(t, err)
	return text
}

func TestOpenDocument(t *testing.T) {
	h := newHarness(t, withDocs(t, map[string][]string{
		// "café" as the server sends it: one rune per UTF-8 byte.
		"d-main": {`\documentclass{article}`, "caf\u00c3\u00a9"},
	}, 5))

	text := open(t, h, "/main.tex")
	assert.Equal(t, "\\documentclass{article}\ncafé", text)

	req := h.last().Requests("joinDoc")
	require.Len(t, req, 1)
	assert.Equal(t, "d-main", req[0].Args[0])
	assert.Equal(t, map[string]any{"encodeRanges": true}, req[0].Args[1])

	// Cached from now on.
	assert.Equal(t, text, open(t, h, "main.tex"))
	assert.Len(t, h.last().Requests("joinDoc"), 1)

	doc := h.engine.Snapshot().Root().Docs[0]
	assert.Equal(t, 5, doc.Version)
	assert.True(t, doc.Cached())
}

func TestOpenDocument_InitJoinsFirst(t *testing.T) {
	h := newHarness(t, withDocs(t, map[string][]string{"d-intro": {"Intro"}}, 1))

	assert.Equal(t, "Intro", open(t, h, "/sections/intro.tex"))
	assert.Len(t, h.last().Requests("joinProject"), 1)
}

func TestOpenDocument_WrongKindAndNotFound(t *testing.T) {
	h := newHarness(t, withDocs(t, nil, 1))
	h.init()

	for _, path := range []string{"/sections", "/", "/refs.bib", "/sections/figures/plot.png"} {
		_, err := h.engine.OpenDocument(testContext(t), path)
		assert.ErrorIs(t, err, olsync.ErrWrongKind, path)
	}

	for _, path := range []string{"/missing.tex", "/main.tex/child", "/nope/intro.tex"} {
		_, err := h.engine.OpenDocument(testContext(t), path)
		assert.ErrorIs(t, err, olsync.ErrNotFound, path)
	}

	assert.Empty(t, h.last().Requests("joinDoc"))
}

func TestOpenDocument_FollowsUpdates(t *testing.T) {
	h := newHarness(t, withDocs(t, map[string][]string{"d-main": {"hello"}}, 7))
	require.Equal(t, "hello", open(t, h, "/main.tex"))

	h.push("otUpdateApplied", ot.Update{Doc: "d-main", Version: 7, Ops: []ot.Op{{P: 0, I: "X"}}})
	assert.Equal(t, "Xhello", open(t, h, "/main.tex"))
	assert.Equal(t, 8, h.engine.Snapshot().Root().Docs[0].Version)

	h.push("otUpdateApplied", ot.Update{Doc: "d-main", Version: 8, Ops: []ot.Op{{P: 1, D: "he"}, {P: 4, I: "!"}}})
	assert.Equal(t, "Xllo!", open(t, h, "/main.tex"))
	assert.Len(t, h.last().Requests("joinDoc"), 1)
}

func TestOpenDocument_UpdatesForClosedDocsAreIgnored(t *testing.T) {
	h := newHarness(t, withDocs(t, map[string][]string{"d-intro": {"Intro"}}, 2))
	h.init()

	h.push("otUpdateApplied", ot.Update{Doc: "d-intro", Version: 2, Ops: []ot.Op{{P: 0, I: "X"}}})
	doc := h.engine.Snapshot().Root().Folders[0].Docs[0]
	assert.False(t, doc.Cached())
	assert.Equal(t, 0, doc.Version)

	assert.Equal(t, "Intro", open(t, h, "/sections/intro.tex"))
}

func TestOpenDocument_VersionMismatchRefetches(t *testing.T) {
	h := newHarness(t, withDocs(t, map[string][]string{"d-main": {"hello"}}, 5))
	open(t, h, "/main.tex")

	h.push("otUpdateApplied", ot.Update{Doc: "d-main", Version: 9, Ops: []ot.Op{{P: 0, I: "X"}}})
	doc := h.engine.Snapshot().Root().Docs[0]
	assert.False(t, doc.Cached())
	assert.Equal(t, 5, doc.Version)

	assert.Equal(t, "hello", open(t, h, "/main.tex"))
	assert.Len(t, h.last().Requests("joinDoc"), 2)
}

func TestOpenDocument_MalformedUpdateMarksStale(t *testing.T) {
	h := newHarness(t, withDocs(t, map[string][]string{"d-main": {"hello"}}, 5))
	open(t, h, "/main.tex")

	h.push("otUpdateApplied", ot.Update{Doc: "d-main", Version: 5, Ops: []ot.Op{{P: 40, I: "X"}}})
	doc := h.engine.Snapshot().Root().Docs[0]
	assert.True(t, doc.Stale)
	assert.False(t, doc.Cached())

	assert.Equal(t, "hello", open(t, h, "/main.tex"))
	assert.False(t, h.engine.Snapshot().Root().Docs[0].Stale)
}

func TestOpenDocument_ReplaysUpdatesReceivedDuringJoin(t *testing.T) {
	h := newHarness(t, func(ch *mock.Channel, scheme reconnect.Scheme) {
		joinsWithFixture(t)(ch, scheme)
		ch.Reply("joinDoc", func(ctx context.Context, args []any) ([]any, error) {
			// Already part of the text below.
			_ = ch.Push("otUpdateApplied", ot.Update{Doc: "d-main", Version: 2, Ops: []ot.Op{{P: 0, I: "a"}}})
			// Newer than the text below.
			_ = ch.Push("otUpdateApplied", ot.Update{Doc: "d-main", Version: 3, Ops: []ot.Op{{P: 3, I: "d"}}})
			return []any{[]string{"abc"}, 3}, nil
		})
	})

	assert.Equal(t, "abcd", open(t, h, "/main.tex"))
	assert.Equal(t, 4, h.engine.Snapshot().Root().Docs[0].Version)
}

func TestOpenDocument_ConcurrentOpensShareOneRequest(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, func(ch *mock.Channel, scheme reconnect.Scheme) {
		joinsWithFixture(t)(ch, scheme)
		ch.Reply("joinDoc", func(ctx context.Context, args []any) ([]any, error) {
			<-release
			return []any{[]string{"shared"}, 1}, nil
		})
	})
	h.init()

	results := make(chan string, 3)
	for i := 0; i < 3; i++ {
		go func() {
			text, _ := h.engine.OpenDocument(testContext(t), "/main.tex")
			results <- text
		}()
	}
	require.Eventually(t, func() bool {
		return len(h.last().Requests("joinDoc")) == 1
	}, defaultWait, tick)
	close(release)

	for i := 0; i < 3; i++ {
		assert.Equal(t, "shared", <-results)
	}
	assert.Len(t, h.last().Requests("joinDoc"), 1)
}

func TestCloseDocument(t *testing.T) {
	h := newHarness(t, withDocs(t, map[string][]string{"d-main": {"hello"}}, 5))
	open(t, h, "/main.tex")

	require.NoError(t, h.engine.CloseDocument(testContext(t), "/main.tex"))
	req := h.last().Requests("leaveDoc")
	require.Len(t, req, 1)
	assert.Equal(t, "d-main", req[0].Args[0])
	assert.False(t, h.engine.Snapshot().Root().Docs[0].Cached())

	open(t, h, "/main.tex")
	assert.Len(t, h.last().Requests("joinDoc"), 2)

	err := h.engine.CloseDocument(testContext(t), "/sections")
	assert.ErrorIs(t, err, olsync.ErrWrongKind)
}

func TestCloseDocument_WhileOpening(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, func(ch *mock.Channel, scheme reconnect.Scheme) {
		joinsWithFixture(t)(ch, scheme)
		ch.Reply("joinDoc", func(ctx context.Context, args []any) ([]any, error) {
			<-release
			return []any{[]string{"hello"}, 5}, nil
		})
		ch.Reply("leaveDoc", func(ctx context.Context, args []any) ([]any, error) {
			return nil, nil
		})
	})
	h.init()

	result := make(chan string, 1)
	go func() {
		text, _ := h.engine.OpenDocument(testContext(t), "/main.tex")
		result <- text
	}()
	require.Eventually(t, func() bool {
		return len(h.last().Requests("joinDoc")) == 1
	}, defaultWait, tick)

	require.NoError(t, h.engine.CloseDocument(testContext(t), "/main.tex"))
	close(release)

	assert.Equal(t, "hello", <-result)
	assert.False(t, h.engine.Snapshot().Root().Docs[0].Cached())

	// Updates for the closed document are not applied.
	h.push("otUpdateApplied", ot.Update{Doc: "d-main", Version: 5, Ops: []ot.Op{{P: 0, I: "x"}}})
	assert.False(t, h.engine.Snapshot().Root().Docs[0].Cached())

	// A later open fetches again.
	assert.Equal(t, "hello", open(t, h, "/main.tex"))
	assert.Len(t, h.last().Requests("joinDoc"), 2)
	assert.True(t, h.engine.Snapshot().Root().Docs[0].Cached())
}

func TestCompileAndOpenOutput(t *testing.T) {
	h := newHarness(t, joinsWithFixture(t))
	pdfURL := "/project/p1/user/u1/build/19a-2b/output/output.pdf"
	h.remote.compile = &remote.CompileResult{
		Status:       "success",
		CompileGroup: "standard",
		OutputFiles: []*models.OutputFile{
			{Path: "output.pdf", URL: pdfURL, Type: "pdf", Build: "19a-2b"},
			{Path: "output.log", URL: "/project/p1/user/u1/build/19a-2b/output/output.log", Type: "log", Build: "19a-2b"},
		},
	}
	h.remote.files[pdfURL] = []byte("%PDF-1.5")

	res, err := h.engine.Compile(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)

	root := h.engine.Snapshot().Root()
	require.Len(t, root.Outputs, 2)
	assert.Equal(t, "output.pdf", root.Outputs[0].Name)

	data, err := h.engine.OpenDocument(testContext(t), "/output.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.5", data)
	assert.Equal(t, []string{"standard:" + pdfURL}, h.remote.downloads)

	_, err = h.engine.OpenDocument(testContext(t), "/output.log")
	assert.ErrorIs(t, err, olsync.ErrNotFound)

	// A second compile replaces the outputs.
	h.remote.compile.OutputFiles = h.remote.compile.OutputFiles[:1]
	_, err = h.engine.Compile(testContext(t))
	require.NoError(t, err)
	assert.Len(t, h.engine.Snapshot().Root().Outputs, 1)
}
