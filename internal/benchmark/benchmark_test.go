package benchmark_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/olsync/olsync"
	"github.com/olsync/olsync/internal/mock"
	"github.com/olsync/olsync/pkg/channel"
	"github.com/olsync/olsync/pkg/models"
	"github.com/olsync/olsync/pkg/ot"
	"github.com/olsync/olsync/pkg/reconnect"
	"github.com/olsync/olsync/pkg/remote"
	"github.com/olsync/olsync/pkg/tree"
)

// wideProject builds a project with folders folders of docs documents each.
func wideProject(folders, docs int) *models.Project {
	root := &models.Folder{ID: "root", Name: "rootFolder"}
	for i := 0; i < folders; i++ {
		f := &models.Folder{ID: fmt.Sprintf("f%d", i), Name: fmt.Sprintf("chapter%d", i)}
		for j := 0; j < docs; j++ {
			f.Docs = append(f.Docs, &models.Document{
				ID:   fmt.Sprintf("d%d-%d", i, j),
				Name: fmt.Sprintf("section%d.tex", j),
			})
		}
		root.Folders = append(root.Folders, f)
	}
	return &models.Project{ID: "p1", Name: "Book", RootFolder: []*models.Folder{root}}
}

type nopRemote struct{}

func (nopRemote) GetProjectSettings(context.Context, remote.Identity, string) (*models.ProjectSettings, error) {
	return &models.ProjectSettings{}, nil
}

func (nopRemote) GetFileFromClsi(context.Context, remote.Identity, string, string) ([]byte, error) {
	return nil, nil
}

func (nopRemote) Compile(context.Context, remote.Identity, string, string) (*remote.CompileResult, error) {
	return &remote.CompileResult{}, nil
}

func (nopRemote) ListProjects(context.Context, remote.Identity) ([]models.ProjectSummary, error) {
	return nil, nil
}

func SetupMockEngine(b *testing.B) (*olsync.Engine, *mock.Channel) {
	b.Helper()
	ch := mock.Create()
	ch.Reply("joinProject", func(context.Context, []any) ([]any, error) {
		return []any{wideProject(20, 50), "owner", 2}, nil
	})
	ch.Reply("joinDoc", func(context.Context, []any) ([]any, error) {
		return []any{[]string{"\\section{Intro}", "text"}, 1}, nil
	})

	e, err := olsync.New(olsync.Session{BaseURL: "http://overleaf.test"}, "p1",
		olsync.WithRemote(nopRemote{}),
		olsync.WithChannelFactory(func(reconnect.Scheme, string) (channel.Channel, error) {
			return ch, nil
		}),
	)
	if err != nil {
		b.Fatal(err)
	}
	if _, err := e.Init(context.Background()); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() {
		_ = e.Close(context.Background())
	})
	return e, ch
}

func BenchmarkResolveByID(b *testing.B) {
	root := wideProject(20, 50).Root()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tree.ResolveByID(root, "d19-49"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkApply(b *testing.B) {
	doc := &models.Document{ID: "d1"}
	doc.SetContent("\\documentclass{article}\n\\begin{document}\n\\end{document}", 0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		u := ot.Update{Doc: "d1", Version: doc.Version, Ops: []ot.Op{{P: 0, I: "%"}, {P: 0, D: "%"}}}
		if err := ot.Apply(doc, u); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkRename measures a notification from the channel to the tree.
func BenchmarkRename(b *testing.B) {
	_, ch := SetupMockEngine(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// error is ignored for benchmarking purposes.
		ch.Push("reciveEntityRename", "d10-25", fmt.Sprintf("s%d.tex", i)) //nolint:errcheck
	}
}

func BenchmarkOpenDocumentCached(b *testing.B) {
	e, _ := SetupMockEngine(b)
	ctx := context.Background()
	if _, err := e.OpenDocument(ctx, "/chapter19/section49.tex"); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.OpenDocument(ctx, "/chapter19/section49.tex"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSnapshot(b *testing.B) {
	e, _ := SetupMockEngine(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.Snapshot()
	}
}
