package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/olsync/olsync"
	"github.com/olsync/olsync/pkg/events"
	"github.com/olsync/olsync/pkg/models"
	"github.com/olsync/olsync/pkg/tree"
)

func newProjectsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List the projects of the session's user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.remote()
			if err != nil {
				return err
			}
			projects, err := api.ListProjects(cmd.Context(), a.cfg.Identity)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tACCESS")
			for _, p := range projects {
				if p.Trashed {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, p.AccessLevel)
			}
			return w.Flush()
		},
	}
}

// node is the YAML form of a tree entity.
type node struct {
	Name     string  `yaml:"name"`
	ID       string  `yaml:"id"`
	Kind     string  `yaml:"kind"`
	Children []*node `yaml:"children,omitempty"`
}

func toNode(f *models.Folder) *node {
	n := &node{Name: f.Name, ID: f.ID, Kind: models.KindFolder.String()}
	for _, leaf := range f.Leaves() {
		n.Children = append(n.Children, &node{Name: leaf.EntityName(), ID: leaf.EntityID(), Kind: leaf.Kind().String()})
	}
	for _, sub := range f.Folders {
		n.Children = append(n.Children, toNode(sub))
	}
	return n
}

func newTreeCmd(a *app) *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the project tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), "", func(e *olsync.Engine) error {
				p, err := e.Init(cmd.Context())
				if err != nil {
					return err
				}
				return printTree(cmd.OutOrStdout(), p, asYAML)
			})
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print as YAML")
	return cmd
}

func printTree(out io.Writer, p *models.Project, asYAML bool) error {
	if asYAML {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(toNode(p.Root())); err != nil {
			return err
		}
		return enc.Close()
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	tree.Walk(p.Root(), func(e models.Entity, path string) bool {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Kind(), e.EntityID(), path)
		return true
	})
	return w.Flush()
}

func newCatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path | overleaf://server/project/path?project=id>",
		Short: "Print a document or an output file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, p, err := parseTarget(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd.Context(), projectID, func(e *olsync.Engine) error {
				text, err := e.OpenDocument(cmd.Context(), p)
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), text)
				return err
			})
		},
	}
}

// parseTarget accepts a project path or a locator URI.
func parseTarget(arg string) (projectID, path string, err error) {
	if !strings.HasPrefix(arg, tree.LocatorScheme+"://") {
		return "", arg, nil
	}
	loc, err := tree.ParseLocator(arg)
	if err != nil {
		return "", "", err
	}
	return loc.ProjectID, loc.Path(), nil
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print server notifications until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withEngine(ctx, "", func(e *olsync.Engine) error {
				out := cmd.OutOrStdout()
				set := events.HandlerSet{}
				for _, kind := range events.Kinds() {
					set[kind] = func(n events.Notification) {
						printNotification(out, n)
					}
				}
				e.Subscribe(set)

				if _, err := e.Init(ctx); err != nil {
					return err
				}
				<-ctx.Done()
				return nil
			})
		},
	}
}

func printNotification(out io.Writer, n events.Notification) {
	body, err := json.Marshal(n)
	if err != nil {
		body = []byte(fmt.Sprintf("%q", err.Error()))
	}
	fmt.Fprintf(out, "%s %s\n", n.Kind(), body)
}

func newCompileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compile",
		Short: "Compile the project and list the output files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), "", func(e *olsync.Engine) error {
				res, err := e.Compile(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "status\t%s\n", res.Status)
				for _, o := range res.OutputFiles {
					fmt.Fprintf(w, "%s\t/%s\n", o.Type, o.Path)
				}
				return w.Flush()
			})
		},
	}
}

func (a *app) withEngine(ctx context.Context, projectID string, fn func(e *olsync.Engine) error) error {
	e, err := a.engine(projectID)
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(context.WithoutCancel(ctx)); err != nil {
			a.logger.Debug("closing engine", "error", err)
		}
	}()
	return fn(e)
}
