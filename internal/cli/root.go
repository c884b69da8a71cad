// Package cli is the olsync command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/olsync/olsync"
	"github.com/olsync/olsync/internal/codec"
	"github.com/olsync/olsync/pkg/logger"
	"github.com/olsync/olsync/pkg/remote"
)

// Main runs the command line with args. It does not exit the process,
// so tests can call it directly.
func Main(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

type app struct {
	configFile string
	cfg        *Config
	logData    *logger.LogData
	logger     logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "olsync",
		Short:         "Mirror a remote LaTeX project",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logData != nil {
				return a.logData.Close()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default ./olsync.yaml)")
	flags.String("server", "", "server origin, e.g. https://www.overleaf.com")
	flags.String("api", "", "HTTP API origin when it differs from --server")
	flags.StringP("project", "p", "", "project id")
	flags.String("cookies", "", "session cookies")
	flags.String("csrf", "", "CSRF token")
	flags.String("codec", "", "channel codec: json or cbor")
	flags.String("log-file", "", "write logs to a rotated file instead of stderr")
	flags.String("log-level", "", "log level")

	root.AddCommand(
		newProjectsCmd(a),
		newTreeCmd(a),
		newCatCmd(a),
		newWatchCmd(a),
		newCompileCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.configFile, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	build := logger.NewBuild().FromBuffer(cmd.ErrOrStderr()).Level(level)
	if cfg.Log.File != "" {
		build = build.FromPath(cfg.Log.File)
	}
	a.logData, err = build.Make()
	if err != nil {
		return err
	}
	a.logger = logger.New(a.logData.Logger)
	return nil
}

func (a *app) remote() (*remote.Client, error) {
	return remote.New(a.cfg.APIURL, remote.WithLogger(a.logger))
}

func (a *app) codec() (codec.Codec, error) {
	switch a.cfg.Codec {
	case "", "json":
		return codec.JSON(), nil
	case "cbor":
		return codec.CBOR(), nil
	}
	return nil, fmt.Errorf("unknown codec %q", a.cfg.Codec)
}

var errNoProject = errors.New("project id not set (--project or OLSYNC_PROJECT)")

// engine opens an engine on projectID, or on the configured project when
// projectID is empty. Callers close it.
func (a *app) engine(projectID string) (*olsync.Engine, error) {
	if projectID == "" {
		projectID = a.cfg.Project
	}
	if projectID == "" {
		return nil, errNoProject
	}
	api, err := a.remote()
	if err != nil {
		return nil, err
	}
	c, err := a.codec()
	if err != nil {
		return nil, err
	}
	return olsync.New(a.cfg.Session, projectID,
		olsync.WithLogger(a.logger),
		olsync.WithRemote(api),
		olsync.WithCodec(c),
	)
}
