package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/siteadmin/content-services/internal/bootstrap"
	"github.com/siteadmin/content-services/internal/config"
	"github.com/siteadmin/content-services/internal/contentdata"
	"github.com/siteadmin/content-services/internal/contentsync"
	"github.com/siteadmin/content-services/internal/page"
	"github.com/siteadmin/content-services/internal/runlog"
	"github.com/siteadmin/content-services/pkg/logger"
	"github.com/spf13/cobra"
)

// errInconsistent makes `check` exit non-zero without printing a second error.
var errInconsistent = errors.New("stores are inconsistent")

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "contentsync",
		Short:         "Reconcile page content between files and the database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	withApp := func(fn func(ctx context.Context, app *bootstrap.App) (interface{}, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger.Init(cfg.Server.LogLevel)
			ctx := cmd.Context()
			app, err := bootstrap.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()
			result, runErr := fn(ctx, app)
			if runErr != nil && !errors.Is(runErr, errInconsistent) {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", runErr)
				return runErr
			}
			if err := printJSON(out, result); err != nil {
				return err
			}
			return runErr
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "files-to-db",
		Short: "Upsert every page file into the database",
		RunE: withApp(func(ctx context.Context, app *bootstrap.App) (interface{}, error) {
			rep, _, err := runlog.Record(ctx, app.Runs, "filesToDatabase", app.Sync.SyncAllFilesToDatabase)
			return rep, err
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "db-to-files",
		Short: "Rewrite page files from the database (writable deployments only)",
		RunE: withApp(func(ctx context.Context, app *bootstrap.App) (interface{}, error) {
			rep, _, err := runlog.Record(ctx, app.Runs, "databaseToFiles", app.Sync.SyncDatabaseToFiles)
			return rep, err
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Compare both stores and exit non-zero on any discrepancy",
		RunE: withApp(func(ctx context.Context, app *bootstrap.App) (interface{}, error) {
			rep, err := app.Sync.ValidateConsistency(ctx)
			if err != nil {
				return nil, err
			}
			if !rep.Consistent {
				return rep, errInconsistent
			}
			return rep, nil
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "backup",
		Short: "Copy every database record into the backup bucket",
		RunE: withApp(func(ctx context.Context, app *bootstrap.App) (interface{}, error) {
			archive, err := app.Archive(ctx)
			if err != nil {
				return nil, err
			}
			rep, _, err := runlog.Record(ctx, app.Runs, "backup", func(ctx context.Context) (*contentsync.Report, error) {
				return app.Sync.Backup(ctx, archive)
			})
			return rep, err
		}),
	})

	var openingsFile string
	jobs := &cobra.Command{
		Use:   "job-openings",
		Short: "Upsert the job openings listed in a JSON file",
		RunE: withApp(func(ctx context.Context, app *bootstrap.App) (interface{}, error) {
			openings, err := readOpenings(openingsFile)
			if err != nil {
				return nil, err
			}
			return app.ContentData.SyncJobOpeningsToDatabase(ctx, openings), nil
		}),
	}
	jobs.Flags().StringVar(&openingsFile, "file", "", "JSON file holding an array of openings or a document with a jobOpenings field")
	_ = jobs.MarkFlagRequired("file")
	root.AddCommand(jobs)

	return root
}

// readOpenings accepts either a bare array or a reference-data document.
func readOpenings(path string) ([]page.Content, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc, ok := v.(map[string]interface{}); ok {
		v = doc[contentdata.KeyJobOpenings]
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s: expected an array of job openings", path)
	}
	return contentdata.OpeningsFrom(list), nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
