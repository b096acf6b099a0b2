package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/data-power-io/noesis-las/connectors/las/internal/config"
	"github.com/data-power-io/noesis-las/connectors/las/internal/las"
	"github.com/data-power-io/noesis-las/libs/go/logging"
	"github.com/data-power-io/noesis-las/sdks/go/protocol"
	"github.com/data-power-io/noesis-las/sdks/go/schema"
	"github.com/data-power-io/noesis-las/sdks/go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const sessionCleanupInterval = time.Minute

var (
	logLevel  string
	logFormat string
	tenantID  string
)

// app holds what every subcommand needs.
type app struct {
	logger  *logging.ConnectorLogger
	handler *las.Handler
	server  *server.BaseServer
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level := logLevel
	if level == "" {
		level = cfg.GetString("LAS_LOG_LEVEL", "info")
	}
	format := logFormat
	if format == "" {
		format = cfg.GetString("LAS_LOG_FORMAT", "json")
	}
	logger, err := logging.NewLogger(logging.Config{
		Level:  level,
		Format: format,
		Fields: map[string]string{"service": "las-connector"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	handler, err := las.NewHandler(cfg, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create LAS handler: %w", err)
	}

	return &app{
		logger:  logger,
		handler: handler,
		server:  server.NewBaseServer(handler, logger.Logger),
	}, nil
}

func (a *app) close() {
	_ = a.handler.Close()
	_ = a.logger.Sync()
}

// withApp runs fn with a fresh app and a context canceled on SIGINT/SIGTERM.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		a.server.StartSessionCleanup(ctx, sessionCleanupInterval)
		return fn(ctx, a, args)
	}
}

func main() {
	root := &cobra.Command{
		Use:               "las-connector <command> [flags]",
		Short:             "LAS point cloud connector",
		Long:              `Discover, plan and read point records from a directory or bucket of LAS files.`,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceUsage:      true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (default $LAS_LOG_LEVEL or info)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format, json or console (default $LAS_LOG_FORMAT or json)")
	root.PersistentFlags().StringVar(&tenantID, "tenant", "", "Tenant id attached to metrics")

	root.AddCommand(newHealthCmd())
	root.AddCommand(newSchemaCmd())
	root.AddCommand(newPlanCmd())
	root.AddCommand(newScanCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the configured source is reachable",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			resp, err := a.server.Check(ctx, &protocol.CheckRequest{TenantID: tenantID})
			if err != nil {
				return err
			}
			if !resp.OK {
				a.logger.Error("Health check failed", zap.String("reason", resp.Message))
				return fmt.Errorf("health check failed: %s", resp.Message)
			}
			a.logger.Info("Health check passed")
			return nil
		}),
	}
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the unified schema of every LAS file in the source",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			resp, err := a.server.Discover(ctx, &protocol.DiscoverRequest{
				TenantID:       tenantID,
				IncludeSchemas: true,
			})
			if err != nil {
				return err
			}

			mgr := schema.NewArrowSchemaManager()
			for _, e := range resp.Entities {
				js, err := mgr.SchemaToJSON(e.Schema, e.SchemaID)
				if err != nil {
					return err
				}
				out := struct {
					Entity     string            `json:"entity"`
					Attributes map[string]string `json:"attributes"`
					Schema     json.RawMessage   `json:"schema"`
				}{e.Name, e.Attributes, json.RawMessage(js)}
				if err := writeJSON(os.Stdout, out); err != nil {
					return err
				}
			}
			return nil
		}),
	}
}

func newPlanCmd() *cobra.Command {
	var parallelism int32
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the splits a read of the source would use",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			sessionID, err := openSession(ctx, a)
			if err != nil {
				return err
			}
			defer a.server.Close(context.Background(), &protocol.CloseRequest{SessionID: sessionID})

			resp, err := a.server.Plan(ctx, &protocol.PlanRequest{
				SessionID:          sessionID,
				Entity:             las.EntityPoints,
				DesiredParallelism: parallelism,
			})
			if err != nil {
				return err
			}

			type splitOut struct {
				ID       string            `json:"id"`
				Rows     int64             `json:"estimated_rows"`
				Token    string            `json:"token"`
				Metadata map[string]string `json:"metadata"`
			}
			out := struct {
				TotalRows int64      `json:"total_rows"`
				Splits    []splitOut `json:"splits"`
			}{TotalRows: resp.TotalRows}
			for _, s := range resp.Splits {
				out.Splits = append(out.Splits, splitOut{s.SplitID, s.EstimatedRows, string(s.SplitToken), s.Metadata})
			}
			return writeJSON(os.Stdout, out)
		}),
	}
	cmd.Flags().Int32Var(&parallelism, "parallelism", 0, "Desired number of splits (default: by target split size)")
	return cmd
}

func newScanCmd() *cobra.Command {
	var (
		columns    []string
		output     string
		splitToken string
		resume     string
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Read point records and write them as an Arrow IPC stream",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			var w io.Writer = os.Stdout
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			sessionID, err := openSession(ctx, a)
			if err != nil {
				return err
			}
			defer a.server.Close(context.Background(), &protocol.CloseRequest{SessionID: sessionID})

			req := &protocol.ReadRequest{
				SessionID:  sessionID,
				Entity:     las.EntityPoints,
				Columns:    columns,
				SplitToken: []byte(splitToken),
			}
			if resume != "" {
				req.ResumeFrom = &protocol.Cursor{Token: []byte(resume)}
			}

			start := time.Now()
			stream := newIPCStream(ctx, w, a.logger.Logger)
			readErr := a.server.Read(req, stream)
			if err := stream.Close(); err != nil && readErr == nil {
				readErr = err
			}
			if stream.cursor != nil {
				a.logger.Info("Scan checkpoint", zap.String("resume_cursor", string(stream.cursor.Token)))
			}
			if readErr != nil {
				return readErr
			}

			a.logger.LogScanSummary(las.EntityPoints, stream.rows, stream.batches, time.Since(start))
			return nil
		}),
	}
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Columns to read (default: all)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file, - for stdout")
	cmd.Flags().StringVar(&splitToken, "split", "", "Read only the split with this token (from plan)")
	cmd.Flags().StringVar(&resume, "resume", "", "Resume cursor from an earlier scan")
	return cmd
}

func openSession(ctx context.Context, a *app) (string, error) {
	resp, err := a.server.Open(ctx, &protocol.OpenRequest{TenantID: tenantID})
	if err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
