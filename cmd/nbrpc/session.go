package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	stdiorpc "github.com/xizhibei/go-stdio-rpc"
	"github.com/xizhibei/go-stdio-rpc/internal/config"
	"github.com/xizhibei/go-stdio-rpc/jsonrpc"
	"github.com/xizhibei/go-stdio-rpc/overview"
	"github.com/xizhibei/go-stdio-rpc/telemetry"
	"github.com/xizhibei/go-stdio-rpc/transcript"
)

func newHandshakeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "handshake",
		Short: "Initialize the peer, call one tool and print its response",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), c.app, func(ctx context.Context, s *stdiorpc.Session) error {
				initRes, err := s.Handshake(ctx)
				if err != nil {
					return err
				}
				if initRes != nil {
					zap.S().Debugf("Initialize response: %s", initRes.Raw)
				}

				res, err := s.CallTool(ctx, c.app.Session.ToolName, c.app.Session.ToolArguments)
				return printResponse(cmd.OutOrStdout(), res, err)
			})
		},
	}
}

func newOverviewCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Find or create the notebook, seed it and trigger an audio overview",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), c.app, func(ctx context.Context, s *stdiorpc.Session) error {
				if _, err := s.Handshake(ctx); err != nil {
					return err
				}

				result, err := overview.Run(ctx, s, c.app.Overview)
				if err != nil {
					return err
				}

				zap.S().Infof("Notebook %s (created: %v, source added: %v)",
					result.Notebook.ID, result.Created, result.SourceAdded)
				return printResponse(cmd.OutOrStdout(), result.Audio, nil)
			})
		},
	}
}

// withSession starts a session from app, runs fn and always closes the session.
// Transcript and metrics are written after the session is closed.
func withSession(ctx context.Context, app *config.App, fn func(ctx context.Context, s *stdiorpc.Session) error) (err error) {
	tel, err := telemetry.NewFromEnv(ctx, "nbrpc", version)
	if err != nil {
		return err
	}
	defer func() {
		if serr := tel.Shutdown(context.Background()); serr != nil {
			zap.S().Warnf("Telemetry shutdown: %v", serr)
		}
	}()

	options := []stdiorpc.Option{
		stdiorpc.WithName("nbrpc"),
		stdiorpc.WithTelemetry(tel),
		stdiorpc.WithLogTraffic(app.Debug),
	}

	var rec *transcript.Recorder
	if app.Session.TranscriptPath != "" {
		rec = transcript.NewRecorder()
		options = append(options, stdiorpc.WithTranscript(rec))
	}

	s, err := stdiorpc.Start(ctx, app.Session, options...)
	if err != nil {
		return err
	}

	var registry *prometheus.Registry
	if app.Metrics {
		registry = prometheus.NewRegistry()
		responseTime, errorCount := stdiorpc.NewMetrics("nbrpc")
		registry.MustRegister(responseTime, errorCount)
		s.RegisterMetrics(responseTime, errorCount)
	}

	defer func() {
		s.Close()

		if rec != nil {
			if serr := rec.Save(app.Session.TranscriptPath); serr != nil && err == nil {
				err = serr
			}
		}
		if registry != nil {
			if merr := dumpMetrics(os.Stderr, registry); merr != nil && err == nil {
				err = merr
			}
		}
	}()

	return fn(ctx, s)
}

// printResponse pretty prints res. A response that could not be decoded is
// printed raw along with the error.
func printResponse(w io.Writer, res *jsonrpc.Response, callErr error) error {
	var malformed *stdiorpc.MalformedResponseError
	if errors.As(callErr, &malformed) {
		fmt.Fprintf(w, "Raw response: %s\n", malformed.Raw)
		return callErr
	}
	if res == nil {
		return callErr
	}

	pretty, err := res.Pretty()
	if err != nil {
		fmt.Fprintf(w, "Raw response: %s\n", res.Raw)
		return err
	}
	fmt.Fprintf(w, "%s\n", pretty)
	return callErr
}

func dumpMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return errors.Wrap(err, "encode metrics")
		}
	}
	return nil
}
