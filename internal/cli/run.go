package cli

import (
	stdcontext "context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jmharte/overseer/internal/config"
	"github.com/jmharte/overseer/internal/listener"
	"github.com/jmharte/overseer/internal/metrics"
	"github.com/jmharte/overseer/internal/runner"
	"github.com/jmharte/overseer/internal/task"
)

func newRunCmd(manifest *string) *cobra.Command {
	var (
		metricsListen string
		eventLog      string
		verbose       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run and supervise the task described by the manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := config.Load(*manifest)
			if err != nil {
				return err
			}

			logger, err := buildLogger(verbose)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			reg := listener.NewRegistry(logger)
			reg.Register(logListener(logger))
			if eventLog != "" {
				fl, err := newFileListener(eventLog)
				if err != nil {
					return err
				}
				defer fl.Close()
				reg.Register(fl)
			}

			if metricsListen != "" {
				srv := &http.Server{
					Addr:    metricsListen,
					Handler: promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}),
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Warn("metrics server stopped", zap.Error(err))
					}
				}()
				defer srv.Close()
			}

			runID := time.Now().UTC().Format("20060102T150405Z")
			t := task.FromSpec(&file.Task, runID)
			r := runner.New(t, file,
				runner.WithLogger(logger),
				runner.WithListeners(reg),
			)

			// Forward the CLI's own termination signals to the task group.
			go func() {
				<-cmd.Context().Done()
				r.Terminate()
			}()

			if err := r.Start(stdcontext.Background()); err != nil {
				return err
			}
			code, err := r.ReturnCode(stdcontext.Background())
			if err != nil {
				return err
			}
			if code != 0 {
				return &exitError{code: shellStatus(code)}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&eventLog, "event-log", "", "Append one line per lifecycle event to this file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	return cmd
}

// shellStatus maps the supervisor's return-code convention onto shell exit
// status: signalled deaths use the 128+signal convention.
func shellStatus(code int) int {
	if code < 0 {
		return 128 - code
	}
	return code
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// logListener mirrors the lifecycle event stream into the structured log.
func logListener(logger *zap.Logger) listener.Listener {
	return listener.Func(func(evt listener.Event) error {
		fields := []zap.Field{
			zap.String("task", evt.Task),
			zap.String("run", evt.Run),
		}
		if evt.HasCode {
			fields = append(fields, zap.Int("return_code", evt.ReturnCode))
		}
		if evt.Err != nil {
			fields = append(fields, zap.Error(evt.Err))
		}
		logger.Info("lifecycle "+string(evt.Type), fields...)
		return nil
	})
}

// fileListener appends one event name per line, giving external harnesses an
// ordered record of the lifecycle without touching supervisor internals.
type fileListener struct {
	f *os.File
}

func newFileListener(path string) (*fileListener, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &fileListener{f: f}, nil
}

func (l *fileListener) HandleEvent(evt listener.Event) error {
	_, err := fmt.Fprintln(l.f, string(evt.Type))
	return err
}

func (l *fileListener) Close() error {
	return l.f.Close()
}
