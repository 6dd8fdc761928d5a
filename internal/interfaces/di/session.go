package di

import (
	"context"
	"fmt"
	"io"
	"time"

	"toolgate.dev/cli/internal/aggregator"
	"toolgate.dev/cli/internal/backend"
	"toolgate.dev/cli/internal/core/ports"
	"toolgate.dev/cli/internal/dispatch"
)

// Session is one proxy run: a started backend, loaded plugins, and a
// dispatcher bridging the client on stdin/stdout to the aggregated tool
// surface.
type Session struct {
	container  *Container
	client     *backend.Client
	aggregator *aggregator.Aggregator
}

// Run starts the backend, loads enabled plugins, and serves the protocol
// on the given streams until the client closes stdin or ctx is cancelled.
// The backend failing to start is fatal; plugin load failures are not.
func (s *Session) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	started := time.Now()

	if err := s.client.Start(ctx); err != nil {
		return fmt.Errorf("starting backend: %w", err)
	}
	defer func() {
		if err := s.client.Stop(); err != nil {
			s.container.Logger.LogError(err, "stopping backend", nil)
		}
	}()

	loaded, err := s.container.Loader.LoadAll(ctx)
	if err != nil {
		s.container.Logger.LogError(err, "loading plugins", nil)
	}
	s.container.Logger.Log(ports.LogLevelInfo, "session ready", map[string]interface{}{
		"backend": s.client.ServerInfo().Name,
		"plugins": loaded,
	})

	dispatcher := dispatch.NewDispatcher(
		s.aggregator,
		dispatch.ServerIdentity{Name: "toolgate", Version: s.container.Version},
		out,
		s.container.Logger,
	)

	runErr := dispatcher.Run(ctx, in)
	s.recordSummary(time.Since(started), dispatcher.CallCount(), dispatcher.TokensEstimate())
	return runErr
}

// recordSummary writes the end-of-session row when analytics is enabled.
func (s *Session) recordSummary(duration time.Duration, totalCalls, tokensEstimate int) {
	if s.container.Recorder == nil {
		return
	}
	s.container.Recorder.RecordSession(ports.SessionRecord{
		Timestamp:      time.Now().UTC(),
		Duration:       duration,
		TotalCalls:     totalCalls,
		TokensEstimate: int64(tokensEstimate),
	})
}
