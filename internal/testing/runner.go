package testing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mcptape/internal/errdefs"
	"mcptape/internal/mcpclient"
	"mcptape/internal/registry"
	"mcptape/internal/retry"
	"mcptape/internal/tape"
	"mcptape/pkg/logging"
)

// Override forces the record/replay flags of every test in a run.
type Override string

const (
	// OverrideNone keeps the flags from the spec.
	OverrideNone Override = ""
	// OverrideRecord calls the live server and records every response.
	OverrideRecord Override = "record"
	// OverrideReplay answers every call from the registry.
	OverrideReplay Override = "replay"
)

// OverrideFor maps the run command flags to an override. Asking for both
// records.
func OverrideFor(record, replay bool) Override {
	switch {
	case record && replay:
		logging.Warn("Batch", "Both --record and --replay given, recording")
		return OverrideRecord
	case record:
		return OverrideRecord
	case replay:
		return OverrideReplay
	}
	return OverrideNone
}

// Apply returns the effective use/record flags under the override.
func (o Override) Apply(useMocks, recordMocks bool) (bool, bool) {
	switch o {
	case OverrideRecord:
		return false, true
	case OverrideReplay:
		return true, false
	}
	return useMocks, recordMocks
}

// Dialer opens a connection to the server named by a spec identifier.
type Dialer func(ctx context.Context, serverID string) (mcpclient.Client, error)

// RunOptions tunes one batch run.
type RunOptions struct {
	// SessionID names the run; a random UUID is used when empty
	SessionID string
	Override  Override
	// Fallback lets a replay miss fall through to a live call
	Fallback bool
	// Parallel caps concurrent calls; zero or less means unbounded
	Parallel int
}

// Runner executes test specs. Store, Schemas and Retry are optional: without
// a store nothing is recorded or persisted, without schemas only the built-in
// ones are known, and without a retry controller every call is made once.
type Runner struct {
	Store   *registry.Store
	Schemas *SchemaRegistry
	Retry   *retry.Controller
	Dial    Dialer
	// DefaultTimeoutSec applies to tests that set no timeout_sec
	DefaultTimeoutSec int
}

type job struct {
	server string
	client mcpclient.Client
	test   TestCase
}

// Run calls every test against every server of the spec and validates the
// responses. Individual test failures are part of the returned record; only
// configuration errors and cancellation fail the run, and an interrupted run
// is not persisted.
func (r *Runner) Run(ctx context.Context, spec *TestSpec, opts RunOptions) (*registry.RunRecord, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if r.Dial == nil && r.needsServer(spec, opts) {
		return nil, errdefs.Configurationf("no dialer configured for live calls")
	}

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	servers := spec.ServerIDs()
	start := time.Now()

	logging.Info("Batch", "Starting run %s: %d tests against %d servers", sessionID, len(spec.Tests), len(servers))

	clients := make(map[string]*mcpclient.Lazy, len(servers))
	defer func() {
		for id, c := range clients {
			if err := c.Close(); err != nil {
				logging.Warn("Batch", "Closing connection to %s: %v", id, err)
			}
		}
	}()

	jobs := make([]job, 0, len(servers)*len(spec.Tests))
	for _, id := range servers {
		c, ok := clients[id]
		if !ok {
			c = mcpclient.NewLazy(r.dialer(id))
			clients[id] = c
		}
		for _, tc := range spec.Tests {
			jobs = append(jobs, job{server: id, client: c, test: tc})
		}
	}

	results := make([]registry.TestResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	if opts.Parallel > 0 {
		g.SetLimit(opts.Parallel)
	}
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.runOne(gctx, spec, j, opts)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			logging.Warn("Batch", "Run %s interrupted, not saving it", sessionID)
			return nil, fmt.Errorf("run %s interrupted: %w", sessionID, ctxErr)
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		logging.Warn("Batch", "Run %s interrupted, not saving it", sessionID)
		return nil, fmt.Errorf("run %s interrupted: %w", sessionID, err)
	}

	run := &registry.RunRecord{
		SessionID:  sessionID,
		Timestamp:  start.UTC(),
		SpecName:   spec.AgentName,
		Server:     strings.Join(servers, ", "),
		Status:     registry.RunCompleted,
		DurationMs: roundMs(time.Since(start)),
		Results:    results,
		Metadata: map[string]any{
			"servers":  servers,
			"tests":    len(spec.Tests),
			"override": string(opts.Override),
			"parallel": opts.Parallel,
			"fallback": opts.Fallback,
		},
	}

	passed, total := run.Counts()
	logging.Info("Batch", "Run %s completed: %d/%d tests passed", sessionID, passed, total)

	if r.Store != nil {
		path, err := r.Store.SaveRun(*run)
		if err != nil {
			logging.Error("Batch", err, "Failed to save run %s", sessionID)
		} else {
			logging.Debug("Batch", "Saved run %s to %s", sessionID, path)
		}
	}
	return run, nil
}

// dialer returns the lazy dial function for one server. The connection
// outlives the call that triggered it, so it is dialed on a context that is
// not cancelled with that call.
func (r *Runner) dialer(serverID string) mcpclient.DialFunc {
	return func(ctx context.Context) (mcpclient.Client, error) {
		if r.Dial == nil {
			return nil, errdefs.Configurationf("no dialer configured to reach %s", serverID)
		}
		return r.Dial(context.WithoutCancel(ctx), serverID)
	}
}

// needsServer reports whether any test can reach a live server.
func (r *Runner) needsServer(spec *TestSpec, opts RunOptions) bool {
	for _, tc := range spec.Tests {
		if tc.Mock != nil {
			continue
		}
		useMocks, _ := opts.Override.Apply(tc.effective(spec))
		if !useMocks || opts.Fallback {
			return true
		}
	}
	return false
}

func (r *Runner) runOne(ctx context.Context, spec *TestSpec, j job, opts RunOptions) (registry.TestResult, error) {
	tc := j.test
	useMocks, recordMocks := opts.Override.Apply(tc.effective(spec))

	timeout := tc.Timeout(r.DefaultTimeoutSec)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	inv := &tape.Invoker{Client: j.client, Store: r.Store, Retry: r.Retry}
	out, err := inv.Invoke(callCtx, tape.Call{
		Category:   registry.CategoryTools,
		Name:       tc.Tool,
		Arguments:  tc.Arguments,
		InlineMock: tc.Mock,
	}, tape.Options{UseMocks: useMocks, RecordMocks: recordMocks, Fallback: opts.Fallback})

	if err != nil {
		if errdefs.IsConfiguration(err) {
			return registry.TestResult{}, fmt.Errorf("test %s on %s: %w", tc.Name, j.server, err)
		}
		if ctx.Err() != nil {
			return registry.TestResult{}, ctx.Err()
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = errdefs.Transient("call tool "+tc.Tool, errdefs.CauseTimeout, fmt.Errorf("timeout after %s", timeout))
		}
	}

	status, failures := Validate(CallOutcome{Response: out.Response, Latency: out.Latency, Err: err}, tc, r.Schemas)
	if failures == nil {
		failures = []string{}
	}
	response := out.Response
	if err != nil {
		response = map[string]any{"error": err.Error()}
	}

	res := registry.TestResult{
		TestName:  tc.Name,
		Server:    j.server,
		Tool:      tc.Tool,
		Arguments: tc.Arguments,
		Response:  response,
		Status:    status,
		LatencyMs: roundMs(out.Latency),
		Mode:      out.Mode,
		Failures:  failures,
		Expected:  tc.Expected(),
	}
	if res.Passed() {
		logging.Info("Batch", "[%s] %s: %s (%.0fms, %s)", j.server, tc.Name, status, res.LatencyMs, res.Mode)
	} else {
		logging.Warn("Batch", "[%s] %s: %s (%s)", j.server, tc.Name, status, strings.Join(failures, "; "))
	}
	return res, nil
}

// roundMs converts d to milliseconds rounded to two decimals.
func roundMs(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	return math.Round(ms*100) / 100
}
