// Package tape decides, for every protocol call, whether the answer comes from
// an inline mock, a recording, or the live server, and records live answers
// when asked to.
package tape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"mcptape/internal/errdefs"
	"mcptape/internal/mcpclient"
	"mcptape/internal/registry"
	"mcptape/internal/retry"
	"mcptape/pkg/logging"
)

// Call is one protocol call. For resources Name is the URI.
type Call struct {
	Category  registry.Category
	Name      string
	Arguments map[string]any
	// InlineMock, when non-nil, is returned as the response without touching
	// the server or the registry.
	InlineMock any
}

// Options selects the record/replay behaviour of a call.
type Options struct {
	UseMocks    bool
	RecordMocks bool
	// Fallback lets a replay miss fall through to a live call.
	Fallback bool
}

// Outcome is the result of Invoke. Response is the serialized protocol
// response as it would be stored in the registry.
type Outcome struct {
	Response any
	Mode     registry.Mode
	Latency  time.Duration
}

// Invoker routes calls. Store and Retry are optional.
type Invoker struct {
	Client mcpclient.Client
	Store  *registry.Store
	Retry  *retry.Controller
}

// Invoke resolves a call with the precedence inline mock, recording, live
// server. On error the outcome carries mode "error" and the elapsed time.
func (inv *Invoker) Invoke(ctx context.Context, call Call, opts Options) (Outcome, error) {
	start := time.Now()
	if call.Category == "" {
		call.Category = registry.CategoryTools
	}

	if call.InlineMock != nil {
		logging.Debug("Tape", "Using inline mock for %s %s", call.Category, call.Name)
		return Outcome{Response: call.InlineMock, Mode: registry.ModeMock, Latency: time.Since(start)}, nil
	}

	if opts.UseMocks {
		if inv.Store == nil {
			return failed(start), errdefs.Configurationf("replay requested for %s but no registry is configured", call.Name)
		}
		resp, err := inv.Store.LoadMock(call.Category, call.Name, call.Arguments)
		if err == nil {
			logging.Debug("Tape", "Replaying %s %s", call.Category, call.Name)
			return Outcome{Response: resp, Mode: registry.ModeReplay, Latency: time.Since(start)}, nil
		}
		if !opts.Fallback {
			return failed(start), err
		}
		logging.Warn("Tape", "No recording for %s %s, falling back to a live call", call.Category, call.Name)
	}

	resp, err := inv.live(ctx, call)
	if err != nil {
		return failed(start), err
	}
	latency := time.Since(start)

	if opts.RecordMocks {
		if inv.Store == nil {
			logging.Warn("Tape", "Recording requested for %s but no registry is configured", call.Name)
		} else if _, err := inv.Store.SaveMock(call.Category, call.Name, call.Arguments, resp); err != nil {
			logging.Error("Tape", err, "Failed to record %s %s", call.Category, call.Name)
		} else {
			return Outcome{Response: resp, Mode: registry.ModeRecorded, Latency: latency}, nil
		}
	}
	return Outcome{Response: resp, Mode: registry.ModeReal, Latency: latency}, nil
}

func failed(start time.Time) Outcome {
	return Outcome{Mode: registry.ModeError, Latency: time.Since(start)}
}

func (inv *Invoker) live(ctx context.Context, call Call) (any, error) {
	if inv.Client == nil {
		return nil, errdefs.Configurationf("live call to %s requested but no server connection is configured", call.Name)
	}
	if inv.Retry == nil {
		return inv.once(ctx, call)
	}
	op := fmt.Sprintf("%s %s", call.Category, call.Name)
	return retry.DoValue(ctx, inv.Retry, op, func(ctx context.Context) (any, error) {
		return inv.once(ctx, call)
	})
}

func (inv *Invoker) once(ctx context.Context, call Call) (any, error) {
	switch call.Category {
	case registry.CategoryTools:
		res, err := inv.Client.CallTool(ctx, call.Name, call.Arguments)
		if err != nil {
			return nil, err
		}
		if res.IsError {
			return nil, errdefs.Permanent("call tool "+call.Name, errdefs.CauseTool, errors.New(resultText(res)))
		}
		return serialize(res)
	case registry.CategoryPrompts:
		res, err := inv.Client.GetPrompt(ctx, call.Name, StringArgs(call.Arguments))
		if err != nil {
			return nil, err
		}
		return serialize(res)
	case registry.CategoryResources:
		res, err := inv.Client.ReadResource(ctx, call.Name)
		if err != nil {
			return nil, err
		}
		return serialize(res)
	default:
		return nil, errdefs.Configurationf("unknown call category %q", call.Category)
	}
}

// StringArgs converts arguments for prompts, which only accept strings.
// Non-string values are JSON encoded.
func StringArgs(args map[string]any) map[string]string {
	if args == nil {
		return nil
	}
	out := make(map[string]string, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			out[k] = fmt.Sprint(v)
			continue
		}
		out[k] = string(b)
	}
	return out
}

func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
		}
	}
	if len(parts) == 0 {
		return "tool reported an error"
	}
	return strings.Join(parts, "\n")
}

// serialize converts a typed protocol response to its generic JSON form, the
// same form a recording replays as.
func serialize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errdefs.Permanent("encode response", errdefs.CauseUnknown, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errdefs.Permanent("decode response", errdefs.CauseUnknown, err)
	}
	return out, nil
}
