package e2b

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"github.com/sakif/autopr/internal/sandbox"
)

// processStartProcedure is envd's server-streaming RPC for launching a process.
const processStartProcedure = "/process.Process/Start"

// The types below mirror envd's process.proto in its JSON form. Only the
// fields this package reads or writes are declared; unknown fields are
// ignored on decode.

type startRequest struct {
	Process processConfig `json:"process"`
}

type processConfig struct {
	Cmd  string            `json:"cmd"`
	Args []string          `json:"args,omitempty"`
	Envs map[string]string `json:"envs,omitempty"`
	Cwd  string            `json:"cwd,omitempty"`
}

type startResponse struct {
	Event processEvent `json:"event"`
}

// processEvent is a oneof: exactly one field is set per message.
type processEvent struct {
	Start     *startEvent `json:"start,omitempty"`
	Data      *dataEvent  `json:"data,omitempty"`
	End       *endEvent   `json:"end,omitempty"`
	Keepalive *struct{}   `json:"keepalive,omitempty"`
}

type startEvent struct {
	PID uint32 `json:"pid"`
}

// dataEvent byte fields are base64 in JSON, which encoding/json handles for []byte.
type dataEvent struct {
	Stdout []byte `json:"stdout,omitempty"`
	Stderr []byte `json:"stderr,omitempty"`
}

type endEvent struct {
	ExitCode int32  `json:"exitCode"`
	Exited   bool   `json:"exited"`
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
}

// jsonCodec lets connect carry plain Go structs. envd accepts the JSON
// encoding of its protobuf messages, so no generated code is needed.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

func newProcessClient(hc connect.HTTPClient, envdURL string) *connect.Client[startRequest, startResponse] {
	return connect.NewClient[startRequest, startResponse](
		hc,
		envdURL+processStartProcedure,
		connect.WithCodec(jsonCodec{}),
	)
}

// process adapts envd's event stream to sandbox.Process.
type process struct {
	stream *connect.ServerStreamForClient[startResponse]
	cancel context.CancelFunc
	pid    uint32
	stdout *sandbox.LineWriter
	stderr *sandbox.LineWriter
}

// awaitStart consumes events until envd reports the process started.
func (p *process) awaitStart() error {
	for p.stream.Receive() {
		ev := p.stream.Msg().Event
		if ev.Start != nil {
			p.pid = ev.Start.PID
			return nil
		}
		if ev.End != nil {
			return fmt.Errorf("e2b: process ended before starting: %s", endDescription(ev.End))
		}
	}
	if err := p.stream.Err(); err != nil {
		return fmt.Errorf("e2b: starting process: %w", err)
	}
	return errors.New("e2b: process stream closed before start")
}

// Wait drains the stream until the end event. Output is not classified
// here; the caller decides what the exit code and lines mean.
func (p *process) Wait(ctx context.Context) (*sandbox.ExecutionResult, error) {
	defer p.close()
	stop := context.AfterFunc(ctx, p.cancel)
	defer stop()

	var end *endEvent
	for end == nil && p.stream.Receive() {
		ev := p.stream.Msg().Event
		switch {
		case ev.Data != nil:
			if len(ev.Data.Stdout) > 0 {
				_, _ = p.stdout.Write(ev.Data.Stdout)
			}
			if len(ev.Data.Stderr) > 0 {
				_, _ = p.stderr.Write(ev.Data.Stderr)
			}
		case ev.End != nil:
			end = ev.End
		}
	}
	p.stdout.Flush()
	p.stderr.Flush()

	if end == nil {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("e2b: waiting for process %d: %w", p.pid, err)
		}
		if err := p.stream.Err(); err != nil {
			return nil, fmt.Errorf("e2b: waiting for process %d: %w", p.pid, err)
		}
		return nil, fmt.Errorf("e2b: process %d stream closed without an exit status", p.pid)
	}

	exitCode := int(end.ExitCode)
	stderr := p.stderr.Lines()
	if !end.Exited {
		// Killed by a signal: there is no real exit code, so make sure it
		// never reads as success, and keep envd's reason.
		if exitCode == 0 {
			exitCode = -1
		}
		if desc := endDescription(end); desc != "" {
			stderr = append(stderr, desc)
		}
	}

	return &sandbox.ExecutionResult{
		ExitCode: exitCode,
		Stdout:   p.stdout.Lines(),
		Stderr:   stderr,
	}, nil
}

func (p *process) close() {
	_ = p.stream.Close()
	p.cancel()
}

func endDescription(end *endEvent) string {
	switch {
	case end.Status != "" && end.Error != "":
		return end.Status + ": " + end.Error
	case end.Error != "":
		return end.Error
	default:
		return end.Status
	}
}
