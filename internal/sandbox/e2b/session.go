package e2b

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"connectrpc.com/connect"

	"github.com/sakif/autopr/internal/sandbox"
)

var _ sandbox.Session = (*Session)(nil)

// Session is one live E2B sandbox.
type Session struct {
	client      *Client
	id          string
	apiKey      string
	envdURL     string
	accessToken string
}

func (s *Session) ID() string { return s.id }

// WriteFile uploads content to path via envd's multipart /files endpoint.
func (s *Session) WriteFile(ctx context.Context, path string, content []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.client.config.RequestTimeout)
	defer cancel()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", path)
	if err != nil {
		return fmt.Errorf("e2b: building upload: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("e2b: building upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("e2b: building upload: %w", err)
	}

	query := url.Values{}
	query.Set("path", path)
	query.Set("username", s.client.config.User)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.envdURL+"/files?"+query.Encode(), &body)
	if err != nil {
		return fmt.Errorf("e2b: building upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	s.setEnvdHeaders(req.Header)

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("e2b: uploading %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return fmt.Errorf("e2b: uploading %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}

// Start launches cfg.Cmd under bash and returns once envd confirms the
// process started.
func (s *Session) Start(ctx context.Context, cfg sandbox.ProcessConfig) (sandbox.Process, error) {
	// The stream must outlive Start, so it gets its own cancel which Wait
	// ties to its caller's context.
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	argv := sandbox.BashCommand(cfg.Cmd)
	req := connect.NewRequest(&startRequest{
		Process: processConfig{
			Cmd:  argv[0],
			Args: argv[1:],
			Envs: cfg.Env,
			Cwd:  cfg.Cwd,
		},
	})
	s.setEnvdHeaders(req.Header())
	req.Header().Set("Keepalive-Ping-Interval", "50")

	stream, err := newProcessClient(s.client.httpClient, s.envdURL).CallServerStream(streamCtx, req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("e2b: starting process: %w", err)
	}

	proc := &process{
		stream: stream,
		cancel: cancel,
		stdout: sandbox.NewLineWriter(cfg.OnStdout),
		stderr: sandbox.NewLineWriter(cfg.OnStderr),
	}
	if err := proc.awaitStart(); err != nil {
		proc.close()
		return nil, err
	}
	return proc, nil
}

// Close kills the sandbox. It uses the API key the session was created with.
func (s *Session) Close(ctx context.Context) error {
	return s.client.kill(ctx, s.id, s.apiKey)
}

// setEnvdHeaders authenticates a request to envd as the configured user.
func (s *Session) setEnvdHeaders(h http.Header) {
	h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(s.client.config.User+":")))
	if s.accessToken != "" {
		h.Set("X-Access-Token", s.accessToken)
	}
	h.Set("E2b-Sandbox-Id", s.id)
	h.Set("E2b-Sandbox-Port", strconv.Itoa(s.client.config.EnvdPort))
}
