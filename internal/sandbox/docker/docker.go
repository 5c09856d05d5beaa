// Package docker implements sandbox.Provider with local Docker containers.
//
// It exists for development: the same script runs against a container on the
// developer's machine instead of an E2B sandbox, with no provider account.
// A session is one container kept alive with `sleep infinity`; the script is
// copied in as a tar archive and run with `docker exec`.
package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/autopr/internal/sandbox"
)

var _ sandbox.Provider = (*Provider)(nil)

// Provider creates container-backed sessions.
type Provider struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pulled sync.Map // image name -> struct{}
}

// New creates a Docker Provider and checks the daemon is reachable.
func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}

	return &Provider{
		cli:    cli,
		config: cfg,
		logger: logger,
	}, nil
}

// Close releases the docker client.
func (p *Provider) Close() error {
	return p.cli.Close()
}

// Create starts a container from the image named by template. The API key is
// meaningless for a local daemon and is ignored.
func (p *Provider) Create(ctx context.Context, template, _ string) (sandbox.Session, error) {
	img := template
	if img == "" {
		img = p.config.DefaultImage
	}
	if err := p.ensureImage(ctx, img); err != nil {
		return nil, err
	}

	hostConfig := &container.HostConfig{
		NetworkMode: container.NetworkMode(p.config.NetworkMode),
		Resources: container.Resources{
			Memory:   p.config.MemoryLimit,
			NanoCPUs: int64(p.config.CPULimit * 1e9),
		},
		AutoRemove: false,
	}

	resp, err := p.cli.ContainerCreate(ctx, &container.Config{
		Image: img,
		Cmd:   []string{"sleep", "infinity"},
		User:  p.config.User,
	}, hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("ContainerCreate failed: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.removeContainer(resp.ID)
		return nil, fmt.Errorf("ContainerStart failed: %w", err)
	}

	p.logger.Debug("docker session started", slog.String("container", resp.ID), slog.String("image", img))
	return &Session{cli: p.cli, id: resp.ID}, nil
}

// ensureImage pulls img once per process lifetime.
func (p *Provider) ensureImage(ctx context.Context, img string) error {
	if _, ok := p.pulled.Load(img); ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.PullTimeout)
	defer cancel()

	p.logger.Info("ensuring docker image is available", slog.String("image", img))
	reader, err := p.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", img, err)
	}
	defer reader.Close()
	// Read everything to block until the pull is complete
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", img, err)
	}

	p.pulled.Store(img, struct{}{})
	return nil
}

// removeContainer force removes a container by ID.
func (p *Provider) removeContainer(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = p.cli.ContainerRemove(ctx, id, container.RemoveOptions{
		Force: true,
	})
}

var _ sandbox.Session = (*Session)(nil)

// Session is one running container.
type Session struct {
	cli *client.Client
	id  string
}

func (s *Session) ID() string { return s.id }

// WriteFile copies content into the container. Docker only accepts tar
// archives, so the file is wrapped in a one-entry archive.
func (s *Session) WriteFile(ctx context.Context, dst string, content []byte) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name:    path.Base(dst),
		Mode:    0o755,
		Size:    int64(len(content)),
		ModTime: time.Now(),
	}); err != nil {
		return fmt.Errorf("docker: archiving %s: %w", dst, err)
	}
	if _, err := tw.Write(content); err != nil {
		return fmt.Errorf("docker: archiving %s: %w", dst, err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("docker: archiving %s: %w", dst, err)
	}

	if err := s.cli.CopyToContainer(ctx, s.id, path.Dir(dst), &buf, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("docker: copying %s: %w", dst, err)
	}
	return nil
}

// Start runs cfg.Cmd with docker exec and streams its output.
func (s *Session) Start(ctx context.Context, cfg sandbox.ProcessConfig) (sandbox.Process, error) {
	execConfig := container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Env:          sandbox.EnvList(cfg.Env),
		WorkingDir:   cfg.Cwd,
		Cmd:          sandbox.BashCommand(cfg.Cmd),
	}

	execResp, err := s.cli.ContainerExecCreate(ctx, s.id, execConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attachResp, err := s.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to exec: %w", err)
	}

	proc := &process{
		cli:    s.cli,
		execID: execResp.ID,
		stdout: sandbox.NewLineWriter(cfg.OnStdout),
		stderr: sandbox.NewLineWriter(cfg.OnStderr),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(proc.done)
		defer attachResp.Close()
		// Use stdcopy to demultiplex stdout from stderr
		_, proc.copyErr = stdcopy.StdCopy(proc.stdout, proc.stderr, attachResp.Reader)
		proc.stdout.Flush()
		proc.stderr.Flush()
	}()

	return proc, nil
}

// Close force-removes the container.
func (s *Session) Close(ctx context.Context) error {
	if err := s.cli.ContainerRemove(ctx, s.id, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("docker: removing container %s: %w", s.id, err)
	}
	return nil
}

type process struct {
	cli     *client.Client
	execID  string
	stdout  *sandbox.LineWriter
	stderr  *sandbox.LineWriter
	done    chan struct{}
	copyErr error
}

// execPollInterval is how often Wait re-inspects an exec whose output stream
// has closed but which the daemon still reports as running.
const execPollInterval = 50 * time.Millisecond

// Wait blocks until the output stream closes, then asks the daemon for the
// exit code.
func (p *process) Wait(ctx context.Context) (*sandbox.ExecutionResult, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		return nil, fmt.Errorf("docker: waiting for exec %s: %w", p.execID, ctx.Err())
	}
	if p.copyErr != nil {
		return nil, fmt.Errorf("docker: reading exec output: %w", p.copyErr)
	}

	exitCode, err := p.exitCode(ctx)
	if err != nil {
		return nil, err
	}

	return &sandbox.ExecutionResult{
		ExitCode: exitCode,
		Stdout:   p.stdout.Lines(),
		Stderr:   p.stderr.Lines(),
	}, nil
}

// exitCode inspects the exec until the daemon marks it stopped. The attach
// stream can close slightly before that, and a running exec reports 0.
func (p *process) exitCode(ctx context.Context) (int, error) {
	ticker := time.NewTicker(execPollInterval)
	defer ticker.Stop()

	for {
		inspectResp, err := p.cli.ContainerExecInspect(ctx, p.execID)
		if err != nil {
			return 0, fmt.Errorf("docker: inspecting exec %s: %w", p.execID, err)
		}
		if !inspectResp.Running {
			return inspectResp.ExitCode, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return 0, fmt.Errorf("docker: waiting for exec %s to stop: %w", p.execID, ctx.Err())
		}
	}
}
