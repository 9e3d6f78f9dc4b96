package topology

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

const (
	// DefaultHostImage is used for hosts when no image is configured
	DefaultHostImage = "qos-experiment-host:latest"
)

// HostRuntime runs emulated hosts
type HostRuntime interface {
	// CreateHost creates and starts a host named name, returns the path of its network namespace
	CreateHost(ctx context.Context, name string) (string, error)
	// RemoveHost removes the host named name
	RemoveHost(ctx context.Context, name string) error
	// Exec starts cmd in host name
	Exec(ctx context.Context, name string, cmd []string, stdout io.Writer) (Process, error)
}

// NewDockerRuntime creates a new DockerRuntime, hosts run image and get sharedDir (if set) bind mounted
// at the same path which also becomes their working directory
func NewDockerRuntime(image, sharedDir string, log klog.Logger) (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create docker client")
	}
	if image == "" {
		image = DefaultHostImage
	}
	return &DockerRuntime{cli: cli, image: image, sharedDir: sharedDir, log: log}, nil
}

// DockerRuntime is a HostRuntime running hosts as privileged containers without networking
type DockerRuntime struct {
	cli       *client.Client
	image     string
	sharedDir string
	log       klog.Logger
}

// CreateHost implements HostRuntime interface
func (d *DockerRuntime) CreateHost(ctx context.Context, name string) (string, error) {
	d.log.V(2).Info("creating host container", "name", name, "image", d.image)

	config := &container.Config{
		Image:           d.image,
		Hostname:        name,
		Cmd:             []string{"sleep", "infinity"},
		NetworkDisabled: true,
		User:            "root",
	}
	hostConfig := &container.HostConfig{
		Privileged: true,
		Sysctls:    map[string]string{"net.ipv6.conf.all.disable_ipv6": "1"},
	}
	if d.sharedDir != "" {
		config.WorkingDir = d.sharedDir
		hostConfig.Binds = []string{d.sharedDir + ":" + d.sharedDir}
	}

	if _, err := d.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, name); err != nil {
		return "", errors.Wrapf(err, "failed to create container %s", name)
	}
	if err := d.cli.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return "", errors.Wrapf(err, "failed to start container %s", name)
	}

	res, err := d.cli.ContainerInspect(ctx, name)
	if err != nil {
		return "", errors.Wrapf(err, "failed to inspect container %s", name)
	}
	return fmt.Sprintf("/proc/%d/ns/net", res.State.Pid), nil
}

// RemoveHost implements HostRuntime interface
func (d *DockerRuntime) RemoveHost(ctx context.Context, name string) error {
	d.log.V(2).Info("removing host container", "name", name)
	return d.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
}

// Exec implements HostRuntime interface
func (d *DockerRuntime) Exec(ctx context.Context, name string, cmd []string, stdout io.Writer) (Process, error) {
	d.log.V(10).Info("executing", "host", name, "cmd", cmd)

	execResp, err := d.cli.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   d.sharedDir,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create exec on %s", name)
	}

	attach, err := d.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to start exec on %s", name)
	}

	execID := execResp.ID
	p := newProcess(func() error {
		// docker has no API to signal an exec, signal it from the host pid namespace
		inspect, err := d.cli.ContainerExecInspect(context.Background(), execID)
		if err != nil {
			return errors.Wrapf(err, "failed to inspect exec %s", execID)
		}
		if !inspect.Running || inspect.Pid == 0 {
			return nil
		}
		return signalTree(inspect.Pid, unix.SIGTERM)
	})

	go func() {
		defer attach.Close()
		if _, err := stdcopy.StdCopy(stdout, stdout, attach.Reader); err != nil {
			d.log.V(2).Info("exec output stream closed", "host", name, "error", err.Error())
		}
		inspect, err := d.cli.ContainerExecInspect(context.Background(), execID)
		if err != nil {
			p.exited(errors.Wrapf(err, "failed to inspect exec %s", execID))
			return
		}
		if inspect.ExitCode != 0 {
			p.exited(fmt.Errorf("command %v on %s exited with code %d", cmd, name, inspect.ExitCode))
			return
		}
		p.exited(nil)
	}()

	return p, nil
}
