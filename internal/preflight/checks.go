package preflight

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"kiln/internal/config"
	"kiln/internal/deps"
	"kiln/internal/storage"
)

const endpointProbeTimeout = 5 * time.Second

// CheckEngineInstall verifies the engine directory and its entry script
// exist where the configuration points.
func CheckEngineInstall(cfg *config.Config) Result {
	const name = "Engine install"

	info, err := os.Stat(cfg.Engine.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", cfg.Engine.Dir)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.Engine.Dir, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", cfg.Engine.Dir)}
	}

	script := cfg.EngineMainScript()
	scriptInfo, err := os.Stat(script)
	if err != nil || scriptInfo.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: entry script missing)", script)}
	}
	return Result{Name: name, Passed: true, Detail: script}
}

// CheckDirectoryAccess verifies that the directory exists and is readable
// and writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckVolumeMount reports whether the shared volume is attached. A missing
// mount fails the check only when artifact storage resolves to volume mode;
// model provisioning falls back to local directories on its own, but
// artifacts written under an unmounted path land on container disk and die
// with the container.
func CheckVolumeMount(cfg *config.Config) Result {
	const name = "Volume mount"

	volume := strings.TrimSpace(cfg.Paths.VolumeDir)
	if volume == "" {
		return Result{Name: name, Detail: "volume_dir not configured"}
	}
	info, err := os.Stat(volume)
	if err != nil {
		if os.IsNotExist(err) {
			if cfg.StorageModeResolved() == storage.ModeVolume {
				return Result{Name: name, Detail: fmt.Sprintf("%s (error: not mounted, artifacts would land on container disk)", volume)}
			}
			return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (not mounted, models fall back to local)", volume)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", volume, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", volume)}
	}
	if err := unix.Access(volume, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", volume, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (mounted)", volume)}
}

// CheckStorage validates the artifact storage configuration. In presign mode
// it also probes the endpoint; any HTTP answer counts as reachable, since
// presign services commonly reject bare requests at the base path.
func CheckStorage(ctx context.Context, cfg *config.Config) Result {
	const name = "Artifact storage"

	mode := cfg.StorageModeResolved()
	switch mode {
	case storage.ModeVolume:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("volume mode (%s)", cfg.Storage.OutputDir)}
	case storage.ModePresign:
		endpoint := strings.TrimSpace(cfg.Storage.PresignEndpoint)
		if endpoint == "" {
			return Result{Name: name, Detail: "presign mode without presign_endpoint"}
		}
		parsed, err := url.Parse(endpoint)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return Result{Name: name, Detail: fmt.Sprintf("presign_endpoint %q is not an http(s) URL", endpoint)}
		}

		probeCtx, cancel := context.WithTimeout(ctx, endpointProbeTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, endpoint, nil)
		if err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("endpoint probe failed: %v", err)}
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("endpoint unreachable: %v", err)}
		}
		_ = resp.Body.Close()
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("presign mode (%s)", endpoint)}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unknown storage mode %q", mode)}
	}
}

// CheckAPIBind verifies the worker API address is bindable. An empty bind
// disables the API and passes.
func CheckAPIBind(cfg *config.Config) Result {
	const name = "API bind"

	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return Result{Name: name, Passed: true, Detail: "disabled"}
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", bind, err)}
	}
	_ = listener.Close()
	return Result{Name: name, Passed: true, Detail: bind}
}

// CheckNotifications validates the ntfy topic URL without contacting it.
// Notification sends are best effort, so reachability is not probed here.
func CheckNotifications(cfg *config.Config) Result {
	const name = "Notifications"

	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return Result{Name: name, Passed: true, Detail: "disabled"}
	}
	parsed, err := url.Parse(topic)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return Result{Name: name, Detail: fmt.Sprintf("ntfy_topic %q is not an http(s) URL", topic)}
	}
	return Result{Name: name, Passed: true, Detail: parsed.Host}
}

// CheckSystemDeps evaluates the external binaries the worker launches. The
// daemon and the CLI share this so the requirement list stays in one place.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "Interpreter",
			Command:     cfg.Engine.Interpreter,
			Description: "Launches the render engine process",
			VersionArg:  "--version",
		},
	}
	return deps.CheckBinaries(requirements)
}
