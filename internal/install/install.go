// Package install registers the kube-medic daemon with the platform service
// manager: a systemd unit on Linux, a launchd job on macOS.
package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/tinkerbelle-io/kube-medic/internal/config"
)

// ServiceName names the systemd unit and the launchd label.
const ServiceName = "kube-medic"

// ServiceStatus reports what is installed and whether it is running.
type ServiceStatus struct {
	Platform   string
	Manager    string
	UnitPath   string
	BinaryPath string
	ConfigPath string
	Installed  bool
	Running    bool
}

// Installer writes the daemon config and service definition and drives the
// service manager.
type Installer struct {
	mgr        manager
	run        Runner
	configPath string
	dataDir    string
	binary     func() (string, error)
	log        *slog.Logger
}

// New returns an installer for the current platform.
func New() (*Installer, error) {
	return newInstaller(runtime.GOOS, ExecRunner)
}

func newInstaller(goos string, run Runner) (*Installer, error) {
	var mgr manager
	switch goos {
	case "linux":
		mgr = newSystemd()
	case "darwin":
		home, _ := os.UserHomeDir()
		mgr = newLaunchd(os.Getuid() == 0, home)
	default:
		return nil, fmt.Errorf("unsupported platform: %s", goos)
	}
	return &Installer{
		mgr:        mgr,
		run:        run,
		configPath: config.DefaultConfigFile,
		dataDir:    config.DefaultDataDir,
		binary:     BinaryPath,
		log:        slog.Default().With("component", "install"),
	}, nil
}

// BinaryPath returns the absolute path of the running binary with symlinks
// resolved.
func BinaryPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable path: %w", err)
	}
	return filepath.EvalSymlinks(exe)
}

// WriteConfig writes cfg as YAML to path, readable by the owner only since it
// carries API credentials.
func WriteConfig(path string, cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	out, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Install writes cfg and the service definition, then enables and starts the
// service.
func (in *Installer) Install(ctx context.Context, cfg *config.Config) error {
	bin, err := in.binary()
	if err != nil {
		return err
	}
	if err := WriteConfig(in.configPath, cfg); err != nil {
		return err
	}

	unit := Unit{Binary: bin, ConfigPath: in.configPath, DataDir: in.dataDir, LogFormat: "json"}
	body, err := in.mgr.render(unit)
	if err != nil {
		return err
	}
	path := in.mgr.unitPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create %s dir: %w", in.mgr.name(), err)
	}
	if err := os.WriteFile(path, body, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	if err := in.mgr.activate(ctx, in.run); err != nil {
		return err
	}
	in.log.Info("service installed", "manager", in.mgr.name(), "unit", path, "binary", bin)
	return nil
}

// Uninstall stops and removes the service. With purge the config file goes
// too; the ledger is left alone.
func (in *Installer) Uninstall(ctx context.Context, purge bool) error {
	if err := in.mgr.deactivate(ctx, in.run); err != nil {
		in.log.Warn("stop service", "manager", in.mgr.name(), "error", err)
	}
	path := in.mgr.unitPath()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	if err := in.mgr.forget(ctx, in.run); err != nil {
		in.log.Warn("reload service manager", "manager", in.mgr.name(), "error", err)
	}

	if !purge {
		return nil
	}
	if err := os.Remove(in.configPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove config: %w", err)
	}
	// Only succeeds when nothing else lives there.
	_ = os.Remove(filepath.Dir(in.configPath))
	return nil
}

// Status inspects the unit file, config file and service manager.
func (in *Installer) Status(ctx context.Context) ServiceStatus {
	s := ServiceStatus{
		Platform:   runtime.GOOS,
		Manager:    in.mgr.name(),
		UnitPath:   in.mgr.unitPath(),
		ConfigPath: in.configPath,
	}
	if bin, err := in.binary(); err == nil {
		s.BinaryPath = bin
	}
	if _, err := os.Stat(s.UnitPath); err == nil {
		s.Installed = true
	}
	s.Running = in.mgr.active(ctx, in.run)
	return s
}
