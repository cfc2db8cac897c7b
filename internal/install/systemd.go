package install

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"
)

var systemdTemplate = template.Must(template.New("systemd unit").Funcs(templateFuncs).Parse(`[Unit]
Description=kube-medic self-healing agent
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart={{ quote .Binary }}{{ range .Args }} {{ quote . }}{{ end }}
Restart=always
RestartSec=10
{{- with .StateDirectory }}
StateDirectory={{ . }}
{{- end }}

NoNewPrivileges=true
ProtectSystem=strict
ProtectHome=read-only
ReadWritePaths={{ .DataDir }}
PrivateTmp=true

[Install]
WantedBy=multi-user.target
`))

type systemd struct {
	path string
}

func newSystemd() systemd {
	return systemd{path: filepath.Join("/etc/systemd/system", ServiceName+".service")}
}

func (systemd) name() string       { return "systemd" }
func (s systemd) unitPath() string { return s.path }

type systemdUnit struct {
	Unit
	StateDirectory string
}

func (systemd) render(u Unit) ([]byte, error) {
	data := systemdUnit{Unit: u}
	// systemd creates and chowns StateDirectory under /var/lib.
	if rel, ok := strings.CutPrefix(filepath.Clean(u.DataDir), "/var/lib/"); ok {
		data.StateDirectory = rel
	}
	return renderTemplate(systemdTemplate, data)
}

func (systemd) activate(ctx context.Context, run Runner) error {
	if err := run(ctx, "systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("daemon-reload: %w", err)
	}
	if err := run(ctx, "systemctl", "enable", "--now", ServiceName); err != nil {
		return fmt.Errorf("enable service: %w", err)
	}
	return nil
}

func (systemd) deactivate(ctx context.Context, run Runner) error {
	return run(ctx, "systemctl", "disable", "--now", ServiceName)
}

func (systemd) forget(ctx context.Context, run Runner) error {
	return run(ctx, "systemctl", "daemon-reload")
}

func (systemd) active(ctx context.Context, run Runner) bool {
	return run(ctx, "systemctl", "is-active", "--quiet", ServiceName) == nil
}
