package install

import (
	"context"
	"fmt"
	"path/filepath"
	"text/template"
)

const launchdLabel = "io.tinkerbelle." + ServiceName

var launchdTemplate = template.Must(template.New("launchd plist").Funcs(templateFuncs).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{ xml .Label }}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{ xml .Binary }}</string>
{{- range .Args }}
		<string>{{ xml . }}</string>
{{- end }}
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardOutPath</key>
	<string>{{ xml .StdoutPath }}</string>
	<key>StandardErrorPath</key>
	<string>{{ xml .StderrPath }}</string>
</dict>
</plist>
`))

// launchd installs a LaunchDaemon when running as root and a per-user
// LaunchAgent otherwise.
type launchd struct {
	path   string
	logDir string
}

func newLaunchd(root bool, home string) launchd {
	if root {
		return launchd{
			path:   filepath.Join("/Library/LaunchDaemons", launchdLabel+".plist"),
			logDir: "/var/log",
		}
	}
	return launchd{
		path:   filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist"),
		logDir: filepath.Join(home, "Library", "Logs"),
	}
}

func (launchd) name() string       { return "launchd" }
func (l launchd) unitPath() string { return l.path }

type launchdJob struct {
	Unit
	Label      string
	StdoutPath string
	StderrPath string
}

func (l launchd) render(u Unit) ([]byte, error) {
	return renderTemplate(launchdTemplate, launchdJob{
		Unit:       u,
		Label:      launchdLabel,
		StdoutPath: filepath.Join(l.logDir, ServiceName+".log"),
		StderrPath: filepath.Join(l.logDir, ServiceName+".err"),
	})
}

func (l launchd) activate(ctx context.Context, run Runner) error {
	if err := run(ctx, "launchctl", "load", "-w", l.path); err != nil {
		return fmt.Errorf("launchctl load: %w", err)
	}
	return nil
}

func (l launchd) deactivate(ctx context.Context, run Runner) error {
	return run(ctx, "launchctl", "unload", "-w", l.path)
}

func (launchd) forget(context.Context, Runner) error { return nil }

func (launchd) active(ctx context.Context, run Runner) bool {
	return run(ctx, "launchctl", "list", launchdLabel) == nil
}
