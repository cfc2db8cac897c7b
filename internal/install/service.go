package install

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"os/exec"
	"strings"
	"text/template"
)

// Unit is what a service definition needs to launch the daemon.
type Unit struct {
	Binary     string
	ConfigPath string
	DataDir    string
	LogFormat  string
}

// Args are the daemon arguments after the binary.
func (u Unit) Args() []string {
	return []string{"daemon", "--config", u.ConfigPath, "--log-format", u.LogFormat}
}

// Runner executes a service manager command.
type Runner func(ctx context.Context, name string, args ...string) error

// ExecRunner runs the command and folds its output into the error.
func ExecRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}

// manager is a platform service manager.
type manager interface {
	name() string
	unitPath() string
	render(u Unit) ([]byte, error)
	// activate enables and starts the service once its file is written.
	activate(ctx context.Context, run Runner) error
	deactivate(ctx context.Context, run Runner) error
	// forget runs after the file is removed.
	forget(ctx context.Context, run Runner) error
	active(ctx context.Context, run Runner) bool
}

var templateFuncs = template.FuncMap{
	"quote": systemdQuote,
	"xml":   xmlEscape,
}

func renderTemplate(t *template.Template, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.Bytes(), nil
}

// systemdQuote quotes a word for ExecStart when it holds spaces or quotes.
func systemdQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"'\\") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

func xmlEscape(s string) (string, error) {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return "", err
	}
	return b.String(), nil
}
