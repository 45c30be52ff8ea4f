//go:build !windows && !darwin

package autostart

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// path returns the XDG autostart desktop entry location
func (m *Manager) path() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "autostart", m.Name+".desktop"), nil
}

func (m *Manager) desktopEntry() string {
	var b strings.Builder
	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Type=Application\n")
	fmt.Fprintf(&b, "Name=%s\n", m.Name)
	fmt.Fprintf(&b, "Exec=%s\n", execLine(m.Exec, m.Args))
	b.WriteString("Terminal=false\n")
	b.WriteString("X-GNOME-Autostart-enabled=true\n")
	return b.String()
}

// execLine quotes arguments for the Exec key
func execLine(exe string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	for _, a := range append([]string{exe}, args...) {
		if strings.ContainsAny(a, " \t\"\\$`") {
			r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`")
			a = `"` + r.Replace(a) + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

func (m *Manager) enabled() (bool, error) {
	p, err := m.path()
	if err != nil {
		return false, err
	}
	return fileExists(p)
}

func (m *Manager) enable() error {
	p, err := m.path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(m.desktopEntry()), 0o644)
}

func (m *Manager) disable() error {
	p, err := m.path()
	if err != nil {
		return err
	}
	return removeIfExists(p)
}
