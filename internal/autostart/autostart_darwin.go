//go:build darwin

package autostart

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
)

func (m *Manager) label() string {
	return "com.saltyorg." + m.Name
}

// path returns the per-user LaunchAgent plist location
func (m *Manager) path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Library", "LaunchAgents", m.label()+".plist"), nil
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func (m *Manager) plist() string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>` + escape(m.label()) + `</string>
	<key>ProgramArguments</key>
	<array>
`)
	for _, a := range append([]string{m.Exec}, m.Args...) {
		b.WriteString("\t\t<string>" + escape(a) + "</string>\n")
	}
	b.WriteString(`	</array>
	<key>RunAtLoad</key>
	<true/>
</dict>
</plist>
`)
	return b.String()
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
	return os.WriteFile(p, []byte(m.plist()), 0o644)
}

func (m *Manager) disable() error {
	p, err := m.path()
	if err != nil {
		return err
	}
	return removeIfExists(p)
}
