// Package login registers murmur to start headless when the user logs in.
package login

import (
	"errors"
	"fmt"
	"html"
	"os"
	"sort"
	"strings"
)

const label = "io.murmur.agent"

// ErrUnsupported is returned on platforms without a login hook.
var ErrUnsupported = errors.New("launch at login is not supported on this platform")

// Args are passed to the binary started at login.
var Args = []string{"-tui=false"}

// forwardedEnv returns the MURMUR_* variables of the current process so
// the login instance sees the same overrides, sorted by key.
func forwardedEnv(environ []string) [][2]string {
	var out [][2]string
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "MURMUR_") || value == "" {
			continue
		}
		out = append(out, [2]string{key, value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func renderPlist(exe string, args []string, env [][2]string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>` + label + `</string>
	<key>ProgramArguments</key>
	<array>
`)
	for _, a := range append([]string{exe}, args...) {
		fmt.Fprintf(&b, "\t\t<string>%s</string>\n", html.EscapeString(a))
	}
	b.WriteString(`	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>LimitLoadToSessionType</key>
	<string>Aqua</string>
`)
	if len(env) > 0 {
		b.WriteString("\t<key>EnvironmentVariables</key>\n\t<dict>\n")
		for _, kv := range env {
			fmt.Fprintf(&b, "\t\t<key>%s</key>\n\t\t<string>%s</string>\n", html.EscapeString(kv[0]), html.EscapeString(kv[1]))
		}
		b.WriteString("\t</dict>\n")
	}
	b.WriteString("</dict>\n</plist>\n")
	return b.String()
}

// renderDesktop builds an XDG autostart entry. Env overrides are applied
// through env(1) since .desktop files have no environment key.
func renderDesktop(exe string, args []string, env [][2]string) string {
	var cmd []string
	if len(env) > 0 {
		cmd = append(cmd, "env")
		for _, kv := range env {
			cmd = append(cmd, desktopQuote(kv[0]+"="+kv[1]))
		}
	}
	cmd = append(cmd, desktopQuote(exe))
	for _, a := range args {
		cmd = append(cmd, desktopQuote(a))
	}
	return "[Desktop Entry]\n" +
		"Type=Application\n" +
		"Name=murmur\n" +
		"Comment=Voice dictation\n" +
		"Exec=" + strings.Join(cmd, " ") + "\n" +
		"X-GNOME-Autostart-enabled=true\n" +
		"NoDisplay=true\n"
}

// desktopQuote quotes an Exec argument when it holds reserved characters.
func desktopQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n\"'\\><~|&;$*?#()`") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`", `$`, `\$`)
	return `"` + r.Replace(s) + `"`
}

func executable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}
