package login

import (
	"strings"
	"testing"
)

func TestForwardedEnv(t *testing.T) {
	got := forwardedEnv([]string{
		"HOME=/home/u",
		"MURMUR_MODEL=small.en",
		"MURMUR_EMPTY=",
		"MURMUR_SHARED_DIR=/tmp/shared",
		"GROQ_API_KEY=secret",
	})
	want := [][2]string{{"MURMUR_MODEL", "small.en"}, {"MURMUR_SHARED_DIR", "/tmp/shared"}}
	if len(got) != len(want) {
		t.Fatalf("forwardedEnv = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRenderPlist(t *testing.T) {
	out := renderPlist("/Applications/murmur & co/murmur", []string{"-tui=false"}, [][2]string{{"MURMUR_MODEL", "base.en"}})
	for _, want := range []string{
		"<string>" + label + "</string>",
		"<string>/Applications/murmur &amp; co/murmur</string>",
		"<string>-tui=false</string>",
		"<key>MURMUR_MODEL</key>",
		"<string>base.en</string>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("plist missing %q\n%s", want, out)
		}
	}
	if strings.Contains(renderPlist("/bin/murmur", nil, nil), "EnvironmentVariables") {
		t.Error("empty env should omit EnvironmentVariables")
	}
}

func TestRenderDesktop(t *testing.T) {
	out := renderDesktop("/opt/my apps/murmur", []string{"-tui=false"}, [][2]string{{"MURMUR_MODEL", "base.en"}})
	want := `Exec=env MURMUR_MODEL=base.en "/opt/my apps/murmur" -tui=false`
	if !strings.Contains(out, want+"\n") {
		t.Errorf("desktop entry missing %q\n%s", want, out)
	}
	if !strings.HasPrefix(out, "[Desktop Entry]\n") {
		t.Errorf("bad header\n%s", out)
	}
}

func TestDesktopQuote(t *testing.T) {
	tests := map[string]string{
		"plain":     "plain",
		"":          `""`,
		"a b":       `"a b"`,
		`say "hi"`:  `"say \"hi\""`,
		"$HOME/bin": `"\$HOME/bin"`,
	}
	for in, want := range tests {
		if got := desktopQuote(in); got != want {
			t.Errorf("desktopQuote(%q) = %s, want %s", in, got, want)
		}
	}
}
