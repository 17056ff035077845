package ui

import (
	"bytes"
	"strings"
	"testing"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errb bytes.Buffer
	oldOut, oldErr := Out, Err
	Out, Err = &out, &errb
	t.Cleanup(func() { Out, Err = oldOut, oldErr })
	return &out, &errb
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		done, total, width int
		want               string
	}{
		{0, 0, 10, "░░░░░░░░░░   0%"},
		{1, 2, 10, "█████░░░░░  50%"},
		{3, 3, 5, "█████ 100%"},
		{1, 1, 2, "█████ 100%"},
	}
	for _, tt := range tests {
		if got := ProgressBar(tt.done, tt.total, tt.width); got != tt.want {
			t.Errorf("ProgressBar(%d,%d,%d): got %q, want %q", tt.done, tt.total, tt.width, got, tt.want)
		}
	}
}

func TestPanelPadsLines(t *testing.T) {
	out, _ := capture(t)
	SetTheme("mono")
	t.Cleanup(func() { SetColorForcing(false, false); SetTheme("classic") })

	Panel([]string{"ab", "abcd"})
	want := "+------+\n| ab   |\n| abcd |\n+------+\n"
	if out.String() != want {
		t.Errorf("Panel:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestColorOnlyWhenForced(t *testing.T) {
	capture(t)
	SetColorForcing(false, false)
	if got := C(fgRed, "x"); got != "x" {
		t.Errorf("C on non-tty: got %q", got)
	}
	SetColorForcing(true, false)
	t.Cleanup(func() { SetColorForcing(false, false) })
	if got := C(fgRed, "x"); !strings.HasPrefix(got, fgRed) || !strings.HasSuffix(got, reset) {
		t.Errorf("C forced: got %q", got)
	}
}

func TestOKAndFail(t *testing.T) {
	out, errb := capture(t)
	SetColorForcing(false, true)
	t.Cleanup(func() { SetColorForcing(false, false) })
	OK("added")
	Fail("boom")
	if out.String() != "✔ added\n" {
		t.Errorf("OK: got %q", out.String())
	}
	if errb.String() != "✖ boom\n" {
		t.Errorf("Fail: got %q", errb.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello world", 8); got != "hello..." {
		t.Errorf("Truncate: got %q", got)
	}
	if got := Truncate("short", 8); got != "short" {
		t.Errorf("Truncate: got %q", got)
	}
}
