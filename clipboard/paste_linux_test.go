//go:build linux

package clipboard

import (
	"errors"
	"strings"
	"testing"

	"murmur/permission"
)

func TestDeviceError(t *testing.T) {
	tests := []struct {
		name string
		path string
		st   permission.State
		want string
	}{
		{"granted", "/dev/uinput", permission.Granted, ""},
		{"missing", "", permission.Restricted, "modprobe uinput"},
		{"not writable", "/dev/uinput", permission.Denied, "/dev/uinput is denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := deviceError(tt.path, tt.st)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("err = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrPasteUnavailable) {
				t.Fatalf("err = %v, want ErrPasteUnavailable", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %q, want mention of %q", err, tt.want)
			}
		})
	}
}
