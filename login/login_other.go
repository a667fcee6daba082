//go:build !darwin && !linux

package login

func Enabled() bool  { return false }
func Enable() error  { return ErrUnsupported }
func Disable() error { return ErrUnsupported }
