package pipeline

import (
	"context"
	"errors"

	"murmur/model"
	"murmur/permission"
	"murmur/recorder"
	"murmur/screen"
)

// Error codes reported to command channel clients.
const (
	CodePermissionDenied     = "permission_denied"
	CodeSessionAlreadyActive = "session_already_active"
	CodeNoActiveSession      = "no_active_session"
	CodeModelNotDownloaded   = "model_not_downloaded"
	CodeAudioFileMissing     = "audio_file_missing"
	CodeDownloadFailed       = "download_failed"
	CodeLoadFailed           = "load_failed"
	CodeScreenUnavailable    = "screen_capture_unavailable"
	CodeInvalidArgument      = "invalid_argument"
	CodeCancelled            = "cancelled"
	CodeInternal             = "internal"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{permission.ErrPermissionDenied, CodePermissionDenied},
	{permission.ErrInvalidCapability, CodeInvalidArgument},
	{recorder.ErrSessionAlreadyActive, CodeSessionAlreadyActive},
	{recorder.ErrNoActiveSession, CodeNoActiveSession},
	{model.ErrModelNotDownloaded, CodeModelNotDownloaded},
	{model.ErrAudioFileMissing, CodeAudioFileMissing},
	{model.ErrDownloadFailed, CodeDownloadFailed},
	{model.ErrLoadFailed, CodeLoadFailed},
	{model.ErrUnknownModel, CodeInvalidArgument},
	{screen.ErrCaptureUnavailable, CodeScreenUnavailable},
	{ErrInvalidArgument, CodeInvalidArgument},
}

// Code maps err to a stable code string. nil maps to "".
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancelled
	}
	return CodeInternal
}
