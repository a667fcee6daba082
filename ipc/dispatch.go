package ipc

import (
	"context"
	"fmt"

	"murmur/config"
	"murmur/pipeline"
	"murmur/recorder"
)

func failure(err error) Response {
	return Response{Error: err.Error(), Code: pipeline.Code(err)}
}

func invalid(format string, args ...any) Response {
	return failure(fmt.Errorf("%w: %s", pipeline.ErrInvalidArgument, fmt.Sprintf(format, args...)))
}

func sessionOf(h recorder.Handle) *Session {
	return &Session{ID: h.ID, Path: h.Path, Mode: string(h.Mode), StartedAt: h.StartedAt.UnixMilli()}
}

func preferencesOf(p config.Preferences) *Preferences {
	return &Preferences{Sound: p.Sound, AutoPaste: p.AutoPaste}
}

func (s *Server) dispatch(ctx context.Context, cmd Command, emit func(Event)) Response {
	app := s.app
	switch cmd.Cmd {
	case "ping":
		return Response{OK: true}

	case "checkPermission":
		st, err := app.CheckPermission(ctx, cmd.Capability)
		if err != nil {
			return failure(err)
		}
		return Response{OK: true, State: st.String()}

	case "requestPermission":
		st, err := app.RequestPermission(ctx, cmd.Capability)
		if err != nil {
			return failure(err)
		}
		return Response{OK: true, State: st.String()}

	case "openSystemSettings":
		if err := app.OpenSystemSettings(cmd.Capability); err != nil {
			return failure(err)
		}
		return Response{OK: true}

	case "startRecording":
		h, err := app.StartRecording(ctx, cmd.Mode)
		if err != nil {
			return failure(err)
		}
		return Response{OK: true, Session: sessionOf(h)}

	case "pauseRecording":
		if err := app.PauseRecording(); err != nil {
			return failure(err)
		}
		return Response{OK: true}

	case "resumeRecording":
		if err := app.ResumeRecording(); err != nil {
			return failure(err)
		}
		return Response{OK: true}

	case "stopRecording":
		art, err := app.StopRecording(ctx)
		if err != nil {
			return failure(err)
		}
		return Response{OK: true, Path: art.Path, Duration: Float64Ptr(art.Duration().Seconds())}

	case "cancelRecording":
		if err := app.CancelRecording(ctx); err != nil {
			return failure(err)
		}
		return Response{OK: true}

	case "restartRecording":
		h, err := app.RestartRecording(ctx)
		if err != nil {
			return failure(err)
		}
		return Response{OK: true, Session: sessionOf(h)}

	case "showOverlay":
		if err := app.ShowOverlay(cmd.Mode); err != nil {
			return failure(err)
		}
		return Response{OK: true}

	case "setOverlayState":
		if err := app.SetOverlayState(cmd.State, cmd.Mode); err != nil {
			return failure(err)
		}
		return Response{OK: true}

	case "updateAudioLevel":
		if cmd.Level == nil {
			return invalid("level is required")
		}
		app.UpdateAudioLevel(*cmd.Level)
		return Response{OK: true}

	case "downloadModel":
		err := app.DownloadModel(ctx, cmd.Model, func(p float64) {
			emit(Event{Event: EventProgress, Progress: Float64Ptr(p)})
		})
		if err != nil {
			return failure(err)
		}
		return Response{OK: true}

	case "listDownloadedModels":
		names, err := app.ListDownloadedModels()
		if err != nil {
			return failure(err)
		}
		if names == nil {
			names = []string{}
		}
		return Response{OK: true, Models: names}

	case "deleteModel":
		if cmd.Model == "" {
			return invalid("model is required")
		}
		ok, err := app.DeleteModel(cmd.Model)
		if err != nil {
			return failure(err)
		}
		return Response{OK: true, Deleted: BoolPtr(ok)}

	case "getModelSize":
		return Response{OK: true, Size: ptr(app.ModelSize(cmd.Model))}

	case "preloadModel":
		if err := app.PreloadModel(ctx, cmd.Model); err != nil {
			return failure(err)
		}
		return Response{OK: true}

	case "isModelInitialized":
		return Response{OK: true, Initialized: BoolPtr(app.IsModelInitialized(cmd.Model))}

	case "transcribe":
		if cmd.Path == "" {
			return invalid("path is required")
		}
		text, err := app.Transcribe(ctx, cmd.Path, cmd.Model)
		if err != nil {
			return failure(err)
		}
		return Response{OK: true, Text: StringPtr(text)}

	case "dictate":
		d, err := app.Dictate(ctx, cmd.Model)
		if err != nil {
			r := failure(err)
			r.Path = d.Artifact
			return r
		}
		return Response{
			OK:        true,
			Text:      StringPtr(d.Record.Text),
			Context:   d.Record.Context,
			Delivered: string(d.Delivery),
		}

	case "extractVisibleText":
		text, err := app.ExtractVisibleText(ctx)
		if err != nil {
			return failure(err)
		}
		return Response{OK: true, Text: StringPtr(text)}

	case "getPreferences":
		return Response{OK: true, Preferences: preferencesOf(app.Preferences())}

	case "setSound", "setAutoPaste":
		if cmd.Enabled == nil {
			return invalid("enabled is required")
		}
		set := app.SetSound
		if cmd.Cmd == "setAutoPaste" {
			set = app.SetAutoPaste
		}
		p, err := set(*cmd.Enabled)
		if err != nil {
			return failure(err)
		}
		return Response{OK: true, Preferences: preferencesOf(p)}

	case "history":
		recs, err := app.History(ctx, cmd.Limit)
		if err != nil {
			return failure(err)
		}
		views := make([]*pipeline.TranscriptView, 0, len(recs))
		for _, r := range recs {
			views = append(views, pipeline.TranscriptOf(r))
		}
		return Response{OK: true, History: views}
	}
	return invalid("unknown command %q", cmd.Cmd)
}

func ptr[T any](v T) *T { return &v }
