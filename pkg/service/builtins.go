package service

import (
	"github.com/morezero/servicebus/pkg/codec"
)

// Built-in method names every service answers.
const (
	MethodAddListener    = "addListener"
	MethodRemoveListener = "removeListener"
	MethodGetNotifyList  = "getNotifyList"
	MethodGetMethods     = "getMethods"
	MethodGetConfig      = "getConfig"
	MethodApplyConfig    = "applyConfig"
	MethodSave           = "save"
	MethodGetUptime      = "getUptime"
	MethodIsReady        = "isReady"
	MethodPublishStatus  = "publishStatus"
	MethodBroadcastState = "broadcastState"
	MethodStartService   = "startService"
	MethodStopService    = "stopService"
	MethodRelease        = "releaseService"
)

func (s *Service) registerBuiltins() {
	s.Handle(MethodAddListener, func(args []any) (any, error) {
		method, err := codec.String(args, 0)
		if err != nil {
			return nil, err
		}
		remoteName, err := codec.String(args, 1)
		if err != nil {
			return nil, err
		}
		remoteMethod, err := codec.OptionalString(args, 2, "")
		if err != nil {
			return nil, err
		}
		return s.AddListener(method, remoteName, remoteMethod), nil
	})

	s.Handle(MethodRemoveListener, func(args []any) (any, error) {
		method, err := codec.String(args, 0)
		if err != nil {
			return nil, err
		}
		remoteName, err := codec.String(args, 1)
		if err != nil {
			return nil, err
		}
		remoteMethod, err := codec.OptionalString(args, 2, "")
		if err != nil {
			return nil, err
		}
		return s.RemoveListener(method, remoteName, remoteMethod), nil
	})

	s.Handle(MethodGetNotifyList, func([]any) (any, error) { return s.NotifyList(), nil })
	s.Handle(MethodGetMethods, func([]any) (any, error) { return s.Methods(), nil })
	s.Handle(MethodGetConfig, func([]any) (any, error) { return s.Config(), nil })

	s.Handle(MethodApplyConfig, func(args []any) (any, error) {
		var cfg map[string]any
		if err := codec.Decode(args, 0, &cfg); err != nil {
			return nil, err
		}
		s.ApplyConfig(cfg)
		return s.Config(), nil
	})

	s.Handle(MethodSave, func([]any) (any, error) {
		if err := s.Save(); err != nil {
			return nil, err
		}
		return true, nil
	})

	s.Handle(MethodGetUptime, func([]any) (any, error) { return s.Uptime().Milliseconds(), nil })
	s.Handle(MethodIsReady, func([]any) (any, error) { return s.IsReady(), nil })

	// The result is the status itself; listeners receive it as data[0].
	s.Handle(MethodPublishStatus, func(args []any) (any, error) {
		if len(args) == 0 {
			return nil, codec.ErrMissingArgument
		}
		return args[0], nil
	})

	s.Handle(MethodBroadcastState, func([]any) (any, error) { return s.Data(), nil })

	s.Handle(MethodStartService, func([]any) (any, error) {
		s.StartService()
		return true, nil
	})
	s.Handle(MethodStopService, func([]any) (any, error) {
		s.StopService()
		return true, nil
	})
	s.Handle(MethodRelease, func([]any) (any, error) {
		s.ReleaseService()
		return true, nil
	})
}
