package logging

import (
	"github.com/rs/zerolog"
)

// ContextHook adds the account and pass_id of the event's context, so lines
// from concurrent watch loops can be told apart in one log file.
type ContextHook struct{}

// Run implements zerolog.Hook.
func (ContextHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	s := scopeFrom(ctx)
	if s.account != "" {
		e.Str("account", s.account)
	}
	if s.passID != "" {
		e.Str("pass_id", s.passID)
	}
}
