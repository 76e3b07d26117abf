package common

import (
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/guestgate/guestgate/internal/auth"
	"github.com/guestgate/guestgate/internal/channels"
	"github.com/guestgate/guestgate/internal/enforcement"
	"github.com/guestgate/guestgate/internal/policy"
	"github.com/guestgate/guestgate/internal/scheduler"
	"github.com/guestgate/guestgate/internal/store"
)

// Dependencies bundles everything the HTTP handlers need.
type Dependencies struct {
	Store    *store.Postgres
	Auth     *auth.Service
	Enforcer *enforcement.Service
	Policy   *policy.Engine
	Sweeper  *scheduler.Sweeper
	Events   *channels.EventChannels
	Logger   *slog.Logger
	Validate *validator.Validate
}
