package http

import (
	"github.com/go-dead-mans-switch/internal/application/claim"
	"github.com/go-dead-mans-switch/internal/application/deadswitch"
	"github.com/go-dead-mans-switch/internal/application/link"
	"github.com/go-dead-mans-switch/internal/application/liveness"
	"github.com/go-dead-mans-switch/internal/application/notification"
	"github.com/go-dead-mans-switch/internal/application/recovery"
	"github.com/go-dead-mans-switch/internal/application/scheduler"
	"github.com/go-dead-mans-switch/internal/application/user"
	jwtinfra "github.com/go-dead-mans-switch/internal/infrastructure/jwt"
)

// Deps holds the application services the router exposes. JWTProvider may be
// nil only in tests that inject claims themselves.
type Deps struct {
	Users         user.Service
	Switches      deadswitch.Service
	Links         link.Service
	Monitor       liveness.Monitor
	Claims        claim.StateMachine
	Recovery      recovery.Gateway
	Notifications notification.Service
	Scheduler     *scheduler.Scheduler
	JWTProvider   *jwtinfra.Provider

	// Done stops background goroutines owned by the router.
	Done <-chan struct{}
}
