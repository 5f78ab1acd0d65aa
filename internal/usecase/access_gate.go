package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"SignalDesk/internal/domain/models"
	drepo "SignalDesk/internal/domain/repository"
	applogger "SignalDesk/pkg/logger"
)

// Capability is an authorization tier of the signal module.
type Capability string

const (
	CapabilityView Capability = "view"
	CapabilityRun  Capability = "run"
)

// Named permissions checked when neither master nor a screen alias applies.
const (
	PermissionView = "crypto_middleware_visualizar"
	PermissionRun  = "crypto_middleware_executar"
)

// DefaultModuleAliases are the screen names that grant the whole module.
var DefaultModuleAliases = []string{"crypto-middleware", "crypto_middleware", "crypto"}

// Permission returns the named permission backing c.
func (c Capability) Permission() string {
	if c == CapabilityRun {
		return PermissionRun
	}
	return PermissionView
}

// AccessGate resolves callers and authorizes capability tiers.
type AccessGate struct {
	sessions drepo.SessionResolver
	dir      drepo.PermissionDirectory
	aliases  map[string]struct{}
	l        *applogger.Logger
}

func NewAccessGate(sessions drepo.SessionResolver, dir drepo.PermissionDirectory, aliases []string, l *applogger.Logger) *AccessGate {
	if len(aliases) == 0 {
		aliases = DefaultModuleAliases
	}
	set := make(map[string]struct{}, len(aliases))
	for _, a := range aliases {
		set[strings.TrimSpace(a)] = struct{}{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &AccessGate{sessions: sessions, dir: dir, aliases: set, l: l.Component("access_gate")}
}

// Authenticate maps a session token to an internal user. Every failure to
// identify the caller is ErrUnauthenticated; directory outages are not.
func (g *AccessGate) Authenticate(ctx context.Context, token string) (*drepo.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: missing session token", models.ErrUnauthenticated)
	}
	authID, err := g.sessions.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrUnauthenticated) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthenticated, err)
	}

	user, err := g.dir.UserByAuthID(ctx, authID)
	if err != nil {
		return nil, fmt.Errorf("permission directory: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: no user for auth id", models.ErrUnauthenticated)
	}
	return user, nil
}

// Authorize checks cap for user: master users first, then master groups or
// groups allowing a module alias, then the named permission.
func (g *AccessGate) Authorize(ctx context.Context, user *drepo.User, cap Capability) error {
	if user == nil {
		return models.ErrUnauthenticated
	}
	if user.IsMaster {
		return nil
	}

	groups, err := g.dir.GroupsForUser(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("permission directory: %w", err)
	}
	for _, grp := range groups {
		if grp.IsMaster {
			return nil
		}
		for _, screen := range grp.AllowedScreens {
			if _, ok := g.aliases[strings.TrimSpace(screen)]; ok {
				return nil
			}
		}
	}

	ok, err := g.dir.HasPermission(ctx, user.ID, cap.Permission())
	if err != nil {
		return fmt.Errorf("permission directory: %w", err)
	}
	if !ok {
		g.l.Debug("access denied",
			applogger.Int64("user_id", user.ID),
			applogger.String("capability", string(cap)),
			applogger.String("permission", cap.Permission()),
		)
		return fmt.Errorf("%w: missing %s", models.ErrForbidden, cap.Permission())
	}
	return nil
}

// Require authenticates token and authorizes cap in one step.
func (g *AccessGate) Require(ctx context.Context, token string, cap Capability) (*drepo.User, error) {
	user, err := g.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := g.Authorize(ctx, user, cap); err != nil {
		return nil, err
	}
	return user, nil
}
