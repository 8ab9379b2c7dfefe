package topic

import (
	"context"
	"strconv"

	"github.com/odin-markets/realtime-core/internal/principal"
)

// ContestStore answers contest-participation questions; the core
// reads this external collaborator, it does not own the relational
// schema.
type ContestStore interface {
	IsParticipant(ctx context.Context, contestID int64, wallet string) (bool, error)
	Exists(ctx context.Context, contestID int64) (bool, error)
}

// Authorizer evaluates the per-topic access predicate given the
// current Principal.
type Authorizer struct {
	Contests ContestStore
}

// Authorize returns whether p may subscribe to key. An error surfaces
// only when the external collaborator itself failed (a transient
// condition); a plain "no" is a normal false/nil return.
func (a *Authorizer) Authorize(ctx context.Context, p principal.Principal, key Key) (bool, error) {
	switch key.Namespace {
	case NSMarket, NSToken:
		return true, nil

	case NSContest, NSRoom:
		id, err := strconv.ParseInt(key.Scope, 10, 64)
		if err != nil {
			return false, nil
		}
		if p.IsAdmin() {
			return true, nil
		}
		if p.IsAnonymous() {
			return false, nil
		}
		return a.Contests.IsParticipant(ctx, id, p.WalletAddress)

	case NSWallet, NSNotifications:
		if p.IsAnonymous() {
			return false, nil
		}
		return p.WalletAddress == key.Scope, nil

	case NSSettings:
		return p.IsAdmin(), nil

	default:
		return false, nil
	}
}

// AuthorizeWrite checks settings COMMANDs: writes are reserved to
// admin/superadmin, the same rule Authorize applies to settings reads.
// Every other namespace is delegated to Authorize.
func (a *Authorizer) AuthorizeWrite(ctx context.Context, p principal.Principal, key Key) (bool, error) {
	if key.Namespace != NSSettings {
		return a.Authorize(ctx, p, key)
	}
	return p.IsAdmin(), nil
}
