package topic

import (
	"context"
	"errors"
	"testing"

	"github.com/odin-markets/realtime-core/internal/principal"
)

type fakeContestStore struct {
	participant map[int64]bool
	err         error
}

func (f *fakeContestStore) IsParticipant(ctx context.Context, contestID int64, wallet string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.participant[contestID], nil
}

func (f *fakeContestStore) Exists(ctx context.Context, contestID int64) (bool, error) {
	return true, nil
}

func TestAuthorizeMarketAndTokenAlwaysAllowed(t *testing.T) {
	a := &Authorizer{Contests: &fakeContestStore{}}
	ok, err := a.Authorize(context.Background(), principal.Anonymous, Key{Namespace: NSMarket, Scope: "*"})
	if err != nil || !ok {
		t.Fatalf("expected market.* open to anonymous, got ok=%v err=%v", ok, err)
	}
}

func TestAuthorizeWalletRequiresOwnWallet(t *testing.T) {
	a := &Authorizer{Contests: &fakeContestStore{}}
	owner := principal.Principal{WalletAddress: "abc", Role: principal.RoleUser}

	ok, err := a.Authorize(context.Background(), owner, Key{Namespace: NSWallet, Scope: "abc"})
	if err != nil || !ok {
		t.Fatalf("expected owner to subscribe to their own wallet topic, got ok=%v err=%v", ok, err)
	}

	ok, err = a.Authorize(context.Background(), owner, Key{Namespace: NSWallet, Scope: "other"})
	if err != nil || ok {
		t.Fatalf("expected owner denied on someone else's wallet topic, got ok=%v err=%v", ok, err)
	}

	ok, err = a.Authorize(context.Background(), principal.Anonymous, Key{Namespace: NSWallet, Scope: "abc"})
	if err != nil || ok {
		t.Fatalf("expected anonymous denied on a wallet topic, got ok=%v err=%v", ok, err)
	}
}

func TestAuthorizeContestRequiresParticipation(t *testing.T) {
	store := &fakeContestStore{participant: map[int64]bool{42: true}}
	a := &Authorizer{Contests: store}
	user := principal.Principal{WalletAddress: "abc", Role: principal.RoleUser}

	ok, err := a.Authorize(context.Background(), user, Key{Namespace: NSContest, Scope: "42"})
	if err != nil || !ok {
		t.Fatalf("expected participant allowed, got ok=%v err=%v", ok, err)
	}

	ok, err = a.Authorize(context.Background(), user, Key{Namespace: NSContest, Scope: "7"})
	if err != nil || ok {
		t.Fatalf("expected non-participant denied, got ok=%v err=%v", ok, err)
	}
}

func TestAuthorizeContestAdminBypassesParticipation(t *testing.T) {
	a := &Authorizer{Contests: &fakeContestStore{}}
	admin := principal.Principal{WalletAddress: "root", Role: principal.RoleAdmin}

	ok, err := a.Authorize(context.Background(), admin, Key{Namespace: NSContest, Scope: "999"})
	if err != nil || !ok {
		t.Fatalf("expected admin allowed regardless of participation, got ok=%v err=%v", ok, err)
	}
}

func TestAuthorizeContestPropagatesStoreError(t *testing.T) {
	wantErr := errors.New("db down")
	a := &Authorizer{Contests: &fakeContestStore{err: wantErr}}
	user := principal.Principal{WalletAddress: "abc", Role: principal.RoleUser}

	_, err := a.Authorize(context.Background(), user, Key{Namespace: NSContest, Scope: "1"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected store error to propagate, got %v", err)
	}
}

func TestAuthorizeSettingsAdminOnly(t *testing.T) {
	a := &Authorizer{Contests: &fakeContestStore{}}
	user := principal.Principal{WalletAddress: "abc", Role: principal.RoleUser}
	admin := principal.Principal{WalletAddress: "root", Role: principal.RoleAdmin}

	if ok, _ := a.Authorize(context.Background(), user, Key{Namespace: NSSettings, Scope: "ui.banner"}); ok {
		t.Error("expected non-admin denied on settings topic")
	}
	if ok, _ := a.Authorize(context.Background(), admin, Key{Namespace: NSSettings, Scope: "ui.banner"}); !ok {
		t.Error("expected admin allowed on settings topic")
	}
}

func TestAuthorizeWriteDelegatesNonSettings(t *testing.T) {
	a := &Authorizer{Contests: &fakeContestStore{}}
	admin := principal.Principal{WalletAddress: "root", Role: principal.RoleAdmin}

	ok, err := a.AuthorizeWrite(context.Background(), admin, Key{Namespace: NSMarket, Scope: "*"})
	if err != nil || !ok {
		t.Fatalf("expected AuthorizeWrite to fall through to Authorize for non-settings, got ok=%v err=%v", ok, err)
	}
}
