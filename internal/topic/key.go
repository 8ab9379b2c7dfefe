// Package topic implements TopicRouter (C5): the subscription graph,
// its authorization predicates, snapshot dispatch, and periodic
// refreshers.
package topic

import "strings"

// Namespaces a TopicKey's first segment may take.
const (
	NSMarket        = "market"
	NSToken         = "token"
	NSContest       = "contest"
	NSRoom          = "room"
	NSWallet        = "wallet"
	NSNotifications = "notifications"
	NSSettings      = "settings"
	NSAdmin         = "admin"
)

// Key is a parsed TopicKey of the form `<namespace>.<scope>`.
// Equality is string equality; symbol scopes (token.<symbol>) compare
// case-insensitively, so Key normalizes those at parse time.
type Key struct {
	Namespace string
	Scope     string
}

// Parse splits a raw topic string into a Key, lower-casing the scope
// when the namespace is symbol-keyed, since comparisons on those are
// case-insensitive.
func Parse(raw string) (Key, bool) {
	idx := strings.IndexByte(raw, '.')
	if idx < 0 {
		return Key{}, false
	}
	ns := raw[:idx]
	scope := raw[idx+1:]
	if ns == NSToken {
		scope = strings.ToLower(scope)
	}
	return Key{Namespace: ns, Scope: scope}, true
}

func (k Key) String() string { return k.Namespace + "." + k.Scope }

func (k Key) IsGlobal() bool { return k.Scope == "*" }
