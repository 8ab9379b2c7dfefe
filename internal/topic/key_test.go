package topic

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		raw     string
		wantNS  string
		wantSc  string
		wantOK  bool
	}{
		{"market.*", NSMarket, "*", true},
		{"token.SOL", NSToken, "sol", true},
		{"token.sol", NSToken, "sol", true},
		{"contest.42", NSContest, "42", true},
		{"wallet.ABCxyz", NSWallet, "ABCxyz", true},
		{"noseparator", "", "", false},
	}
	for _, c := range cases {
		key, ok := Parse(c.raw)
		if ok != c.wantOK {
			t.Errorf("Parse(%q) ok = %v, want %v", c.raw, ok, c.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if key.Namespace != c.wantNS || key.Scope != c.wantSc {
			t.Errorf("Parse(%q) = %+v, want {%s %s}", c.raw, key, c.wantNS, c.wantSc)
		}
	}
}

func TestKeyString(t *testing.T) {
	key := Key{Namespace: NSWallet, Scope: "abc123"}
	if got := key.String(); got != "wallet.abc123" {
		t.Errorf("String() = %q, want %q", got, "wallet.abc123")
	}
}

func TestKeyIsGlobal(t *testing.T) {
	if !(Key{Namespace: NSMarket, Scope: "*"}).IsGlobal() {
		t.Error("expected scope '*' to be global")
	}
	if (Key{Namespace: NSToken, Scope: "sol"}).IsGlobal() {
		t.Error("did not expect scope 'sol' to be global")
	}
}

func TestParseTokenCaseNormalization(t *testing.T) {
	a, _ := Parse("token.SOL")
	b, _ := Parse("token.sol")
	if a != b {
		t.Errorf("expected token scopes to normalize to the same key: %+v vs %+v", a, b)
	}
}
