package credentials

import "testing"

func TestGetToken(t *testing.T) {
	t.Setenv(TokenEnvVar, "  env-token \n")
	if got := GetToken(); got != "env-token" {
		t.Errorf("GetToken() = %q, want env-token", got)
	}
	if !HasToken() {
		t.Error("HasToken() should be true")
	}

	t.Setenv(TokenEnvVar, "")
	if HasToken() {
		t.Error("HasToken() should be false for an empty variable")
	}
}
