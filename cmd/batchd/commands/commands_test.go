package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/studio233/batchd/security/jwt"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	root := NewRootCmd()
	want := []string{"serve", "worker", "migrate", "quota", "token", "version"}
	for _, name := range want {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("missing subcommand %s", name)
		}
	}
	if c, _, err := root.Find([]string{"quota", "grant"}); err != nil || c.Name() != "grant" {
		t.Error("missing quota grant")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "batchd ") {
		t.Errorf("output = %q", out)
	}
	out, err = run(t, "version", "--json")
	if err != nil || !strings.Contains(out, `"go_version"`) {
		t.Errorf("json output = %q (%v)", out, err)
	}
}

func TestTokenCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	conf := "auth:\n  jwt:\n    secret: cli-secret\n    issuer: batchd\n"
	if err := os.WriteFile(path, []byte(conf), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "--config", path, "token", "u42", "--email", "u42@example.com")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := jwt.NewTokenManager("cli-secret", "batchd").DecodeToken(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}
	if jwt.GetUserIDFromToken(claims) != "u42" || jwt.GetEmailFromToken(claims) != "u42@example.com" {
		t.Errorf("claims = %v", claims)
	}

	if _, err := run(t, "token"); err == nil {
		t.Error("expected missing argument error")
	}
}

func TestQuotaGrantValidatesAmount(t *testing.T) {
	if _, err := run(t, "quota", "grant", "u1", "lots"); err == nil {
		t.Error("expected invalid amount error")
	}
}
