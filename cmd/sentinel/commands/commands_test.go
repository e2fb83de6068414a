package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testConfigYAML = `jwt:
  secret: 0123456789abcdef0123456789abcdef
log:
  env: development
  level: error
http:
  admin_token: hunter2
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	if err := os.WriteFile(path, []byte(testConfigYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile, logLevel = "", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigCommandRedactsSecrets(t *testing.T) {
	out, err := run(t, "config", "--config", writeConfig(t), "--defaults=false")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if strings.Contains(out, "0123456789abcdef") || strings.Contains(out, "hunter2") {
		t.Fatalf("secret leaked:\n%s", out)
	}
	if !strings.Contains(out, "<redacted>") {
		t.Fatalf("expected redaction marker:\n%s", out)
	}
}

func TestConfigCommandDefaults(t *testing.T) {
	out, err := run(t, "config", "--defaults")
	if err != nil {
		t.Fatalf("config --defaults: %v", err)
	}
	if !strings.Contains(out, "brute_force_threshold: 5") {
		t.Fatalf("expected default threshold:\n%s", out)
	}
}

func TestConfigCommandRejectsMissingSecret(t *testing.T) {
	t.Setenv("SENTINEL_JWT_SECRET", "")
	if _, err := run(t, "config", "--defaults=false"); err == nil {
		t.Fatal("expected validation error without a signing secret")
	}
}

func TestTokenIssue(t *testing.T) {
	out, err := run(t, "token", "issue", "--config", writeConfig(t), "--user", "alice", "--role", "admin")
	if err != nil {
		t.Fatalf("token issue: %v", err)
	}
	var issued struct {
		Token     string `json:"token"`
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal([]byte(out), &issued); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if issued.Token == "" || issued.SessionID == "" {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestTokenIssueRequiresUser(t *testing.T) {
	if _, err := run(t, "token", "issue", "--config", writeConfig(t), "--user", ""); err == nil {
		t.Fatal("expected error without --user")
	}
}

func TestVerifyArguments(t *testing.T) {
	path := writeConfig(t)
	if _, err := run(t, "verify", "--config", path, "--recent", "0"); err == nil {
		t.Fatal("expected error with neither id nor --recent")
	}

	out, err := run(t, "verify", "--config", path, "--recent", "5")
	if err != nil {
		t.Fatalf("verify --recent on an empty trail: %v", err)
	}
	if !strings.Contains(out, `"checked": 0`) {
		t.Fatalf("unexpected summary: %s", out)
	}
}

func TestLedgerCommands(t *testing.T) {
	path := writeConfig(t)

	out, err := run(t, "ledger", "verify", "--config", path)
	if err != nil {
		t.Fatalf("ledger verify: %v", err)
	}
	if !strings.Contains(out, `"valid": true`) {
		t.Fatalf("unexpected report: %s", out)
	}

	out, err = run(t, "ledger", "stats", "--config", path)
	if err != nil {
		t.Fatalf("ledger stats: %v", err)
	}
	if !strings.Contains(out, `"anchors": 0`) {
		t.Fatalf("unexpected stats: %s", out)
	}
}
