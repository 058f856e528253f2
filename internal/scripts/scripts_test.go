package scripts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dwizi/wa-assistant/internal/triage"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	catalog, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if catalog.Identity().UserName != "Lucas" {
		t.Fatalf("expected default user name, got %q", catalog.Identity().UserName)
	}
	if _, ok := catalog.Pick(triage.IntentSupport); !ok {
		t.Fatal("expected default support script")
	}
	if _, ok := catalog.Pick(triage.IntentMeeting); ok {
		t.Fatal("expected no default meeting script")
	}
}

func TestPickFallsBackToDefaultReply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scripts.yaml")
	content := "identity:\n  agent_name: Ares\nscripts:\n  auto_reply_default: \"Te respondo pronto\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	catalog, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	identity := catalog.Identity()
	if identity.AgentName != "Ares" || identity.UserName != "Lucas" {
		t.Fatalf("unexpected identity %+v", identity)
	}
	reply, ok := catalog.Pick(triage.IntentSales)
	if !ok || reply != "Te respondo pronto" {
		t.Fatalf("expected default reply for sales, got %q %v", reply, ok)
	}
	if _, ok := catalog.Pick(triage.IntentSupport); ok {
		t.Fatal("expected no support script in custom file")
	}
}

func TestReloadKeepsPreviousOnParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scripts.yaml")
	if err := os.WriteFile(path, []byte("scripts:\n  tech_help: uno\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	catalog, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := os.WriteFile(path, []byte("scripts: [unclosed"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := catalog.Reload(); err == nil {
		t.Fatal("expected parse error")
	}
	if got := catalog.Script(KeyTechHelp); got != "uno" {
		t.Fatalf("expected previous script to stay active, got %q", got)
	}
}
