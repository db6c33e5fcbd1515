package branding

import "testing"

func TestAppName(t *testing.T) {
	if AppName == "" {
		t.Fatal("expected AppName to be non-empty")
	}
	if AppName != "Signals Agent" {
		t.Fatalf("AppName = %q, want %q", AppName, "Signals Agent")
	}
	if AgentDescription == "" {
		t.Fatal("expected AgentDescription to be non-empty")
	}
}
