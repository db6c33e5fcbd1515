package platform

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileExpandsEnvironment(t *testing.T) {
	t.Setenv("SIGNALS_TEST_IX_PASSWORD", "s3cret")
	path := filepath.Join(t.TempDir(), "platforms.yaml")
	data := `platforms:
  - name: index-exchange
    kind: index-exchange
    username: buyer
    password: ${SIGNALS_TEST_IX_PASSWORD}
    account: agency-123-ix
  - name: openx
    kind: sandbox
    fail_signals: [broken]
    segments:
      - platform_segment_id: "42"
        name: Commuters
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	file, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(file.Platforms) != 2 {
		t.Fatalf("platforms = %d, want 2", len(file.Platforms))
	}
	if got := file.Platforms[0].Password; got != "s3cret" {
		t.Fatalf("password = %q, want expanded value", got)
	}
	if got := file.Platforms[1].Segments; len(got) != 1 || got[0].PlatformSegmentID != "42" {
		t.Fatalf("segments = %+v", got)
	}

	adapters, err := file.Build(nil, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, ok := adapters[0].(*IndexExchange); !ok {
		t.Fatalf("adapter 0 = %T, want *IndexExchange", adapters[0])
	}
	if _, ok := adapters[1].(*Sandbox); !ok {
		t.Fatalf("adapter 1 = %T, want *Sandbox", adapters[1])
	}
}

func TestLoadFileRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platforms.yaml")
	if err := os.WriteFile(path, []byte("platforms:\n  - name: x\n    colour: blue\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestBuildRejectsBadEntries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file File
	}{
		{name: "missing name", file: File{Platforms: []AdapterConfig{{Kind: KindSandbox}}}},
		{name: "unknown kind", file: File{Platforms: []AdapterConfig{{Name: "x", Kind: "carrier-pigeon"}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := tc.file.Build(nil, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDefaultFileListsSandboxes(t *testing.T) {
	t.Parallel()

	adapters, err := DefaultFile().Build(nil, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(adapters) != len(DefaultSandboxPlatforms) {
		t.Fatalf("adapters = %d, want %d", len(adapters), len(DefaultSandboxPlatforms))
	}
	for i, adapter := range adapters {
		if adapter.Name() != DefaultSandboxPlatforms[i] {
			t.Fatalf("adapter %d = %q", i, adapter.Name())
		}
	}
}
