package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example.com/tlegate/internal/gate"
	"example.com/tlegate/internal/tle"
)

func TestLoadProfileFileResolvesRelativePath(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "profiles")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	body := "profiles:\n  - profileId: ops\n    options:\n      includeWarnings: false\n"
	if err := os.WriteFile(filepath.Join(dir, "extra.yaml"), []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	profiles, err := LoadProfileFile(root, filepath.Join("profiles", "extra.yaml"))
	if err != nil {
		t.Fatalf("LoadProfileFile: %v", err)
	}
	if len(profiles) != 1 || profiles[0].ProfileId != "ops" || profiles[0].Options.IncludeWarnings {
		t.Fatalf("profiles = %+v", profiles)
	}
	if _, err := LoadProfileFile(root, " "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestBuildRegistryRejectsDuplicates(t *testing.T) {
	p := gate.Profile{ProfileId: "ops", Options: tle.DefaultOptions()}
	_, err := buildRegistry(Options{Profiles: []gate.Profile{p, p}})
	if err == nil || !strings.Contains(err.Error(), "duplicate profile ops") {
		t.Fatalf("expected duplicate profile error, got %v", err)
	}
	if _, err := buildRegistry(Options{Profiles: []gate.Profile{{}}}); err == nil {
		t.Fatalf("expected error for profile without id")
	}
}

func TestHandleProfilesListsConfigured(t *testing.T) {
	dir := t.TempDir()
	srv, err := NewServer(Options{
		StorageDir: filepath.Join(dir, "storage"),
		Profiles:   []gate.Profile{{ProfileId: "ops", Options: tle.PermissiveOptions()}},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/profiles", nil)
	srv.handleProfiles(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var got []gate.Profile
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Decode response: %v", err)
	}
	want := []string{"ops", "permissive", "recover", "strict"}
	if len(got) != len(want) {
		t.Fatalf("expected %d profiles, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ProfileId != id {
			t.Fatalf("profile mismatch at %d: want %s got %s", i, id, got[i].ProfileId)
		}
	}
	if got[0].Options.Mode != tle.ModePermissive {
		t.Fatalf("ops profile options lost: %+v", got[0])
	}
}
