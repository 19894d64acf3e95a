package prebuilts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/depforge/workspace/pkg/diag"
	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/sandbox"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func TestFetchForSkipsIneligibleIdentity(t *testing.T) {
	m := NewManager(EligibleSet{}, roundTripFunc(func(r *http.Request) (*http.Response, error) {
		t.Fatal("should not fetch for an ineligible identity")
		return nil, nil
	}), sandbox.New(t.TempDir()), t.TempDir(), "", diag.NewRoot(&diag.CollectingSink{}))

	mf, err := m.FetchFor(context.Background(), identity.Of("github.com/apple/swift-syntax"), "600.0.1", "6.0")
	if err != nil {
		t.Fatal(err)
	}
	if mf != nil {
		t.Error("expected nil manifest for ineligible identity")
	}
}

func TestFetchForRecordsAndSuppressesRepeat404(t *testing.T) {
	calls := 0
	client := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		rec := httptest.NewRecorder()
		rec.Code = http.StatusNotFound
		return rec.Result(), nil
	})
	eligible := DefaultEligibleSet()
	m := NewManager(eligible, client, sandbox.New(t.TempDir()), t.TempDir(), "", diag.NewRoot(&diag.CollectingSink{}))

	id := identity.Of("github.com/apple/swift-syntax")
	mf1, err := m.FetchFor(context.Background(), id, "600.0.1", "6.0")
	if err != nil {
		t.Fatal(err)
	}
	if mf1 != nil {
		t.Error("expected nil manifest on 404")
	}
	firstCalls := calls

	mf2, err := m.FetchFor(context.Background(), id, "600.0.1", "6.0")
	if err != nil {
		t.Fatal(err)
	}
	if mf2 != nil {
		t.Error("expected nil manifest on repeat fetch")
	}
	if calls != firstCalls {
		t.Error("expected the second FetchFor to be suppressed by the recorded miss, not issue new requests")
	}
}

func TestStageInjectionsLegacySchema(t *testing.T) {
	lib := LibraryEntry{Name: "MacroSupport", IncludePath: "Sources/Include"}
	inj := StageInjections("/extracted", "/checkout", lib, true, "MyMacro")
	if len(inj.IncludePaths) != 2 {
		t.Fatalf("expected 2 include paths, got %d: %v", len(inj.IncludePaths), inj.IncludePaths)
	}
	if len(inj.Libraries) != 1 || inj.Libraries[0] != "MacroSupport" {
		t.Errorf("expected library name staged, got %v", inj.Libraries)
	}
}

func TestStageInjectionsCurrentSchema(t *testing.T) {
	lib := LibraryEntry{Name: "MacroSupport", CModules: []string{"Sources/CShim"}}
	inj := StageInjections("/extracted", "/checkout", lib, false, "MyMacro")
	if len(inj.OtherSwiftFlags) != 2 {
		t.Fatalf("expected 2 swift flags, got %d: %v", len(inj.OtherSwiftFlags), inj.OtherSwiftFlags)
	}
	if len(inj.OtherLDFlags) != 1 {
		t.Errorf("expected 1 ld flag, got %v", inj.OtherLDFlags)
	}
}
