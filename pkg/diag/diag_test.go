package diag

import "testing"

func TestChildInheritsMetadata(t *testing.T) {
	sink := &CollectingSink{}
	root := NewRoot(sink).With("run", "abc123")
	child := root.Child("github.com/foo/bar")

	child.Warningf("stray pin for %s", "github.com/foo/bar")

	recs := sink.Records()
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	r := recs[0]
	if r.Severity != Warning {
		t.Errorf("severity = %v, want Warning", r.Severity)
	}
	if r.Package != "github.com/foo/bar" {
		t.Errorf("package = %q", r.Package)
	}
	if r.Metadata["run"] != "abc123" {
		t.Errorf("metadata not inherited: %+v", r.Metadata)
	}
}

func TestSeverityString(t *testing.T) {
	cases := map[Severity]string{
		Debug:   "debug",
		Info:    "info",
		Warning: "warning",
		Error:   "error",
	}
	for sev, want := range cases {
		if got := sev.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", sev, got, want)
		}
	}
}
