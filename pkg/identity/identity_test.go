package identity

import "testing"

func TestIdentityCanonicality(t *testing.T) {
	locations := []string{
		"https://github.com/foo/bar",
		"http://github.com/foo/bar",
		"git@github.com:foo/bar.git",
		"github.com/foo/bar.git",
		"GITHUB.COM/foo/bar",
	}
	var first Identity
	for i, loc := range locations {
		id := Of(loc)
		if i == 0 {
			first = id
			continue
		}
		if !id.Equal(first) {
			t.Errorf("location %q produced identity %q, want %q", loc, id.Stem, first.Stem)
		}
	}
}

func TestLocalPathBasename(t *testing.T) {
	id := Of("/home/dev/src/mypkg")
	if id.Kind != Local {
		t.Fatalf("expected Local kind")
	}
	if id.Stem != "mypkg" {
		t.Errorf("stem = %q, want mypkg", id.Stem)
	}
}

func TestRegistryScopedIdentity(t *testing.T) {
	id := Of("swift.org.example-package")
	if id.Kind != Network {
		t.Fatalf("expected Network kind")
	}
	if id.Stem != "swift.org.example-package" {
		t.Errorf("stem = %q", id.Stem)
	}
}

func TestInternNearestRootPreference(t *testing.T) {
	tbl := NewTable()
	root := tbl.Intern("/workspace/root/pkgA")
	nested := tbl.Intern("/workspace/root/pkgA/vendor/pkgA")
	if !nested.Equal(root) {
		t.Errorf("nested path with same basename should resolve to the root's identity")
	}
}
