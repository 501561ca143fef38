package core

import "testing"

func TestVersionCatalog_OrdersByPosition(t *testing.T) {
	catalog, err := NewVersionCatalog("2019-01-01", " 2020-01-01 ", "2020-06-01")
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if catalog.Earliest() != "2019-01-01" || catalog.Latest() != "2020-06-01" {
		t.Fatalf("unexpected bounds %q..%q", catalog.Earliest(), catalog.Latest())
	}
	cmp, err := catalog.Compare("2020-06-01", "2020-01-01")
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if cmp != 1 {
		t.Fatalf("expected 2020-06-01 > 2020-01-01, got %d", cmp)
	}
	cmp, _ = catalog.Compare("2020-01-01", "2020-01-01")
	if cmp != 0 {
		t.Fatalf("expected equal versions to compare 0, got %d", cmp)
	}
	if !catalog.Contains("2020-01-01") {
		t.Fatalf("expected trimmed version to be present")
	}

	versions := catalog.Versions()
	versions[0] = "mutated"
	if catalog.Earliest() != "2019-01-01" {
		t.Fatalf("expected versions copy to be detached")
	}
}

func TestVersionCatalog_RejectsInvalidLists(t *testing.T) {
	cases := map[string][]string{
		"empty":     {},
		"blank":     {"2019-01-01", " "},
		"duplicate": {"2019-01-01", "2019-01-01"},
	}
	for name, versions := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewVersionCatalog(versions...)
			if err == nil {
				t.Fatalf("expected catalog error")
			}
			if !IsConfigError(err) {
				t.Fatalf("expected config error, got %v", err)
			}
		})
	}
}

func TestVersionCatalog_UnknownVersion(t *testing.T) {
	catalog := mustCatalog("v1", "v2")
	if _, err := catalog.Compare("v1", "v9"); !IsUnknownVersion(err) {
		t.Fatalf("expected unknown version error, got %v", err)
	}
	if err := catalog.Validate("v0"); !IsUnknownVersion(err) {
		t.Fatalf("expected unknown version error, got %v", err)
	}
}

func TestVersionCatalog_Between(t *testing.T) {
	catalog := mustCatalog("v1", "v2", "v3", "v4")
	got, err := catalog.Between("v1", "v3")
	if err != nil {
		t.Fatalf("between: %v", err)
	}
	if len(got) != 2 || got[0] != "v2" || got[1] != "v3" {
		t.Fatalf("expected (v1, v3] = [v2 v3], got %v", got)
	}
	got, _ = catalog.Between("v3", "v3")
	if len(got) != 0 {
		t.Fatalf("expected empty range, got %v", got)
	}
}
