package apiversions_test

import (
	"context"
	"io/fs"
	"reflect"
	"testing"

	apiversions "github.com/goliatone/go-apiversions"
	"github.com/goliatone/go-apiversions/changes"
	"github.com/goliatone/go-apiversions/core"
)

func TestBuiltinService_WorkflowRoundTrip(t *testing.T) {
	svc, err := apiversions.NewBuiltinService(apiversions.Config{})
	if err != nil {
		t.Fatalf("new builtin service: %v", err)
	}
	if svc.CanonicalVersion() != changes.Canonical {
		t.Fatalf("expected built-in canonical %q, got %q", changes.Canonical, svc.CanonicalVersion())
	}
	ctx := context.Background()

	canonical, err := svc.ApplyRequestChanges(ctx, core.ApplyChangesRequest{
		Target:      "workflow.create",
		FromVersion: changes.Version20190520,
		ToVersion:   svc.CanonicalVersion(),
		Params:      core.Params{"name": "flow", "notifyURL": "https://hooks.example"},
	})
	if err != nil {
		t.Fatalf("apply request changes: %v", err)
	}
	stored := core.Params{"id": "wf_1"}
	for key, value := range canonical {
		stored[key] = value
	}

	legacy, err := svc.ApplyResponseChanges(ctx, core.ApplyChangesRequest{
		Target:      "workflow.create",
		FromVersion: svc.CanonicalVersion(),
		ToVersion:   changes.Version20190520,
		Params:      stored,
	})
	if err != nil {
		t.Fatalf("apply response changes: %v", err)
	}
	want := core.Params{"id": "wf_1", "name": "flow", "notifyURL": "https://hooks.example"}
	if !reflect.DeepEqual(legacy, want) {
		t.Fatalf("expected %#v, got %#v", want, legacy)
	}
}

func TestBuiltinService_UnknownVersionIsRejected(t *testing.T) {
	svc, err := apiversions.NewBuiltinService(apiversions.DefaultConfig())
	if err != nil {
		t.Fatalf("new builtin service: %v", err)
	}
	_, err = svc.ApplyRequestChanges(context.Background(), core.ApplyChangesRequest{
		Target:      "workflow.create",
		FromVersion: "2018-01-01",
		ToVersion:   changes.Canonical,
		Params:      core.Params{},
	})
	if !core.IsUnknownVersion(err) {
		t.Fatalf("expected unknown version error, got %v", err)
	}
}

func TestMigrationsFS_ShipsBothDialects(t *testing.T) {
	root := apiversions.GetMigrationsFS()
	for _, pattern := range []string{"data/sql/migrations/*.up.sql", "data/sql/migrations/sqlite/*.up.sql"} {
		matches, err := fs.Glob(root, pattern)
		if err != nil {
			t.Fatalf("glob %s: %v", pattern, err)
		}
		if len(matches) == 0 {
			t.Fatalf("expected migrations for %s", pattern)
		}
	}
}
