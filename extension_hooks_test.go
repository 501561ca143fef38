package apiversions

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-apiversions/core"
)

type recordingRegistrar struct {
	calls []string
	fail  string
}

func (r *recordingRegistrar) RegisterChanges(channel core.Channel, modules ...core.ChangeModule) error {
	for _, module := range modules {
		if module.Name == r.fail {
			return errors.New("rejected")
		}
		r.calls = append(r.calls, string(channel)+":"+module.Name)
	}
	return nil
}

func packModule(name string) core.ChangeModule {
	return core.ChangeModule{Name: name, Changes: []core.ChangeConfig{
		{Target: name + ".read", Version: "2020-08-10", Up: core.Identity(), Down: core.Identity()},
	}}
}

func TestExtensionHooks_RegisterChangePackValidation(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterChangePack(ChangePack{Channel: core.ChannelRequest, Modules: []core.ChangeModule{packModule("a")}}); err == nil {
		t.Fatalf("expected missing name to fail")
	}
	if err := hooks.RegisterChangePack(ChangePack{Name: "bad", Channel: "sideways", Modules: []core.ChangeModule{packModule("a")}}); err == nil {
		t.Fatalf("expected unknown channel to fail")
	}
	if err := hooks.RegisterChangePack(ChangePack{Name: "empty", Channel: core.ChannelRequest}); err == nil {
		t.Fatalf("expected empty pack to fail")
	}
	if err := hooks.RegisterChangePack(ChangePack{Name: "billing", Channel: "Response", Modules: []core.ChangeModule{packModule("invoice")}}); err != nil {
		t.Fatalf("register pack: %v", err)
	}
	err := hooks.RegisterChangePack(ChangePack{Name: " billing ", Channel: core.ChannelRequest, Modules: []core.ChangeModule{packModule("invoice")}})
	if err == nil || !strings.Contains(err.Error(), "already registered") {
		t.Fatalf("expected duplicate pack name to fail, got %v", err)
	}
}

func TestExtensionHooks_ApplyInNameOrder(t *testing.T) {
	hooks := NewExtensionHooks()
	for _, pack := range []ChangePack{
		{Name: "zeta", Channel: core.ChannelResponse, Modules: []core.ChangeModule{packModule("zeta")}},
		{Name: "alpha", Channel: core.ChannelRequest, Modules: []core.ChangeModule{packModule("alpha")}},
	} {
		if err := hooks.RegisterChangePack(pack); err != nil {
			t.Fatalf("register pack %s: %v", pack.Name, err)
		}
	}

	packs := hooks.ChangePacks()
	if len(packs) != 2 || packs[0].Name != "alpha" || packs[1].Name != "zeta" {
		t.Fatalf("expected sorted packs, got %#v", packs)
	}

	registrar := &recordingRegistrar{}
	if err := hooks.Apply(registrar); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if strings.Join(registrar.calls, ",") != "request:alpha,response:zeta" {
		t.Fatalf("unexpected registration order %v", registrar.calls)
	}

	failing := &recordingRegistrar{fail: "zeta"}
	err := hooks.Apply(failing)
	if err == nil || !strings.Contains(err.Error(), `"zeta"`) {
		t.Fatalf("expected failing pack to be named, got %v", err)
	}
	if len(failing.calls) != 1 {
		t.Fatalf("expected earlier pack to stay registered, got %v", failing.calls)
	}
}

func TestExtensionHooks_ApplyToService(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterChangePack(ChangePack{
		Name:    "billing",
		Channel: core.ChannelResponse,
		Modules: []core.ChangeModule{{
			Name: "invoice",
			Changes: []core.ChangeConfig{{
				Target:  "invoice.read",
				Version: "2020-08-10",
				Up:      core.RenameField("total_cents", "totalCents"),
				Down:    core.RenameField("totalCents", "total_cents"),
			}},
		}},
	}); err != nil {
		t.Fatalf("register pack: %v", err)
	}

	svc := newTestService(t)
	if err := hooks.Apply(svc); err != nil {
		t.Fatalf("apply to service: %v", err)
	}
	out, err := svc.ApplyResponseChanges(context.Background(), core.ApplyChangesRequest{
		Target:      "invoice.read",
		FromVersion: "2020-08-10",
		ToVersion:   "2019-05-20",
		Params:      core.Params{"totalCents": 10},
	})
	if err != nil {
		t.Fatalf("apply response changes: %v", err)
	}
	if out["total_cents"] != 10 {
		t.Fatalf("expected plugin change to shape response, got %#v", out)
	}
}

func TestExtensionHooks_BuildCommandQueryBundles(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterCommandQueryBundle("b", func(CommandQueryService) (any, error) { return "bundle-b", nil }); err != nil {
		t.Fatalf("register bundle: %v", err)
	}
	if err := hooks.RegisterCommandQueryBundle("a", func(service CommandQueryService) (any, error) {
		return NewFacade(service)
	}); err != nil {
		t.Fatalf("register bundle: %v", err)
	}
	if err := hooks.RegisterCommandQueryBundle("a", func(CommandQueryService) (any, error) { return nil, nil }); err == nil {
		t.Fatalf("expected duplicate bundle to fail")
	}
	if names := hooks.BundleNames(); strings.Join(names, ",") != "a,b" {
		t.Fatalf("unexpected bundle names %v", names)
	}

	bundles, err := hooks.BuildCommandQueryBundles(newTestService(t))
	if err != nil {
		t.Fatalf("build bundles: %v", err)
	}
	if _, ok := bundles["a"].(*Facade); !ok {
		t.Fatalf("expected facade bundle, got %T", bundles["a"])
	}
	if bundles["b"] != "bundle-b" {
		t.Fatalf("unexpected bundle b %#v", bundles["b"])
	}
}
