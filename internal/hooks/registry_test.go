package hooks

import (
	"errors"
	"testing"

	"github.com/edgeshim/edgeshim/internal/txn"
)

// resetRegistry swaps in an empty registry for one test and restores the
// package-level one afterwards, so plugin init() registrations survive.
func resetRegistry(t *testing.T) {
	t.Helper()

	saved := globalRegistry
	globalRegistry = newRegistry()
	t.Cleanup(func() { globalRegistry = saved })
}

type passPlugin struct {
	PluginBase
}

func passBuilder(stages ...Stage) Builder {
	return func(settings map[string]any) (Plugin, []Stage, error) {
		return passPlugin{}, stages, nil
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	resetRegistry(t)

	if err := Register("stamp", passBuilder(StageSendResponse)); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := Register("STAMP", passBuilder(StageSendResponse)); !errors.Is(err, ErrDuplicatePlugin) {
		t.Fatalf("expected ErrDuplicatePlugin for case variant, got %v", err)
	}
	if !Registered("Stamp") {
		t.Fatalf("lookup must be case-insensitive")
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	resetRegistry(t)

	if err := Register("", passBuilder(StagePreRemap)); err == nil {
		t.Fatalf("empty key must be rejected")
	}
	if err := Register("x", nil); err == nil {
		t.Fatalf("nil builder must be rejected")
	}
}

func TestKeysPreserveRegistrationOrder(t *testing.T) {
	resetRegistry(t)

	for _, key := range []string{"charlie", "alpha", "bravo"} {
		if err := Register(key, passBuilder(StagePreRemap)); err != nil {
			t.Fatalf("register %s failed: %v", key, err)
		}
	}
	keys := Keys()
	if len(keys) != 3 || keys[0] != "charlie" || keys[1] != "alpha" || keys[2] != "bravo" {
		t.Fatalf("unexpected key order: %v", keys)
	}
}

func TestBuildValidatesResult(t *testing.T) {
	resetRegistry(t)

	MustRegister("no-stages", func(settings map[string]any) (Plugin, []Stage, error) {
		return passPlugin{}, nil, nil
	})
	MustRegister("nil-plugin", func(settings map[string]any) (Plugin, []Stage, error) {
		return nil, []Stage{StagePreRemap}, nil
	})
	MustRegister("fails", func(settings map[string]any) (Plugin, []Stage, error) {
		return nil, nil, errors.New("bad settings")
	})

	if _, _, err := globalRegistry.build("no-stages", nil); err == nil {
		t.Fatalf("builder returning no stages must fail")
	}
	if _, _, err := globalRegistry.build("nil-plugin", nil); err == nil {
		t.Fatalf("builder returning nil plugin must fail")
	}
	if _, _, err := globalRegistry.build("fails", nil); err == nil {
		t.Fatalf("builder error must propagate")
	}
	if _, _, err := globalRegistry.build("missing", nil); !errors.Is(err, ErrUnknownPlugin) {
		t.Fatalf("expected ErrUnknownPlugin, got %v", err)
	}
}

func TestMustRegisterPanics(t *testing.T) {
	resetRegistry(t)

	MustRegister("once", passBuilder(StagePreRemap))
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate MustRegister")
		}
	}()
	MustRegister("once", passBuilder(StagePreRemap))
}

func TestSettingMatchesKeysCaseInsensitively(t *testing.T) {
	settings := map[string]any{"deniedhosts": []any{"bad.example"}, "Header": "X-Tag"}

	if v, ok := Setting(settings, "DeniedHosts"); !ok || len(v.([]any)) != 1 {
		t.Fatalf("lowercased config key not found: %v %v", v, ok)
	}
	if v, ok := Setting(settings, "header"); !ok || v.(string) != "X-Tag" {
		t.Fatalf("exact-case key must also match variants: %v %v", v, ok)
	}
	if _, ok := Setting(settings, "missing"); ok {
		t.Fatalf("absent key must not match")
	}
	if _, ok := Setting(nil, "any"); ok {
		t.Fatalf("nil settings must not match")
	}
}

func TestPluginBaseResumesEveryStage(t *testing.T) {
	var p Plugin = PluginBase{}
	for _, stage := range Stages() {
		tx := txn.NewTransaction(nil, quietLogger(), "txn-base", nil, txn.Resources{})
		invoke(p, stage, tx)
		if tx.Outcome() != txn.OutcomeResume {
			t.Fatalf("stage %s: expected resume, got %v", stage, tx.Outcome())
		}
		if tx.Violations() != 0 {
			t.Fatalf("stage %s: default handler issued %d extra terminals", stage, tx.Violations())
		}
	}
}
