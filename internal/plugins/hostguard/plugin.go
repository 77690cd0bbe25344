// Package hostguard rejects transactions whose remapped URL points at a
// denied host, answering with 403 before the origin is ever contacted.
package hostguard

import (
	"fmt"
	"strings"

	"github.com/edgeshim/edgeshim/internal/hooks"
	"github.com/edgeshim/edgeshim/internal/txn"
)

func init() {
	hooks.MustRegister("hostguard", build)
}

func build(settings map[string]any) (hooks.Plugin, []hooks.Stage, error) {
	raw, ok := hooks.Setting(settings, "DeniedHosts")
	if !ok {
		return nil, nil, fmt.Errorf("DeniedHosts is required")
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, nil, fmt.Errorf("DeniedHosts must be a list of hosts")
	}
	denied := make(map[string]struct{}, len(items))
	for _, item := range items {
		host, ok := item.(string)
		if !ok || strings.TrimSpace(host) == "" {
			return nil, nil, fmt.Errorf("DeniedHosts entries must be non-empty strings")
		}
		denied[strings.ToLower(strings.TrimSpace(host))] = struct{}{}
	}
	return &plugin{denied: denied}, []hooks.Stage{hooks.StagePostRemap}, nil
}

type plugin struct {
	hooks.PluginBase
	denied map[string]struct{}
}

func (p *plugin) HandleReadRequestHeadersPostRemap(tx *txn.Transaction) {
	host := strings.ToLower(tx.ClientRequest().URL().Host())
	if _, blocked := p.denied[host]; blocked {
		tx.SetErrorStatus(403)
		tx.Error()
		return
	}
	tx.Resume()
}
