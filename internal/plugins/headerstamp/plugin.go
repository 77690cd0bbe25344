// Package headerstamp stamps an identifying header and a Via token on every
// response right before it is sent to the client.
package headerstamp

import (
	"fmt"

	"github.com/edgeshim/edgeshim/internal/hooks"
	"github.com/edgeshim/edgeshim/internal/txn"
	"github.com/edgeshim/edgeshim/internal/version"
)

const (
	defaultHeader = "X-Served-By"
	viaHeader     = "Via"
)

func init() {
	hooks.MustRegister("headerstamp", build)
}

func build(settings map[string]any) (hooks.Plugin, []hooks.Stage, error) {
	p := &plugin{header: defaultHeader, value: version.Full()}
	if raw, ok := hooks.Setting(settings, "Header"); ok {
		name, ok := raw.(string)
		if !ok || name == "" {
			return nil, nil, fmt.Errorf("Header must be a non-empty string")
		}
		p.header = name
	}
	if raw, ok := hooks.Setting(settings, "Value"); ok {
		value, ok := raw.(string)
		if !ok {
			return nil, nil, fmt.Errorf("Value must be a string")
		}
		p.value = value
	}
	return p, []hooks.Stage{hooks.StageSendResponse}, nil
}

type plugin struct {
	hooks.PluginBase
	header string
	value  string
}

func (p *plugin) HandleSendResponseHeaders(tx *txn.Transaction) {
	resp := tx.ClientResponse()
	headers := resp.Headers()
	if err := headers.Set(p.header, p.value); err != nil {
		tx.Resume()
		return
	}
	v := tx.ClientRequest().Version()
	via := fmt.Sprintf("%d.%d edgeshim", v.Major(), v.Minor())
	_ = headers.Append(viaHeader, via)
	tx.Resume()
}
