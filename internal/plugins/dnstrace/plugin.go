// Package dnstrace records the DNS answer observed at the OS DNS stage in
// the transaction bag and reports it back to the client as a response
// header, demonstrating cross-stage state through the bag.
package dnstrace

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/edgeshim/edgeshim/internal/hooks"
	"github.com/edgeshim/edgeshim/internal/host"
	"github.com/edgeshim/edgeshim/internal/txn"
)

const bagKeyAddr = "dnstrace.addr"

func init() {
	hooks.MustRegister("dnstrace", build)
}

func build(_ map[string]any) (hooks.Plugin, []hooks.Stage, error) {
	return &plugin{}, []hooks.Stage{hooks.StageOSDNS, hooks.StageSendResponse}, nil
}

type plugin struct {
	hooks.PluginBase
}

func (p *plugin) HandleOSDNSLookup(tx *txn.Transaction) {
	if raw, ok := tx.Bag().Value(host.BagKeyResolvedAddrs); ok {
		if addrs, ok := raw.([]string); ok && len(addrs) > 0 {
			tx.Bag().Set(bagKeyAddr, strings.Join(addrs, ","))
			logrus.WithFields(logrus.Fields{
				"txn":   tx.ID(),
				"addrs": addrs,
			}).Debug("dns answer observed")
		}
	}
	tx.Resume()
}

func (p *plugin) HandleSendResponseHeaders(tx *txn.Transaction) {
	if raw, ok := tx.Bag().Value(bagKeyAddr); ok {
		if addr, ok := raw.(string); ok && addr != "" {
			_ = tx.ClientResponse().Headers().Set("X-Resolved-Addr", addr)
		}
	}
	tx.Resume()
}
