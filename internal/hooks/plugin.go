// Package hooks holds the plugin contract, the plugin registry, and the
// dispatcher that routes stage firings to registered plugins in order.
package hooks

import "github.com/edgeshim/edgeshim/internal/txn"

// Plugin is the hook dispatch contract: one method per stage. The engine
// invokes exactly one method per registered stage per transaction, always
// with a fresh Transaction, and expects exactly one terminal control
// operation (Resume/Error/Stop) before the method returns.
//
// Embed PluginBase and override only the stages you registered for.
type Plugin interface {
	HandleReadRequestHeadersPreRemap(tx *txn.Transaction)
	HandleReadRequestHeadersPostRemap(tx *txn.Transaction)
	HandleSendRequestHeaders(tx *txn.Transaction)
	HandleReadResponseHeaders(tx *txn.Transaction)
	HandleSendResponseHeaders(tx *txn.Transaction)
	HandleOSDNSLookup(tx *txn.Transaction)
}

// PluginBase resumes immediately at every stage, so pass-through is the safe
// default for stages a plugin registered but did not implement.
type PluginBase struct{}

func (PluginBase) HandleReadRequestHeadersPreRemap(tx *txn.Transaction)  { tx.Resume() }
func (PluginBase) HandleReadRequestHeadersPostRemap(tx *txn.Transaction) { tx.Resume() }
func (PluginBase) HandleSendRequestHeaders(tx *txn.Transaction)          { tx.Resume() }
func (PluginBase) HandleReadResponseHeaders(tx *txn.Transaction)         { tx.Resume() }
func (PluginBase) HandleSendResponseHeaders(tx *txn.Transaction)         { tx.Resume() }
func (PluginBase) HandleOSDNSLookup(tx *txn.Transaction)                 { tx.Resume() }

// invoke routes one stage firing to the plugin method that matches it.
func invoke(p Plugin, stage Stage, tx *txn.Transaction) {
	switch stage {
	case StagePreRemap:
		p.HandleReadRequestHeadersPreRemap(tx)
	case StagePostRemap:
		p.HandleReadRequestHeadersPostRemap(tx)
	case StageSendRequest:
		p.HandleSendRequestHeaders(tx)
	case StageReadResponse:
		p.HandleReadResponseHeaders(tx)
	case StageSendResponse:
		p.HandleSendResponseHeaders(tx)
	case StageOSDNS:
		p.HandleOSDNSLookup(tx)
	}
}
