package txn

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/edgeshim/edgeshim/internal/engine"
)

// Outcome is the terminal control decision a hook callback hands back to the
// engine. OutcomeNone means the callback has not decided yet.
type Outcome int

const (
	OutcomeNone Outcome = iota
	// OutcomeResume proceeds to the engine's next stage.
	OutcomeResume
	// OutcomeError makes the engine substitute its error response.
	OutcomeError
	// OutcomeStop aborts further hook processing for the transaction.
	OutcomeStop
)

func (o Outcome) String() string {
	switch o {
	case OutcomeResume:
		return "resume"
	case OutcomeError:
		return "error"
	case OutcomeStop:
		return "stop"
	}
	return "none"
}

// Bag carries arbitrary key/value state across the hook stages of one
// transaction. It lives exactly as long as the transaction identity; hooks
// must use it instead of retaining Request/Response references, since those
// wrappers are reconstructed per stage. A transaction is driven by one
// callback at a time, so the bag needs no locking.
type Bag struct {
	values map[string]any
}

// NewBag returns an empty bag.
func NewBag() *Bag {
	return &Bag{values: make(map[string]any)}
}

// Set stores a value under key, replacing any previous one.
func (b *Bag) Set(key string, value any) {
	b.values[key] = value
}

// Value returns the value stored under key.
func (b *Bag) Value(key string) (any, bool) {
	v, ok := b.values[key]
	return v, ok
}

// Delete drops key from the bag.
func (b *Bag) Delete(key string) {
	delete(b.values, key)
}

// Len reports the number of stored keys.
func (b *Bag) Len() int {
	return len(b.values)
}

// HdrBlock names one engine-owned message block.
type HdrBlock struct {
	Buf engine.Buffer
	Loc engine.Loc
}

// Valid reports whether the block points at real engine state.
func (h HdrBlock) Valid() bool {
	return h.Buf != engine.NoBuffer && h.Loc != engine.NoLoc
}

// Resources lists the message blocks visible at the current hook stage.
// Blocks that do not exist yet (e.g. the origin response before the origin
// answered) are left zero.
type Resources struct {
	ClientRequest  HdrBlock
	ClientResponse HdrBlock
	ServerRequest  HdrBlock
	ServerResponse HdrBlock
}

// Transaction is the per-invocation handle passed to hook callbacks. It
// pairs the engine's transaction identity with lazily-wrapped views of the
// transaction's messages, the cross-stage bag, and the single-use completion
// token (Resume/Error/Stop). The engine constructs a fresh Transaction for
// every stage invocation and destroys it once the terminal operation has
// been issued; callbacks must not retain it.
type Transaction struct {
	eng engine.Engine
	log logrus.FieldLogger
	id  string
	bag *Bag
	res Resources

	clientReq  *Request
	clientResp *Response
	serverReq  *Request
	serverResp *Response

	outcome    Outcome
	violations int
	errStatus  int
}

// NewTransaction builds the handle for one hook invocation. bag must be the
// same instance across every stage of the same transaction identity.
func NewTransaction(eng engine.Engine, logger logrus.FieldLogger, id string, bag *Bag, res Resources) *Transaction {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if bag == nil {
		bag = NewBag()
	}
	return &Transaction{
		eng: eng,
		log: logger.WithField("txn", id),
		id:  id,
		bag: bag,
		res: res,
	}
}

// ID returns the engine's transaction identity.
func (t *Transaction) ID() string {
	return t.id
}

// Bag returns the transaction-scoped key/value storage.
func (t *Transaction) Bag() *Bag {
	return t.bag
}

// ClientRequest returns the request as received from the client. When the
// current stage exposes no such block the returned wrapper is uninitialized
// and degrades to safe defaults.
func (t *Transaction) ClientRequest() *Request {
	if t.clientReq == nil {
		t.clientReq = t.wrapRequest(t.res.ClientRequest)
	}
	return t.clientReq
}

// ClientResponse returns the response as it will be sent to the client.
func (t *Transaction) ClientResponse() *Response {
	if t.clientResp == nil {
		t.clientResp = t.wrapResponse(t.res.ClientResponse)
	}
	return t.clientResp
}

// ServerRequest returns the request as it will be sent to the origin.
func (t *Transaction) ServerRequest() *Request {
	if t.serverReq == nil {
		t.serverReq = t.wrapRequest(t.res.ServerRequest)
	}
	return t.serverReq
}

// ServerResponse returns the response as received from the origin.
func (t *Transaction) ServerResponse() *Response {
	if t.serverResp == nil {
		t.serverResp = t.wrapResponse(t.res.ServerResponse)
	}
	return t.serverResp
}

func (t *Transaction) wrapRequest(block HdrBlock) *Request {
	r := NewRequest(t.eng, t.log)
	if !block.Valid() {
		t.log.Debug("stage exposes no request block; returning inert wrapper")
		return r
	}
	if err := r.Init(block.Buf, block.Loc); err != nil {
		t.log.WithError(err).Error("request wrap failed")
	}
	return r
}

func (t *Transaction) wrapResponse(block HdrBlock) *Response {
	r := NewResponse(t.eng, t.log)
	if !block.Valid() {
		t.log.Debug("stage exposes no response block; returning inert wrapper")
		return r
	}
	if err := r.Init(block.Buf, block.Loc); err != nil {
		t.log.WithError(err).Error("response wrap failed")
	}
	return r
}

// Resume ends the callback and lets the engine proceed to its next stage.
func (t *Transaction) Resume() {
	t.finish(OutcomeResume)
}

// Error ends the callback and makes the engine substitute its error
// response. SetErrorStatus picks the status code when the host honors it.
func (t *Transaction) Error() {
	t.finish(OutcomeError)
}

// Stop ends the callback and aborts further hook processing for this
// transaction.
func (t *Transaction) Stop() {
	t.finish(OutcomeStop)
}

// finish consumes the completion token. The first call wins; every later
// call is a protocol violation: flagged and ignored.
func (t *Transaction) finish(o Outcome) {
	if t.outcome != OutcomeNone {
		t.violations++
		t.log.WithFields(logrus.Fields{
			"have":      t.outcome.String(),
			"attempted": o.String(),
		}).Error("terminal control operation repeated")
		return
	}
	t.outcome = o
}

// Outcome reports the consumed terminal decision, OutcomeNone when the
// callback never issued one.
func (t *Transaction) Outcome() Outcome {
	return t.outcome
}

// Violations counts repeated terminal operations observed on this handle.
func (t *Transaction) Violations() int {
	return t.violations
}

// SetErrorStatus records the status code the engine should use when the
// outcome is Error. Zero means engine default.
func (t *Transaction) SetErrorStatus(status int) {
	t.errStatus = status
}

// ErrorStatus returns the recorded error status, 0 when unset.
func (t *Transaction) ErrorStatus() int {
	return t.errStatus
}

// Close releases every wrapper this handle lazily created. The engine (or
// the dispatcher standing in for it) calls Close once the terminal operation
// has been consumed; after that the underlying identity may be reused and
// the handle must not be touched.
func (t *Transaction) Close() error {
	var errs []error
	if t.clientReq != nil {
		errs = append(errs, t.clientReq.Close())
	}
	if t.serverReq != nil {
		errs = append(errs, t.serverReq.Close())
	}
	if t.clientResp != nil {
		errs = append(errs, t.clientResp.Close())
	}
	if t.serverResp != nil {
		errs = append(errs, t.serverResp.Close())
	}
	return errors.Join(errs...)
}
