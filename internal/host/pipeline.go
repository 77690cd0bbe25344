package host

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/edgeshim/edgeshim/internal/engine"
	"github.com/edgeshim/edgeshim/internal/engine/memengine"
	"github.com/edgeshim/edgeshim/internal/hooks"
	"github.com/edgeshim/edgeshim/internal/logging"
	"github.com/edgeshim/edgeshim/internal/observability"
	"github.com/edgeshim/edgeshim/internal/txn"
)

// BagKeyResolvedAddrs is where the pipeline stashes the DNS answer for the
// OS DNS stage; plugins read it from the transaction bag.
const BagKeyResolvedAddrs = "host.resolved_addrs"

// Pipeline drives one request through the hook stages: pre-remap, remap to
// the configured upstream, post-remap, DNS, send-request, origin round trip,
// read-response, send-response. It owns the engine-side buffer for the
// transaction; wrappers handed to plugins borrow from it.
type Pipeline struct {
	eng      *memengine.Engine
	disp     *hooks.Dispatcher
	client   *http.Client
	logger   *logrus.Logger
	upstream *url.URL

	// lookupHost is swappable in tests.
	lookupHost func(host string) ([]string, error)
}

// NewPipeline wires the stage driver. upstream must carry scheme and host.
func NewPipeline(eng *memengine.Engine, disp *hooks.Dispatcher, client *http.Client, logger *logrus.Logger, upstream *url.URL) *Pipeline {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Pipeline{
		eng:        eng,
		disp:       disp,
		client:     client,
		logger:     logger,
		upstream:   upstream,
		lookupHost: net.LookupHost,
	}
}

// Handle serves one client request through the full stage sequence.
func (p *Pipeline) Handle(c fiber.Ctx) error {
	txnID := TxnID(c)
	bag := txn.NewBag()

	buf := p.eng.BufferCreate()
	defer func() {
		if err := p.eng.BufferDestroy(buf); err != nil {
			p.logger.WithError(err).WithField("txn", txnID).Error("transaction buffer teardown failed")
		}
	}()

	clientHdr, err := p.admitClientRequest(buf, c)
	if err != nil {
		p.logger.WithError(err).WithField("txn", txnID).Warn("client request rejected")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "request_rejected"})
	}
	clientBlock := txn.HdrBlock{Buf: buf, Loc: clientHdr}

	fire := func(stage hooks.Stage, res txn.Resources) hooks.Result {
		return p.disp.Fire(stage, func() *txn.Transaction {
			return txn.NewTransaction(p.eng, p.logger, txnID, bag, res)
		})
	}

	requestOnly := txn.Resources{ClientRequest: clientBlock}
	if result := fire(hooks.StagePreRemap, requestOnly); result.Outcome != txn.OutcomeResume {
		return p.renderDecision(c, hooks.StagePreRemap, result)
	}

	if err := p.remap(buf, clientHdr, txnID); err != nil {
		p.logger.WithError(err).WithField("txn", txnID).Error("remap failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "remap_failed"})
	}

	if result := fire(hooks.StagePostRemap, requestOnly); result.Outcome != txn.OutcomeResume {
		return p.renderDecision(c, hooks.StagePostRemap, result)
	}

	addrs, lookupErr := p.lookupHost(p.upstream.Hostname())
	if lookupErr != nil {
		p.logger.WithError(lookupErr).WithField("txn", txnID).Warn("dns lookup failed")
	}
	bag.Set(BagKeyResolvedAddrs, addrs)
	if result := fire(hooks.StageOSDNS, requestOnly); result.Outcome != txn.OutcomeResume {
		return p.renderDecision(c, hooks.StageOSDNS, result)
	}

	serverHdr, err := p.buildOriginRequest(buf, clientHdr)
	if err != nil {
		p.logger.WithError(err).WithField("txn", txnID).Error("origin request build failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "origin_request_failed"})
	}
	serverBlock := txn.HdrBlock{Buf: buf, Loc: serverHdr}

	res := txn.Resources{ClientRequest: clientBlock, ServerRequest: serverBlock}
	if result := fire(hooks.StageSendRequest, res); result.Outcome != txn.OutcomeResume {
		return p.renderDecision(c, hooks.StageSendRequest, result)
	}

	status, reason, major, minor, respFields, body, err := p.roundTrip(buf, serverHdr, c.Body(), txnID)
	if err != nil {
		p.logger.WithError(err).WithField("txn", txnID).Error("upstream round trip failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream_unreachable"})
	}

	serverRespHdr, err := p.eng.ResponseHdrCreate(buf, status, reason, major, minor, respFields)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "origin_response_failed"})
	}
	res.ServerResponse = txn.HdrBlock{Buf: buf, Loc: serverRespHdr}
	if result := fire(hooks.StageReadResponse, res); result.Outcome != txn.OutcomeResume {
		return p.renderDecision(c, hooks.StageReadResponse, result)
	}

	// The client response starts as a copy of the origin response after the
	// read-response hooks had their turn.
	mutatedStatus, _ := p.eng.HdrStatusGet(buf, serverRespHdr)
	mutatedReason, _ := p.eng.HdrReasonGet(buf, serverRespHdr)
	mutatedFields, _ := p.eng.FieldsAll(buf, serverRespHdr)
	clientRespHdr, err := p.eng.ResponseHdrCreate(buf, mutatedStatus, mutatedReason, major, minor, mutatedFields)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "client_response_failed"})
	}
	res.ClientResponse = txn.HdrBlock{Buf: buf, Loc: clientRespHdr}
	if result := fire(hooks.StageSendResponse, res); result.Outcome != txn.OutcomeResume {
		return p.renderDecision(c, hooks.StageSendResponse, result)
	}

	return p.writeClientResponse(c, buf, clientRespHdr, body, txnID)
}

// admitClientRequest copies the incoming request into the engine as a
// request header block.
func (p *Pipeline) admitClientRequest(buf engine.Buffer, c fiber.Ctx) (engine.Loc, error) {
	uri := c.Request().URI()
	scheme := string(uri.Scheme())
	if scheme == "" {
		scheme = "http"
	}
	rawURL := fmt.Sprintf("%s://%s%s", scheme, string(uri.Host()), string(uri.RequestURI()))

	var fields []engine.Field
	c.Request().Header.VisitAll(func(key, value []byte) {
		fields = append(fields, engine.Field{Name: string(key), Value: string(value)})
	})

	return p.eng.RequestHdrCreate(buf, c.Method(), rawURL, 1, 1, fields)
}

// remap points the client request URL at the configured upstream, through
// the same facade plugins use.
func (p *Pipeline) remap(buf engine.Buffer, clientHdr engine.Loc, txnID string) error {
	req := txn.NewAttachedRequest(p.eng, p.logger, buf, clientHdr)
	defer func() {
		if err := req.Close(); err != nil {
			p.logger.WithError(err).WithField("txn", txnID).Error("remap wrapper teardown failed")
		}
	}()

	u := req.URL()
	if !u.Initialized() {
		return fmt.Errorf("client request carries no url")
	}
	if err := u.SetScheme(p.upstream.Scheme); err != nil {
		return err
	}
	if err := u.SetHost(p.upstream.Hostname()); err != nil {
		return err
	}
	port := 0
	if raw := p.upstream.Port(); raw != "" {
		port, _ = strconv.Atoi(raw)
	}
	return u.SetPort(port)
}

// buildOriginRequest snapshots the remapped client request into the block
// that send-request hooks mutate.
func (p *Pipeline) buildOriginRequest(buf engine.Buffer, clientHdr engine.Loc) (engine.Loc, error) {
	method, err := p.eng.HdrMethodGet(buf, clientHdr)
	if err != nil {
		return engine.NoLoc, err
	}
	urlLoc, err := p.eng.HdrURLGet(buf, clientHdr)
	if err != nil || urlLoc == engine.NoLoc {
		return engine.NoLoc, fmt.Errorf("client request carries no url")
	}
	rawURL, err := p.eng.URLString(buf, urlLoc)
	if err != nil {
		return engine.NoLoc, err
	}
	fields, err := p.eng.FieldsAll(buf, clientHdr)
	if err != nil {
		return engine.NoLoc, err
	}
	kept := fields[:0]
	for _, f := range fields {
		if !IsHopByHopHeader(f.Name) {
			kept = append(kept, f)
		}
	}
	major, minor, err := p.eng.HdrVersionGet(buf, clientHdr)
	if err != nil {
		return engine.NoLoc, err
	}
	return p.eng.RequestHdrCreate(buf, method, rawURL, major, minor, kept)
}

// roundTrip sends the origin request as it stands after the send-request
// hooks and reads the full answer.
func (p *Pipeline) roundTrip(buf engine.Buffer, serverHdr engine.Loc, body []byte, txnID string) (int, string, int, int, []engine.Field, []byte, error) {
	method, err := p.eng.HdrMethodGet(buf, serverHdr)
	if err != nil {
		return 0, "", 0, 0, nil, nil, err
	}
	urlLoc, err := p.eng.HdrURLGet(buf, serverHdr)
	if err != nil || urlLoc == engine.NoLoc {
		return 0, "", 0, 0, nil, nil, fmt.Errorf("origin request carries no url")
	}
	rawURL, err := p.eng.URLString(buf, urlLoc)
	if err != nil {
		return 0, "", 0, 0, nil, nil, err
	}

	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequest(method, rawURL, reqBody)
	if err != nil {
		return 0, "", 0, 0, nil, nil, err
	}
	fields, err := p.eng.FieldsAll(buf, serverHdr)
	if err != nil {
		return 0, "", 0, 0, nil, nil, err
	}
	for _, f := range fields {
		if IsHopByHopHeader(f.Name) || txn.EqualNames(f.Name, "Host") {
			continue
		}
		httpReq.Header.Add(f.Name, f.Value)
	}

	started := time.Now()
	resp, err := p.client.Do(httpReq)
	observability.UpstreamLatency.WithLabelValues(method).Observe(time.Since(started).Seconds())
	if err != nil {
		observability.UpstreamRequestsTotal.WithLabelValues(method, "error").Inc()
		return 0, "", 0, 0, nil, nil, err
	}
	defer resp.Body.Close()
	observability.UpstreamRequestsTotal.WithLabelValues(method, statusClass(resp.StatusCode)).Inc()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", 0, 0, nil, nil, err
	}

	var respFields []engine.Field
	for key, values := range resp.Header {
		for _, value := range values {
			respFields = append(respFields, engine.Field{Name: key, Value: value})
		}
	}

	p.logger.WithFields(logging.TxnFields(txnID, method, p.upstream.Hostname(), resp.StatusCode)).
		Debug("origin round trip complete")
	return resp.StatusCode, http.StatusText(resp.StatusCode), resp.ProtoMajor, resp.ProtoMinor, respFields, respBody, nil
}

// writeClientResponse renders the client response block as it stands after
// the send-response hooks.
func (p *Pipeline) writeClientResponse(c fiber.Ctx, buf engine.Buffer, clientRespHdr engine.Loc, body []byte, txnID string) error {
	status, err := p.eng.HdrStatusGet(buf, clientRespHdr)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "client_response_failed"})
	}
	fields, err := p.eng.FieldsAll(buf, clientRespHdr)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "client_response_failed"})
	}
	for _, f := range fields {
		if IsHopByHopHeader(f.Name) || txn.EqualNames(f.Name, "Content-Length") {
			continue
		}
		c.Response().Header.Add(f.Name, f.Value)
	}
	p.logger.WithFields(logging.TxnFields(txnID, c.Method(), p.upstream.Hostname(), status)).
		Info("transaction complete")
	return c.Status(status).Send(body)
}

// renderDecision turns an early Error/Stop chain decision into the response
// the engine substitutes.
func (p *Pipeline) renderDecision(c fiber.Ctx, stage hooks.Stage, result hooks.Result) error {
	switch result.Outcome {
	case txn.OutcomeError:
		status := result.ErrorStatus
		if status == 0 {
			status = fiber.StatusBadGateway
		}
		p.logger.WithFields(logrus.Fields{
			"stage":  stage.String(),
			"plugin": result.DecidedBy,
			"status": status,
		}).Warn("hook signalled error")
		return c.Status(status).JSON(fiber.Map{
			"error": "hook_error",
			"stage": stage.String(),
		})
	default:
		p.logger.WithFields(logrus.Fields{
			"stage":  stage.String(),
			"plugin": result.DecidedBy,
		}).Warn("hook aborted transaction")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "hook_aborted",
			"stage": stage.String(),
		})
	}
}

func statusClass(status int) string {
	return fmt.Sprintf("%dxx", status/100)
}
