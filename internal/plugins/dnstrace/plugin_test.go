package dnstrace

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/edgeshim/edgeshim/internal/engine/memengine"
	"github.com/edgeshim/edgeshim/internal/host"
	"github.com/edgeshim/edgeshim/internal/txn"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestAddressCrossesStages(t *testing.T) {
	eng := memengine.New()
	bag := txn.NewBag()
	bag.Set(host.BagKeyResolvedAddrs, []string{"192.0.2.1", "192.0.2.2"})

	p := &plugin{}
	dnsTx := txn.NewTransaction(eng, quietLogger(), "txn-dns", bag, txn.Resources{})
	p.HandleOSDNSLookup(dnsTx)
	if dnsTx.Outcome() != txn.OutcomeResume {
		t.Fatalf("expected resume, got %v", dnsTx.Outcome())
	}

	buf := eng.BufferCreate()
	respHdr, err := eng.ResponseHdrCreate(buf, 200, "OK", 1, 1, nil)
	if err != nil {
		t.Fatalf("response hdr create failed: %v", err)
	}
	sendTx := txn.NewTransaction(eng, quietLogger(), "txn-dns", bag, txn.Resources{
		ClientResponse: txn.HdrBlock{Buf: buf, Loc: respHdr},
	})
	p.HandleSendResponseHeaders(sendTx)
	if sendTx.Outcome() != txn.OutcomeResume {
		t.Fatalf("expected resume, got %v", sendTx.Outcome())
	}

	values, err := eng.FieldValues(buf, respHdr, "X-Resolved-Addr")
	if err != nil || len(values) != 1 || values[0] != "192.0.2.1,192.0.2.2" {
		t.Fatalf("resolved address header wrong: %v %v", values, err)
	}
}

func TestNoAnswerLeavesResponseUntouched(t *testing.T) {
	eng := memengine.New()
	bag := txn.NewBag()

	p := &plugin{}
	dnsTx := txn.NewTransaction(eng, quietLogger(), "txn-dns", bag, txn.Resources{})
	p.HandleOSDNSLookup(dnsTx)

	buf := eng.BufferCreate()
	respHdr, err := eng.ResponseHdrCreate(buf, 200, "OK", 1, 1, nil)
	if err != nil {
		t.Fatalf("response hdr create failed: %v", err)
	}
	sendTx := txn.NewTransaction(eng, quietLogger(), "txn-dns", bag, txn.Resources{
		ClientResponse: txn.HdrBlock{Buf: buf, Loc: respHdr},
	})
	p.HandleSendResponseHeaders(sendTx)

	n, _ := eng.FieldCount(buf, respHdr)
	if n != 0 {
		t.Fatalf("header must not be set without an answer, got %d fields", n)
	}
}
