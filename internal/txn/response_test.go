package txn

import (
	"errors"
	"testing"

	"github.com/edgeshim/edgeshim/internal/engine"
)

func newAttachedResponse(t *testing.T, eng *recordingEngine, status int, reason string) (*Response, engine.Buffer, engine.Loc) {
	t.Helper()

	buf := eng.mem().BufferCreate()
	hdr, err := eng.mem().ResponseHdrCreate(buf, status, reason, 1, 1, []engine.Field{
		{Name: "Content-Type", Value: "text/plain"},
	})
	if err != nil {
		t.Fatalf("response hdr create failed: %v", err)
	}
	return NewAttachedResponse(eng, quietLogger(), buf, hdr), buf, hdr
}

func TestResponseStatusAndReasonMemoized(t *testing.T) {
	eng := newRecordingEngine()
	resp, _, _ := newAttachedResponse(t, eng, 200, "OK")

	if resp.Status() != 200 {
		t.Fatalf("expected 200, got %d", resp.Status())
	}
	if resp.Reason() != "OK" {
		t.Fatalf("expected OK, got %q", resp.Reason())
	}
	if resp.Version() != Version11 {
		t.Fatalf("expected HTTP/1.1, got %v", resp.Version())
	}
	if eng.versionGets != 1 {
		t.Fatalf("expected a single version fetch, got %d", eng.versionGets)
	}
}

func TestResponseSetStatusWritesThrough(t *testing.T) {
	eng := newRecordingEngine()
	resp, buf, hdr := newAttachedResponse(t, eng, 200, "OK")

	if err := resp.SetStatus(404); err != nil {
		t.Fatalf("set status failed: %v", err)
	}
	if err := resp.SetReason("Not Found"); err != nil {
		t.Fatalf("set reason failed: %v", err)
	}

	// Visible through the wrapper memo and through the engine.
	if resp.Status() != 404 || resp.Reason() != "Not Found" {
		t.Fatalf("memo not refreshed: %d %q", resp.Status(), resp.Reason())
	}
	status, err := eng.mem().HdrStatusGet(buf, hdr)
	if err != nil || status != 404 {
		t.Fatalf("engine state not updated: %d %v", status, err)
	}
}

func TestResponseStandalone(t *testing.T) {
	eng := newRecordingEngine()
	resp := NewStandaloneResponse(eng, quietLogger(), 503, "Service Unavailable", Version11)

	if resp.Status() != 503 || resp.Reason() != "Service Unavailable" {
		t.Fatalf("preset status/reason lost: %d %q", resp.Status(), resp.Reason())
	}
	if err := resp.SetStatus(502); err != nil {
		t.Fatalf("standalone set status failed: %v", err)
	}
	if resp.Status() != 502 {
		t.Fatalf("expected 502, got %d", resp.Status())
	}
	if err := resp.Headers().Set("Retry-After", "1"); err != nil {
		t.Fatalf("detached header set failed: %v", err)
	}

	if err := resp.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if len(eng.destroys) != 1 {
		t.Fatalf("standalone close must destroy its buffer, got %d", len(eng.destroys))
	}
	if err := resp.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if len(eng.destroys) != 1 {
		t.Fatalf("close is not idempotent")
	}
}

func TestResponseBorrowedCloseTouchesNothing(t *testing.T) {
	eng := newRecordingEngine()
	resp, _, _ := newAttachedResponse(t, eng, 200, "OK")

	if err := resp.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if len(eng.destroys) != 0 || len(eng.releases) != 0 {
		t.Fatalf("borrowed close must not free engine state")
	}
}

func TestResponseReinitializationGuard(t *testing.T) {
	eng := newRecordingEngine()
	resp, buf, hdr := newAttachedResponse(t, eng, 200, "OK")

	if err := resp.Init(buf, hdr); !errors.Is(err, ErrReinitialized) {
		t.Fatalf("expected ErrReinitialized, got %v", err)
	}
	if resp.Status() != 200 {
		t.Fatalf("reinit attempt altered state")
	}
}
