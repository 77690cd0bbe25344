package host

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/edgeshim/edgeshim/internal/engine/memengine"
	"github.com/edgeshim/edgeshim/internal/hooks"
	"github.com/edgeshim/edgeshim/internal/txn"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Test plugins exercising each decision path through the live pipeline.
func init() {
	hooks.MustRegister("test-stamp", func(_ map[string]any) (hooks.Plugin, []hooks.Stage, error) {
		return stampPlugin{}, []hooks.Stage{hooks.StageSendResponse}, nil
	})
	hooks.MustRegister("test-deny", func(_ map[string]any) (hooks.Plugin, []hooks.Stage, error) {
		return denyPlugin{}, []hooks.Stage{hooks.StagePostRemap}, nil
	})
	hooks.MustRegister("test-abort", func(_ map[string]any) (hooks.Plugin, []hooks.Stage, error) {
		return abortPlugin{}, []hooks.Stage{hooks.StagePreRemap}, nil
	})
	hooks.MustRegister("test-dns", func(_ map[string]any) (hooks.Plugin, []hooks.Stage, error) {
		return dnsPlugin{}, []hooks.Stage{hooks.StageOSDNS, hooks.StageSendResponse}, nil
	})
	hooks.MustRegister("test-rewrite", func(_ map[string]any) (hooks.Plugin, []hooks.Stage, error) {
		return rewritePlugin{}, []hooks.Stage{hooks.StageReadResponse}, nil
	})
}

type stampPlugin struct{ hooks.PluginBase }

func (stampPlugin) HandleSendResponseHeaders(tx *txn.Transaction) {
	_ = tx.ClientResponse().Headers().Set("X-Test-Stamp", "yes")
	tx.Resume()
}

type denyPlugin struct{ hooks.PluginBase }

func (denyPlugin) HandleReadRequestHeadersPostRemap(tx *txn.Transaction) {
	tx.SetErrorStatus(418)
	tx.Error()
}

type abortPlugin struct{ hooks.PluginBase }

func (abortPlugin) HandleReadRequestHeadersPreRemap(tx *txn.Transaction) {
	tx.Stop()
}

type dnsPlugin struct{ hooks.PluginBase }

func (dnsPlugin) HandleOSDNSLookup(tx *txn.Transaction) {
	if raw, ok := tx.Bag().Value(BagKeyResolvedAddrs); ok {
		if addrs, ok := raw.([]string); ok && len(addrs) > 0 {
			tx.Bag().Set("test-dns.addr", strings.Join(addrs, ","))
		}
	}
	tx.Resume()
}

func (dnsPlugin) HandleSendResponseHeaders(tx *txn.Transaction) {
	if raw, ok := tx.Bag().Value("test-dns.addr"); ok {
		_ = tx.ClientResponse().Headers().Set("X-Resolved-Addr", raw.(string))
	}
	tx.Resume()
}

type rewritePlugin struct{ hooks.PluginBase }

func (rewritePlugin) HandleReadResponseHeaders(tx *txn.Transaction) {
	_ = tx.ServerResponse().SetStatus(203)
	_ = tx.ServerResponse().Headers().Set("X-Rewritten", "yes")
	tx.Resume()
}

func newTestApp(t *testing.T, upstream string, specs ...hooks.Spec) (*fiber.App, *Pipeline, *memengine.Engine) {
	t.Helper()

	disp, err := hooks.NewDispatcher(quietLogger(), specs)
	if err != nil {
		t.Fatalf("dispatcher construction failed: %v", err)
	}
	parsed, err := url.Parse(upstream)
	if err != nil {
		t.Fatalf("bad upstream url: %v", err)
	}
	eng := memengine.New()
	pipeline := NewPipeline(eng, disp, NewUpstreamClient(5*time.Second), quietLogger(), parsed)
	app, err := NewApp(AppOptions{Pipeline: pipeline, ListenPort: 8080})
	if err != nil {
		t.Fatalf("app construction failed: %v", err)
	}
	return app, pipeline, eng
}

func TestPipelineProxiesToUpstream(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hello" || r.URL.RawQuery != "x=1" {
			t.Errorf("unexpected origin target: %s", r.URL.String())
		}
		if r.Header.Get("X-Fwd") != "1" {
			t.Errorf("end-to-end header lost")
		}
		if r.Header.Get("Proxy-Connection") != "" {
			t.Errorf("hop-by-hop header forwarded")
		}
		w.Header().Set("X-Origin", "yes")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("origin says hi"))
	}))
	defer origin.Close()

	app, _, eng := newTestApp(t, origin.URL, hooks.Spec{Key: "test-stamp"})

	req := httptest.NewRequest(http.MethodGet, "http://client.example/hello?x=1", nil)
	req.Header.Set("X-Fwd", "1")
	req.Header.Set("Proxy-Connection", "keep-alive")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "origin says hi" {
		t.Fatalf("unexpected body %q", body)
	}
	if resp.Header.Get("X-Origin") != "yes" {
		t.Fatalf("origin header lost")
	}
	if resp.Header.Get("X-Test-Stamp") != "yes" {
		t.Fatalf("send-response hook did not run")
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("transaction id missing")
	}
	if eng.BufferCount() != 0 {
		t.Fatalf("transaction buffer leaked, %d live", eng.BufferCount())
	}
}

func TestPipelineHookError(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("origin must not be contacted after an error decision")
	}))
	defer origin.Close()

	app, _, _ := newTestApp(t, origin.URL, hooks.Spec{Key: "test-deny"})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "http://client.example/x", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 418 {
		t.Fatalf("expected plugin-selected 418, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "hook_error") {
		t.Fatalf("unexpected error body %q", body)
	}
}

func TestPipelineHookStop(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("origin must not be contacted after an abort")
	}))
	defer origin.Close()

	app, _, _ := newTestApp(t, origin.URL, hooks.Spec{Key: "test-abort"})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "http://client.example/x", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "hook_aborted") {
		t.Fatalf("unexpected abort body %q", body)
	}
}

func TestPipelineDNSAnswerReachesPlugins(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer origin.Close()

	app, pipeline, _ := newTestApp(t, origin.URL, hooks.Spec{Key: "test-dns"})
	pipeline.lookupHost = func(host string) ([]string, error) {
		return []string{"192.0.2.7", "192.0.2.8"}, nil
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "http://client.example/x", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Resolved-Addr"); got != "192.0.2.7,192.0.2.8" {
		t.Fatalf("dns answer did not cross stages, got %q", got)
	}
}

func TestPipelineReadResponseMutationsReachClient(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("payload"))
	}))
	defer origin.Close()

	app, _, _ := newTestApp(t, origin.URL, hooks.Spec{Key: "test-rewrite"})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "http://client.example/x", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 203 {
		t.Fatalf("read-response status rewrite lost, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Rewritten") != "yes" {
		t.Fatalf("read-response header rewrite lost")
	}
}

func TestNewAppValidation(t *testing.T) {
	if _, err := NewApp(AppOptions{}); err == nil {
		t.Fatalf("missing pipeline must fail")
	}
	_, pipeline, _ := newTestApp(t, "http://origin.internal")
	if _, err := NewApp(AppOptions{Pipeline: pipeline, ListenPort: 0}); err == nil {
		t.Fatalf("invalid port must fail")
	}
}
