package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCountersAreExposed(t *testing.T) {
	m := New()
	m.CacheLookup("hit")
	m.CacheLookup("miss")
	m.CacheLookup("miss")
	m.OriginFetch("ok", 0.2)
	m.StoreWrite("error")
	m.Response("200")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/-/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{
		"mls_proxy_cache_lookups_total",
		"mls_proxy_origin_fetch_total",
		"mls_proxy_store_writes_total",
		"mls_proxy_responses_total",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("metric %s missing from exposition", name)
		}
	}
	if !strings.Contains(body, `mls_proxy_cache_lookups_total{result="miss"} 2`) {
		t.Fatalf("expected two cache misses in exposition:\n%s", body)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.CacheLookup("hit")
	m.OriginFetch("status", 1)
	m.StoreWrite("ok")
	m.Response("404")
	if m.Registry() != nil {
		t.Fatalf("nil metrics should not expose a registry")
	}
}
