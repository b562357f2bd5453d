// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metric

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pt "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounterRegisteredOnce(t *testing.T) {
	opts := MetricOpts{Subsystem: "test", Name: "events_total", Help: "Test events"}
	a := Counter(opts, "kind")
	b := Counter(opts, "kind")
	if a != b {
		t.Fatalf("second registration returned a new collector")
	}
	a.WithLabelValues("x").Inc()
	if v := pt.ToFloat64(b.WithLabelValues("x")); v != 1 {
		t.Errorf("counter = %v, want 1", v)
	}
}

func TestStartMetrics(t *testing.T) {
	Gauge(MetricOpts{Subsystem: "test", Name: "answer", Help: "Test gauge"}, func() float64 { return 42 })
	mux := http.NewServeMux()
	StartMetrics(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	b, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(b), "lpcprog_test_answer 42") {
		t.Errorf("metrics output lacks lpcprog_test_answer:\n%s", b)
	}
}
