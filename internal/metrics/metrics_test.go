// SPDX-License-Identifier: MPL-2.0

package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RecordInspection(t *testing.T) {
	t.Parallel()

	m := New()
	m.RecordInspection(OutcomeInspected, 12*time.Second)
	m.RecordInspection(OutcomeInspected, 3*time.Second)
	m.RecordInspection(OutcomeSkipped, 0)
	m.RecordInspection(OutcomeFailed, time.Second)

	if got := testutil.ToFloat64(m.Inspections.WithLabelValues(OutcomeInspected)); got != 2 {
		t.Errorf("inspected = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Inspections.WithLabelValues(OutcomeSkipped)); got != 1 {
		t.Errorf("skipped = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.InspectionDuration); got != 1 {
		t.Errorf("histogram series = %d, want 1", got)
	}
}

func TestMetrics_RecordPass(t *testing.T) {
	t.Parallel()

	m := New()
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	m.RecordPass(at, true)
	m.RecordPass(at.Add(time.Hour), false)
	m.RecordPassFailure()

	if got := testutil.ToFloat64(m.Passes); got != 2 {
		t.Errorf("passes = %v", got)
	}
	if got := testutil.ToFloat64(m.LatestWrites); got != 1 {
		t.Errorf("latest writes = %v", got)
	}
	if got := testutil.ToFloat64(m.LastPass); got != float64(at.Add(time.Hour).Unix()) {
		t.Errorf("last pass = %v", got)
	}
	if got := testutil.ToFloat64(m.PassFailures); got != 1 {
		t.Errorf("pass failures = %v", got)
	}
}

func TestRouter(t *testing.T) {
	t.Parallel()

	siteDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(siteDir, "index.html"), []byte("<h1>site</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := New()
	m.RecordInspection(OutcomeSkipped, 0)
	h := Router(m, siteDir)

	tests := []struct {
		path     string
		wantCode int
		contains string
	}{
		{"/healthz", http.StatusOK, "ok"},
		{"/metrics", http.StatusOK, "manylinux_inspector_inspections_total"},
		{"/site/", http.StatusOK, "<h1>site</h1>"},
		{"/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.wantCode {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.wantCode)
			continue
		}
		if !strings.Contains(rec.Body.String(), tt.contains) {
			t.Errorf("GET %s body does not contain %q", tt.path, tt.contains)
		}
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", Router(New(), ""), func(a net.Addr) { addrCh <- a })
	}()

	addr := <-addrCh
	resp, err := http.Get("http://" + addr.String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.TrimSpace(string(body)) != "ok" {
		t.Errorf("body = %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}
