package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ppiankov/claimvoice/internal/model"
	"github.com/ppiankov/claimvoice/internal/worker"
)

func TestNewPayload_Defaults(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	p := NewPayload(model.ClaimRecord{Description: model.StringPtr("rear-ended")}, now)

	if p.PolicyID != "UNKNOWN" || p.CustomerName != "UNKNOWN" {
		t.Errorf("expected UNKNOWN identity defaults, got %+v", p)
	}
	if p.IncidentType != "unspecified" || p.Location != "unspecified" {
		t.Errorf("expected unspecified defaults, got %+v", p)
	}
	if p.IncidentDate != "2026-03-14" {
		t.Errorf("expected today's date, got %q", p.IncidentDate)
	}
	if p.EstimatedDamage != 0 {
		t.Errorf("expected zero damage, got %v", p.EstimatedDamage)
	}
	if p.Description != "rear-ended" {
		t.Errorf("description lost: %q", p.Description)
	}
}

func TestNewPayload_PopulatedClaim(t *testing.T) {
	claim := model.ClaimRecord{
		PolicyID:        model.StringPtr("PL-4829"),
		CustomerName:    model.StringPtr("Sarah Thompson"),
		IncidentType:    model.StringPtr("car accident"),
		Location:        model.StringPtr("Main Street, Denver"),
		EstimatedDamage: model.StringPtr("1500"),
		IncidentDate:    model.StringPtr("2026-03-13"),
	}
	p := NewPayload(claim, time.Now())
	if p.PolicyID != "PL-4829" || p.IncidentDate != "2026-03-13" || p.EstimatedDamage != 1500 {
		t.Errorf("unexpected payload %+v", p)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1500", 1500},
		{"$1,500.50", 1500.5},
		{"1500 dollars", 1500},
		{"about 2000", 2000},
		{"1.2.3", 0},
		{"", 0},
		{"-3", 3},
	}
	for _, tt := range tests {
		if got := parseAmount(tt.in); got != tt.want {
			t.Errorf("parseAmount(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHTTPSink_Deliver(t *testing.T) {
	var got Payload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ticket":"INC-1"}`))
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, "tok", time.Second)
	sink.Limiter = worker.NewLimiter(100, 1)

	res, err := sink.Deliver(context.Background(), Payload{PolicyID: "P1", CustomerName: "Ann"})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if res.StatusCode != http.StatusOK || res.Body != `{"ticket":"INC-1"}` {
		t.Errorf("unexpected result %+v", res)
	}
	if auth != "Bearer tok" {
		t.Errorf("expected bearer token, got %q", auth)
	}
	if got.PolicyID != "P1" {
		t.Errorf("server received %+v", got)
	}
}

func TestHTTPSink_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("no token configured, no header expected")
		}
		http.Error(w, "moved", http.StatusMultipleChoices)
	}))
	defer srv.Close()

	res, err := NewHTTPSink(srv.URL, "", time.Second).Deliver(context.Background(), Payload{})
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("expected ErrDelivery for status 300, got %v", err)
	}
	if res == nil || res.StatusCode != http.StatusMultipleChoices {
		t.Errorf("expected the status to be reported, got %+v", res)
	}

	if _, err := NewHTTPSink("", "", 0).Deliver(context.Background(), Payload{}); !errors.Is(err, ErrDelivery) {
		t.Errorf("expected ErrDelivery without url, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHTTPSink(srv.URL, "", time.Second).Deliver(ctx, Payload{}); !errors.Is(err, ErrDelivery) {
		t.Errorf("expected ErrDelivery for cancelled context, got %v", err)
	}
}
