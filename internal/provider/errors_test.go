package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status    int
		kind      ErrorKind
		transient bool
	}{
		{401, KindAuth, false},
		{403, KindAuth, false},
		{429, KindRateLimit, true},
		{408, KindTimeout, true},
		{504, KindTimeout, true},
		{500, KindUnavailable, true},
		{503, KindUnavailable, true},
		{400, KindMalformed, false},
		{422, KindMalformed, false},
	}
	for _, tt := range tests {
		err := classifyStatus("p", tt.status, "body")
		if err.Kind != tt.kind {
			t.Errorf("status %d: expected kind %s, got %s", tt.status, tt.kind, err.Kind)
		}
		if err.Transient() != tt.transient {
			t.Errorf("status %d: expected transient=%v", tt.status, tt.transient)
		}
	}
}

func TestClassifyTransport_Deadline(t *testing.T) {
	err := classifyTransport("p", fmt.Errorf("call: %w", context.DeadlineExceeded))
	if err.Kind != KindTimeout {
		t.Errorf("expected timeout, got %s", err.Kind)
	}
	if !err.Transient() {
		t.Error("timeout must be transient")
	}
}

func TestClassify_WrappedError(t *testing.T) {
	inner := newError("p", KindAuth, errors.New("bad key"))
	wrapped := fmt.Errorf("generate: %w", inner)
	if got := Classify(wrapped); got != KindAuth {
		t.Errorf("expected auth through wrapping, got %s", got)
	}
	if got := Classify(errors.New("plain")); got != KindUnavailable {
		t.Errorf("expected unavailable default, got %s", got)
	}
}
