package requestctx

import (
	"context"
	"testing"
)

func TestPrincipalIDFromContextRoundTrip(t *testing.T) {
	ctx := WithPrincipalID(context.Background(), "acme_corp")
	got := PrincipalIDFromContext(ctx)
	if got != "acme_corp" {
		t.Fatalf("PrincipalIDFromContext = %q, want %q", got, "acme_corp")
	}
}

func TestPrincipalIDFromContextNil(t *testing.T) {
	got := PrincipalIDFromContext(nil)
	if got != "" {
		t.Fatalf("expected empty string for nil context, got %q", got)
	}
}

func TestWithPrincipalIDNilContext(t *testing.T) {
	ctx := WithPrincipalID(nil, "p-99")
	if ctx == nil {
		t.Fatalf("expected non-nil context")
	}
	if got := PrincipalIDFromContext(ctx); got != "p-99" {
		t.Fatalf("PrincipalIDFromContext = %q, want %q", got, "p-99")
	}
}

func TestResolvePrincipalID(t *testing.T) {
	if got := ResolvePrincipalID(context.Background(), "requested"); got != "requested" {
		t.Fatalf("anonymous ResolvePrincipalID = %q, want %q", got, "requested")
	}
	ctx := WithPrincipalID(context.Background(), "token-principal")
	if got := ResolvePrincipalID(ctx, "requested"); got != "token-principal" {
		t.Fatalf("authenticated ResolvePrincipalID = %q, want %q", got, "token-principal")
	}
}
