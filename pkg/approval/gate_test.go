package approval

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sentryforge/gateway/pkg/schema"
)

func TestElevateCreatesPendingApproval(t *testing.T) {
	g := New(Config{}, nil)
	a := g.Elevate(context.Background(), "topic gate", schema.Intent{Action: schema.ActionMathQuestion}, "u1", "s1", "r1")
	if a.Status != schema.ApprovalPending {
		t.Fatalf("status = %v, want Pending", a.Status)
	}
	got, ok := g.Get(a.ID)
	if !ok || got.ID != a.ID {
		t.Fatalf("Get(%q) ok=%v", a.ID, ok)
	}
}

func TestSubmitDecisionApprovesWithoutJWT(t *testing.T) {
	g := New(Config{}, nil)
	a := g.Elevate(context.Background(), "reason", schema.Intent{}, "u1", "s1", "r1")

	got, err := g.SubmitDecision(context.Background(), a.ID, schema.ApprovalDecision{Approved: true, ApproverID: "op1"}, "")
	if err != nil {
		t.Fatalf("SubmitDecision: %v", err)
	}
	if got.Status != schema.ApprovalApproved {
		t.Fatalf("status = %v, want Approved", got.Status)
	}
}

func TestSubmitDecisionDenies(t *testing.T) {
	g := New(Config{}, nil)
	a := g.Elevate(context.Background(), "reason", schema.Intent{}, "u1", "s1", "r1")

	got, err := g.SubmitDecision(context.Background(), a.ID, schema.ApprovalDecision{Approved: false, ApproverID: "op1", Reason: "no"}, "")
	if err != nil {
		t.Fatalf("SubmitDecision: %v", err)
	}
	if got.Status != schema.ApprovalDenied {
		t.Fatalf("status = %v, want Denied", got.Status)
	}
}

func TestSubmitDecisionTwiceFailsAfterResolution(t *testing.T) {
	g := New(Config{}, nil)
	a := g.Elevate(context.Background(), "reason", schema.Intent{}, "u1", "s1", "r1")

	if _, err := g.SubmitDecision(context.Background(), a.ID, schema.ApprovalDecision{Approved: true}, ""); err != nil {
		t.Fatalf("first decision: %v", err)
	}
	if _, err := g.SubmitDecision(context.Background(), a.ID, schema.ApprovalDecision{Approved: false}, ""); err == nil {
		t.Fatal("expected error resolving an already-decided approval")
	}
}

func TestExpiresAfterTimeout(t *testing.T) {
	clockTime := time.Unix(1000, 0)
	clock := func() time.Time { return clockTime }
	g := New(Config{DefaultTimeout: 5 * time.Minute}, nil).WithClock(clock)

	a := g.Elevate(context.Background(), "reason", schema.Intent{}, "u1", "s1", "r1")
	clockTime = clockTime.Add(10 * time.Minute)

	got, ok := g.Get(a.ID)
	if !ok {
		t.Fatal("expected approval to still exist")
	}
	if got.Status != schema.ApprovalExpired {
		t.Fatalf("status = %v, want Expired", got.Status)
	}

	if _, err := g.SubmitDecision(context.Background(), a.ID, schema.ApprovalDecision{Approved: true}, ""); err == nil {
		t.Fatal("expected error submitting a decision against an expired approval")
	}
}

func TestSubmitDecisionWithValidJWT(t *testing.T) {
	key := []byte("test-signing-key-for-approvals!")
	g := New(Config{JWTKey: key}, nil)
	a := g.Elevate(context.Background(), "reason", schema.Intent{}, "u1", "s1", "r1")

	claims := decisionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: a.ID},
		Approved:         true,
		ApproverID:       "op1",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	got, err := g.SubmitDecision(context.Background(), a.ID, schema.ApprovalDecision{}, signed)
	if err != nil {
		t.Fatalf("SubmitDecision: %v", err)
	}
	if got.Status != schema.ApprovalApproved || got.Decision.ApproverID != "op1" {
		t.Fatalf("unexpected decision: %+v", got.Decision)
	}
}

func TestSubmitDecisionRejectsTokenForWrongApproval(t *testing.T) {
	key := []byte("test-signing-key-for-approvals!")
	g := New(Config{JWTKey: key}, nil)
	a1 := g.Elevate(context.Background(), "reason", schema.Intent{}, "u1", "s1", "r1")
	a2 := g.Elevate(context.Background(), "reason", schema.Intent{}, "u2", "s2", "r2")

	claims := decisionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: a1.ID},
		Approved:         true,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, _ := token.SignedString(key)

	if _, err := g.SubmitDecision(context.Background(), a2.ID, schema.ApprovalDecision{}, signed); err == nil {
		t.Fatal("expected rejection of a token minted for a different approval id")
	}
}
