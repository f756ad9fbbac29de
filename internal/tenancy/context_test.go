package tenancy

import (
	"context"
	"testing"
)

func TestClinicAndPatientRoundTrip(t *testing.T) {
	ctx := WithClinicID(context.Background(), "clinic-1")
	ctx = WithPatientID(ctx, "patient-9")

	clinic, ok := ClinicIDFromContext(ctx)
	if !ok || clinic != "clinic-1" {
		t.Fatalf("expected clinic-1, got %q (%v)", clinic, ok)
	}
	patient, ok := PatientIDFromContext(ctx)
	if !ok || patient != "patient-9" {
		t.Fatalf("expected patient-9, got %q (%v)", patient, ok)
	}
}

func TestFromContext_EmptyOrMissing(t *testing.T) {
	ctx := context.Background()
	if _, ok := PatientIDFromContext(ctx); ok {
		t.Fatalf("expected missing patient id to return false")
	}

	ctx = context.WithValue(ctx, patientKey, 42)
	if _, ok := PatientIDFromContext(ctx); ok {
		t.Fatalf("expected non-string patient id to return false")
	}

	ctx = WithClinicID(context.Background(), "")
	if _, ok := ClinicIDFromContext(ctx); ok {
		t.Fatalf("expected empty clinic id to return false")
	}
}
