package tenancy

import "context"

type ctxKey string

const (
	clinicKey  ctxKey = "medspa.clinic_id"
	patientKey ctxKey = "medspa.patient_id"
)

// WithClinicID stores the clinic id in context.
func WithClinicID(ctx context.Context, clinicID string) context.Context {
	return context.WithValue(ctx, clinicKey, clinicID)
}

// ClinicIDFromContext extracts the clinic id if present.
func ClinicIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, clinicKey)
}

// WithPatientID stores the authenticated patient id in context.
func WithPatientID(ctx context.Context, patientID string) context.Context {
	return context.WithValue(ctx, patientKey, patientID)
}

// PatientIDFromContext extracts the patient id if present.
func PatientIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, patientKey)
}

func stringValue(ctx context.Context, key ctxKey) (string, bool) {
	val := ctx.Value(key)
	if val == nil {
		return "", false
	}
	s, ok := val.(string)
	return s, ok && s != ""
}
