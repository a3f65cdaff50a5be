package authz

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

const policyQuery = "data.clinic.messaging.allow"

// Default Rego policy: a thread is visible only to its two participants,
// each in their own role.
const defaultRegoPolicy = `package clinic.messaging

default allow = false

allow if {
	input.role == "doctor"
	input.user_id == input.doctor_id
}

allow if {
	input.role == "patient"
	input.user_id == input.patient_id
}
`

// OPAEvaluator evaluates thread access with an in-process OPA Rego policy,
// prepared once at construction.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles the default policy and returns the evaluator.
func NewOPAEvaluator(ctx context.Context) (*OPAEvaluator, error) {
	query, err := rego.New(
		rego.Query(policyQuery),
		rego.Module("thread_access.rego", defaultRegoPolicy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile thread access policy: %w", err)
	}
	return &OPAEvaluator{query: query}, nil
}

// CanAccessThread evaluates the policy for the given input. Fails closed:
// any evaluation error denies access.
func (e *OPAEvaluator) CanAccessThread(ctx context.Context, in ThreadInput) (bool, error) {
	input := map[string]interface{}{
		"user_id":    in.UserID,
		"role":       in.Role,
		"doctor_id":  in.DoctorID,
		"patient_id": in.PatientID,
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("evaluate thread access policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, nil
	}
	return allowed, nil
}
