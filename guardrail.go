package rtagent

import "context"

const defaultGuardrailDebounceChars = 100

// GuardrailVerdict is the outcome of one guardrail check. A triggered
// tripwire means the checked output must not reach the user.
type GuardrailVerdict struct {
	Tripwire   bool
	OutputInfo any
}

// Guardrail wraps a user-supplied async check run against partial and final
// model output.
type Guardrail struct {
	Name string

	// Policy is the hint attached to results for feedback-message
	// generation; it defaults to Name.
	Policy string

	Check func(ctx context.Context, output string) (GuardrailVerdict, error)
}

func (g Guardrail) policyHint() string {
	if g.Policy != "" {
		return g.Policy
	}
	return g.Name
}

// GuardrailResult pairs a tripped guardrail with its verdict and the policy
// hint in effect.
type GuardrailResult struct {
	Guardrail  Guardrail
	Verdict    GuardrailVerdict
	PolicyHint string
}
