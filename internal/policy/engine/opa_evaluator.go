package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const secondFactorQuery = "data.messenger.login.second_factor_required"

// DefaultLoginPolicy requires a TOTP code for identities that enabled 2FA when
// the deployment switch is on.
const DefaultLoginPolicy = `package messenger.login

default second_factor_required := false

second_factor_required if {
	input.identity.totp_enabled
	input.settings.require_totp
}
`

// OPAEvaluator evaluates the login policy using OPA Rego. The policy is compiled
// once; evaluation is safe for concurrent use.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (DefaultLoginPolicy when empty).
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultLoginPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"login.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile login policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(secondFactorQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare login policy: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// LoadPolicyFile reads a Rego module from path. An empty path returns DefaultLoginPolicy.
func LoadPolicyFile(path string) (string, error) {
	if path == "" {
		return DefaultLoginPolicy, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read login policy: %w", err)
	}
	return string(b), nil
}

// SecondFactorRequired evaluates the policy. On evaluation failure it returns
// true together with the error so callers fail closed.
func (e *OPAEvaluator) SecondFactorRequired(ctx context.Context, in LoginInput) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(in)))
	if err != nil {
		return true, fmt.Errorf("eval login policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return true, fmt.Errorf("login policy returned no result")
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return true, fmt.Errorf("login policy returned %T, want bool", rs[0].Expressions[0].Value)
	}
	return v, nil
}

// HealthCheck verifies that the compiled policy evaluates on a minimal input.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.SecondFactorRequired(ctx, LoginInput{})
	return err
}

func buildInput(in LoginInput) map[string]interface{} {
	return map[string]interface{}{
		"identity": map[string]interface{}{
			"id":           in.IdentityID,
			"totp_enabled": in.TOTPEnabled,
		},
		"settings": map[string]interface{}{
			"require_totp": in.RequireTOTP,
		},
		"client": map[string]interface{}{
			"device_info": in.DeviceInfo,
			"ip":          in.IPAddress,
		},
	}
}
