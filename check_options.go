package rlcore

// checkParams holds the per-call parameters a CheckOption can override.
type checkParams struct {
	algorithm Algorithm
	tenant    string
	cost      int64
}

// CheckOption customizes a single Check/CheckInfo/GetUsage/Reset call.
type CheckOption func(*checkParams)

// WithAlgorithm selects which kernel this call uses, overriding the
// Engine's default.
func WithAlgorithm(a Algorithm) CheckOption {
	return func(p *checkParams) { p.algorithm = a }
}

// WithTenant tags the call with a tenant/isolation dimension so that the
// same id under different tenants never shares store state.
func WithTenant(tenant string) CheckOption {
	return func(p *checkParams) { p.tenant = tenant }
}

// WithCost sets the weight this call contributes to consumption. Default 1.
func WithCost(cost int64) CheckOption {
	return func(p *checkParams) { p.cost = cost }
}
