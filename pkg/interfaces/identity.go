package interfaces

import (
	"callboard/pkg/types"
)

// IdentityResolver turns a presented credential into a caller identity
// ARCHITECTURAL DISCOVERY: Token issuance lives outside the core; only
// verification is needed here
type IdentityResolver interface {
	Resolve(token string) (types.Identity, error)
}
