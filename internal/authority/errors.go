package authority

import "errors"

// Error kinds for operation rejections. Every operation failure wraps exactly
// one of these sentinels so callers can classify with errors.Is. A rejection
// never leaves partial state behind.
var (
	// ErrAuthorization: caller lacks the required credential or binding.
	ErrAuthorization = errors.New("authorization")

	// ErrConflict: resource already bound or assigned. Callers retrying
	// after an ambiguous network outcome should treat this as already-done.
	ErrConflict = errors.New("conflict")

	// ErrVerification: signature chain failed, wrong signer recovered, or
	// malformed signature material.
	ErrVerification = errors.New("verification")

	// ErrPolicy: endpoint transport/domain rules or issuance cap/price
	// violated.
	ErrPolicy = errors.New("policy")

	// ErrNotFound: operation on an unknown or unbound node or credential.
	ErrNotFound = errors.New("not found")
)
