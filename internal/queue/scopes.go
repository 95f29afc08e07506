package queue

import "github.com/asmorodws/simlok2-sub012/internal/model"

// ScopesFor resolves the channel scopes an identity is allowed to read,
// from its role and user id alone.  Reviewing roles get their role-wide
// scope, vendors get exactly their own private channel, and admins see
// all role-wide scopes.  Anything else resolves to no scopes, which
// downstream code treats as "no access" rather than an error.
func ScopesFor(role string, userID uint64) []string {
	switch role {
	case model.RoleReviewer:
		return []string{ScopeReviewer}
	case model.RoleApprover:
		return []string{ScopeApprover}
	case model.RoleVerifier:
		return []string{ScopeVerifier}
	case model.RoleVendor:
		return []string{VendorScope(userID)}
	case model.RoleAdmin:
		return []string{ScopeReviewer, ScopeApprover, ScopeVerifier}
	}
	return nil
}

// CanSubscribe reports whether the identity may bind a live stream to the
// requested scope.  It is the single place cross-scope leakage is
// prevented: a vendor can never pass this check for a role-wide scope or
// another vendor's channel.
func CanSubscribe(role string, userID uint64, scope string) bool {
	for _, allowed := range ScopesFor(role, userID) {
		if scope == allowed {
			return true
		}
	}
	return false
}
