package internaldefs

import (
	authkit "github.com/rentfold/authkit"
)

// CounterDef binds a counter ID to its stable wire name and help text.
type CounterDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// CounterDefs is the single source of metric names shared by all exporters.
var CounterDefs = []CounterDef{
	{ID: authkit.MetricAccessIssued, Name: "authkit_access_issued_total", Help: "Minted access tokens."},
	{ID: authkit.MetricRefreshIssued, Name: "authkit_refresh_issued_total", Help: "Minted refresh tokens (login and rotation)."},
	{ID: authkit.MetricRenewSuccess, Name: "authkit_renew_success_total", Help: "Successful token-pair rotations."},
	{ID: authkit.MetricRenewFailure, Name: "authkit_renew_failure_total", Help: "Rejected rotation attempts."},
	{ID: authkit.MetricRefreshReuseDetected, Name: "authkit_refresh_reuse_detected_total", Help: "Replays of rotated-away refresh tokens."},
	{ID: authkit.MetricStaleAccessAccepted, Name: "authkit_stale_access_accepted_total", Help: "Requests authenticated via the refresh-cookie fallback."},
	{ID: authkit.MetricForcedRenewal, Name: "authkit_forced_renewal_total", Help: "Renewals forced ahead of expiry by privilege changes."},
	{ID: authkit.MetricUnauthorized, Name: "authkit_unauthorized_total", Help: "Requests rejected by the authentication filter."},
	{ID: authkit.MetricLogout, Name: "authkit_logout_total", Help: "Logout operations."},
	{ID: authkit.MetricStoreError, Name: "authkit_store_error_total", Help: "Refresh-token store outages."},
}

// AuditDroppedName is the wire name of the audit backpressure counter.
const AuditDroppedName = "authkit_audit_dropped_total"

// AuditDroppedHelp documents the audit backpressure counter.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
