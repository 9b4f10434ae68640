package metrics

// CounterDef names one exported counter.
type CounterDef struct {
	ID   ID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   ID
	Name string
	Help string
}

// CounterDefs lists every exported counter. Exporters share these names.
var CounterDefs = []CounterDef{
	{ID: LoginSuccess, Name: "restauth_login_success_total", Help: "Successful logins."},
	{ID: LoginFailure, Name: "restauth_login_failure_total", Help: "Logins rejected for invalid credentials."},
	{ID: LoginLocked, Name: "restauth_login_locked_total", Help: "Logins rejected because the account is locked."},
	{ID: LoginInactive, Name: "restauth_login_inactive_total", Help: "Logins rejected for inactivity."},
	{ID: LoginDisabled, Name: "restauth_login_disabled_total", Help: "Logins rejected because the account is not active."},
	{ID: LoginPasswordExpired, Name: "restauth_login_password_expired_total", Help: "Logins rejected until the password is changed."},
	{ID: TOTPSuccess, Name: "restauth_totp_success_total", Help: "Accepted TOTP codes."},
	{ID: TOTPFailure, Name: "restauth_totp_failure_total", Help: "Missing or wrong TOTP codes."},
	{ID: PasswordChangeSuccess, Name: "restauth_password_change_success_total", Help: "Completed password changes."},
	{ID: PasswordChangeRejected, Name: "restauth_password_change_rejected_total", Help: "Password changes rejected by confirmation or policy."},
	{ID: TokenIssued, Name: "restauth_token_issued_total", Help: "Issued bearer tokens."},
	{ID: TokenRefreshed, Name: "restauth_token_refreshed_total", Help: "Sliding expiration refreshes."},
	{ID: TokenExpired, Name: "restauth_token_expired_total", Help: "Tokens invalidated on expiry."},
	{ID: TokenInvalidated, Name: "restauth_token_invalidated_total", Help: "Tokens deleted explicitly."},
	{ID: InvalidateAll, Name: "restauth_invalidate_all_total", Help: "Identity key rotations."},
	{ID: ValidateSuccess, Name: "restauth_validate_success_total", Help: "Accepted bearer tokens."},
	{ID: ValidateFailure, Name: "restauth_validate_failure_total", Help: "Rejected bearer tokens."},
	{ID: PrivilegeDenied, Name: "restauth_privilege_denied_total", Help: "Requests rejected by role checks."},
	{ID: StoreUnavailable, Name: "restauth_store_unavailable_total", Help: "Operations failed by store outages."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: ValidateLatency, Name: "restauth_validate_latency_seconds", Help: "Bearer token validation latency."},
}

// HistogramUpperBounds are the bucket upper bounds in seconds, excluding +Inf.
var HistogramUpperBounds = [BucketCount - 1]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket for exporters without native histograms.
var HistogramBoundSuffix = [BucketCount]string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// NormalizeBuckets copies raw into a fixed-size array.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
