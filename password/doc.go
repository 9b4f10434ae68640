// Package password hashes and verifies credentials and decides whether a
// candidate password is strong enough.
//
// # Output format
//
// [Argon2] digests are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Bcrypt] digests are the standard $2a$ modular crypt strings.
//
// # Policy
//
// [Policy.Evaluate] applies the strength rules in a fixed order and reports
// the first violated rule as a [*PolicyError]. Whether the policy runs at all
// is decided by the caller.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive digests.
//   - Import any other restauth package.
//   - Log plaintext passwords.
package password
