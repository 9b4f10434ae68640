package password

import "errors"

// MinLength is the shortest password a Policy accepts.
const MinLength = 8

// ErrPolicyViolation is matched (via errors.Is) by every *PolicyError.
var ErrPolicyViolation = errors.New("password policy violation")

// Reasons reported by Policy.Evaluate, in evaluation order.
const (
	ReasonReuse          = "The new password cannot match the previous password"
	ReasonTooShort       = "Password is too short, use at least 8 characters"
	ReasonMissingLower   = "Password is too weak, missing lower case letters"
	ReasonMissingUpper   = "Password is too weak, missing upper case letters"
	ReasonMissingNumber  = "Password is too weak, missing numbers"
	ReasonMissingSpecial = "Password is too weak, missing special characters"
)

// PolicyError carries the human readable reason of the first rule a
// candidate password failed.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string { return e.Reason }

func (e *PolicyError) Unwrap() error { return ErrPolicyViolation }

// Policy decides whether a candidate password is acceptable.
type Policy struct {
	hasher Hasher
}

// NewPolicy returns a Policy that uses hasher to detect reuse of the
// previous digest. The length and character class rules are fixed.
func NewPolicy(hasher Hasher) *Policy {
	return &Policy{hasher: hasher}
}

// Evaluate checks candidate against the rules below and stops at the first
// failure:
//
//  1. candidate equals oldPassword (when given)
//  2. candidate verifies against oldDigest (when given)
//  3. shorter than MinLength
//  4. no lower case letter
//  5. no upper case letter
//  6. no digit
//  7. no character outside [a-zA-Z0-9]
//
// Digests are salted, so rule 2 is a Verify call rather than a digest
// comparison. A digest that cannot be parsed never matches.
func (p *Policy) Evaluate(candidate string, oldPassword *string, oldDigest string) error {
	if oldPassword != nil && candidate == *oldPassword {
		return &PolicyError{Reason: ReasonReuse}
	}

	if oldDigest != "" && p.hasher != nil {
		if same, err := p.hasher.Verify(candidate, oldDigest); err == nil && same {
			return &PolicyError{Reason: ReasonReuse}
		}
	}

	if len([]rune(candidate)) < MinLength {
		return &PolicyError{Reason: ReasonTooShort}
	}

	var lower, upper, digit, special bool
	for _, r := range candidate {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			special = true
		}
	}

	switch {
	case !lower:
		return &PolicyError{Reason: ReasonMissingLower}
	case !upper:
		return &PolicyError{Reason: ReasonMissingUpper}
	case !digit:
		return &PolicyError{Reason: ReasonMissingNumber}
	case !special:
		return &PolicyError{Reason: ReasonMissingSpecial}
	}

	return nil
}
