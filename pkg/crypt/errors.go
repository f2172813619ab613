package crypt

import "errors"

var (
	// ErrFingerprintMismatch is returned when a supplied key's fingerprint
	// does not match the one recorded at encryption time. User-correctable:
	// the caller picked the wrong key.
	ErrFingerprintMismatch = errors.New("crypt: key fingerprint does not match envelope")

	// ErrAuthenticationFailed is returned when the recomputed tag over
	// IV || ciphertext differs from the expected tag. The ciphertext, IV, or
	// tag was tampered with, or a wrong key slipped past the fingerprint
	// check. Never retried; no plaintext is released.
	ErrAuthenticationFailed = errors.New("crypt: ciphertext authentication failed")

	// ErrCorruptPadding is returned when the final decrypted block carries a
	// malformed PKCS7 pattern even though the tag verified. This indicates an
	// implementation defect, not an attack.
	ErrCorruptPadding = errors.New("crypt: invalid padding in authenticated ciphertext")

	// ErrStreamIO is returned when reading or writing an underlying stream
	// fails partway through a pipeline. The whole invocation is aborted.
	ErrStreamIO = errors.New("crypt: stream i/o failure")
)

// IsFingerprintMismatch returns true if the error is or wraps ErrFingerprintMismatch.
func IsFingerprintMismatch(err error) bool {
	return errors.Is(err, ErrFingerprintMismatch)
}

// IsAuthenticationFailed returns true if the error is or wraps ErrAuthenticationFailed.
func IsAuthenticationFailed(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed)
}

// IsCorruptPadding returns true if the error is or wraps ErrCorruptPadding.
func IsCorruptPadding(err error) bool {
	return errors.Is(err, ErrCorruptPadding)
}

// IsStreamIO returns true if the error is or wraps ErrStreamIO.
func IsStreamIO(err error) bool {
	return errors.Is(err, ErrStreamIO)
}
