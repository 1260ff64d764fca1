//go:build !dev

package config

// devSignatureBypass is compiled to false outside the dev build profile, so a
// production binary cannot be configured to skip signature verification.
func devSignatureBypass() bool {
	return false
}
