//go:build dev

package config

// devSignatureBypass honors GATEWAY_SKIP_SIGNATURE for local testing against
// gateway sandboxes that return unsigned callbacks.
func devSignatureBypass() bool {
	return getenvBool("GATEWAY_SKIP_SIGNATURE", false)
}
