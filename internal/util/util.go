package util

// MaskSecret obscures a shared secret for logging, keeping just enough of
// each end to tell configured keys apart.
func MaskSecret(secret string) string {
	switch {
	case secret == "":
		return "(unset)"
	case len(secret) > 8:
		return secret[:4] + "..." + secret[len(secret)-4:]
	case len(secret) > 4:
		return secret[:2] + "..." + secret[len(secret)-2:]
	case len(secret) > 2:
		return secret[:1] + "..." + secret[len(secret)-1:]
	default:
		return "..."
	}
}
