package types

// RedactPhone masks a phone number for safe logging, keeping only the last
// four characters. For example, "+919876543210" becomes "***3210".
//
// Numbers of four characters or fewer are masked entirely.
func RedactPhone(number string) string {
	if number == "" {
		return ""
	}
	if len(number) <= 4 {
		return "***"
	}
	return "***" + number[len(number)-4:]
}
