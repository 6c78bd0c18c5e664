package normalize

import "strings"

// InferFormat maps a provider's free-text binding/category string onto the
// bounded Format enum (spec §3). Empty input becomes "Unknown"; non-empty
// input that matches no known format becomes "Standard". It never fails.
func InferFormat(raw string) string {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "illustrat"):
		return "Illustrated"
	case strings.Contains(lower, "first edition"), strings.Contains(lower, "1st ed"):
		return "FirstEdition"
	case strings.Contains(lower, "anniversary"):
		return "Anniversary"
	case strings.Contains(lower, "hardcover"), strings.Contains(lower, "hardback"):
		return "Hardcover"
	case strings.Contains(lower, "mass market"):
		return "MassMarket"
	case strings.Contains(lower, "paperback"), strings.Contains(lower, "softcover"):
		return "Paperback"
	case strings.Contains(lower, "audiobook"), strings.Contains(lower, "audio"):
		return "Audiobook"
	case strings.Contains(lower, "ebook"), strings.Contains(lower, "kindle"), strings.Contains(lower, "epub"):
		return "Ebook"
	case lower == "":
		return "Unknown"
	default:
		return "Standard"
	}
}
