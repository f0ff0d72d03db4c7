package ocr

import (
	"unicode"

	"golang.org/x/text/language"
)

// DetectLanguage guesses the dominant language of recognized text from
// script membership. Engines that report detected languages should be
// preferred; this covers the ones that only return text.
func DetectLanguage(text string) language.Tag {
	if text == "" {
		return language.Und
	}
	thai, latin := 0, 0
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Thai, r):
			thai++
		case r < 128 && unicode.IsLetter(r):
			latin++
		}
	}
	total := thai + latin
	if total == 0 {
		return language.Und
	}
	ratio := float64(thai) / float64(total)
	switch {
	case ratio > 0.7:
		return language.Thai
	case ratio < 0.3:
		return language.English
	default:
		// Mixed-script pages report the larger share.
		if thai > latin {
			return language.Thai
		}
		return language.English
	}
}
