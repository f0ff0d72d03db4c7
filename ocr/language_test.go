package ocr

import (
	"testing"

	"golang.org/x/text/language"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want language.Tag
	}{
		{"english", "The quick brown fox jumps over the lazy dog", language.English},
		{"thai", "สวัสดีครับ ยินดีต้อนรับสู่ระบบ", language.Thai},
		{"empty", "", language.Und},
		{"digits only", "12345 67890", language.Und},
		{"mostly english with thai", "The document covers สวัสดี basics of processing and more", language.English},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectLanguage(tt.text); got != tt.want {
				t.Errorf("DetectLanguage(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
