package cursor

import "unicode/utf16"

// Palette 사용자 색상 팔레트
var Palette = []string{
	"#e74c3c", "#3498db", "#2ecc71", "#f39c12", "#9b59b6",
	"#1abc9c", "#e67e22", "#e91e63", "#00bcd4", "#8bc34a",
	"#ff5722", "#607d8b", "#795548", "#ff9800", "#4caf50",
}

// UserColor maps a user id to a stable palette colour. The hash runs over
// UTF-16 code units with 32-bit wraparound so every client, whatever it is
// written in, agrees on the colour.
func UserColor(userID string) string {
	var hash int32
	for _, unit := range utf16.Encode([]rune(userID)) {
		hash = hash*31 + int32(unit)
	}
	h := int64(hash)
	if h < 0 {
		h = -h
	}
	return Palette[h%int64(len(Palette))]
}
