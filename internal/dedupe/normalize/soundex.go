package normalize

// soundexMapping encodes A..Z to their Soundex digit, '0' meaning ignored.
const soundexMapping = "01230120022455012623010202"

// Soundex computes the classic 4-character phonetic code of an
// already-canonicalized name. Non A-Z runes are skipped; an input with no
// usable letters yields "".
func Soundex(name string) string {
	code := make([]byte, 0, 4)
	var lastDigit byte

	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 'A' || c > 'Z' {
			continue
		}
		digit := soundexMapping[c-'A']
		if len(code) == 0 {
			code = append(code, c)
			lastDigit = digit
			continue
		}
		if digit != '0' && digit != lastDigit {
			code = append(code, digit)
			if len(code) == 4 {
				break
			}
		}
		lastDigit = digit
	}

	if len(code) == 0 {
		return ""
	}
	for len(code) < 4 {
		code = append(code, '0')
	}
	return string(code)
}
