package hftokenizer

import (
	"strings"
	"unicode"
)

// Byte-level BPE represents every byte by a printable rune, using the GPT-2 mapping.
var (
	byteToUnicode [256]rune
	unicodeToByte = make(map[rune]byte, 256)
)

func init() {
	n := 0
	for b := 0; b < 256; b++ {
		r := rune(b)
		if !((b >= '!' && b <= '~') || (b >= 0xa1 && b <= 0xac) || (b >= 0xae && b <= 0xff)) {
			r = rune(256 + n)
			n++
		}
		byteToUnicode[b] = r
		unicodeToByte[r] = byte(b)
	}
}

// byteLevelEncode maps each byte of s to its printable rune.
func byteLevelEncode(s string) string {
	var sb strings.Builder
	sb.Grow(2 * len(s))
	for i := 0; i < len(s); i++ {
		sb.WriteRune(byteToUnicode[s[i]])
	}
	return sb.String()
}

// byteLevelDecode reverses byteLevelEncode. Runes outside the mapping are kept as is.
func byteLevelDecode(s string) string {
	result := make([]byte, 0, len(s))
	for _, r := range s {
		if b, ok := unicodeToByte[r]; ok {
			result = append(result, b)
		} else {
			result = append(result, string(r)...)
		}
	}
	return string(result)
}

var contractions = []string{"'s", "'t", "'re", "'ve", "'m", "'ll", "'d"}

// gpt2Split splits text the way the GPT-2 pre-tokenization regex does:
//
//	's|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+
//
// Go's regexp has no lookahead, hence the hand-written scanner.
func gpt2Split(text string) []string {
	runes := []rune(text)
	var words []string
	for i := 0; i < len(runes); {
		if c := matchContraction(runes[i:]); c > 0 {
			words = append(words, string(runes[i:i+c]))
			i += c
			continue
		}

		start := i
		if runes[i] == ' ' && i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			i++
		}
		if !unicode.IsSpace(runes[i]) {
			class := runeClass(runes[i])
			for i < len(runes) && !unicode.IsSpace(runes[i]) && runeClass(runes[i]) == class {
				i++
			}
			words = append(words, string(runes[start:i]))
			continue
		}

		// Whitespace run: leave its last rune to the following word, if any.
		end := i
		for end < len(runes) && unicode.IsSpace(runes[end]) {
			end++
		}
		if end < len(runes) && end-i > 1 {
			end--
		}
		words = append(words, string(runes[i:end]))
		i = end
	}
	return words
}

func matchContraction(runes []rune) int {
	if len(runes) < 2 || runes[0] != '\'' {
		return 0
	}
	for _, c := range contractions {
		n := len(c)
		if len(runes) >= n && string(runes[:n]) == c {
			return n
		}
	}
	return 0
}

const (
	classLetter = iota
	classNumber
	classOther
)

func runeClass(r rune) int {
	switch {
	case unicode.IsLetter(r):
		return classLetter
	case unicode.IsNumber(r):
		return classNumber
	default:
		return classOther
	}
}
