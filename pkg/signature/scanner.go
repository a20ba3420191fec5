// Package signature implements Hull's dual-layer signature document
// format and verification pipeline, per spec.md §4.4.
//
// Grounded on pkg/verifier.VerifyBundle's offline, zero-network,
// accumulate-a-report verification style, and on the explicit Design
// Note in spec.md §9 ("Hand-written JSON parse for signatures ...
// Preserve this — the replacement should be a targeted depth-aware key
// scanner with canonical-string extraction, not a generic JSON
// library"): the scanner below walks the document byte-by-byte and
// only descends into a field's structure when that field's name is
// one the fixed schema expects at that depth.
package signature

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mindburn-labs/hull/pkg/herrors"
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindObject
	kindArray
	kindBool
	kindNull
)

// field is one scanned key's value: raw holds the exact byte span from
// the source document (used for canonical payload reconstruction,
// since the signer's output is already JCS-canonical and re-emitting
// the identical bytes is what verification requires), str holds the
// unescaped value for kindString.
type field struct {
	kind fieldKind
	raw  []byte
	str  string
}

// scanObjectFields scans a single JSON object starting at data[pos]
// (which must be '{') and returns each key's value as a field, without
// recursing into nested objects/arrays — those are captured as opaque
// raw spans for the caller to scan again if, and only if, that key is
// expected to have further structure.
func scanObjectFields(data []byte, pos int) (map[string]field, int, error) {
	if pos >= len(data) || data[pos] != '{' {
		return nil, pos, herrors.New(herrors.InvalidArgument, "signature: expected object")
	}
	pos++
	out := make(map[string]field)

	pos = skipWS(data, pos)
	if pos < len(data) && data[pos] == '}' {
		return out, pos + 1, nil
	}

	for {
		pos = skipWS(data, pos)
		if pos >= len(data) || data[pos] != '"' {
			return nil, pos, herrors.New(herrors.InvalidArgument, "signature: expected key string")
		}
		key, next, err := scanStringLiteral(data, pos)
		if err != nil {
			return nil, pos, err
		}
		pos = next

		pos = skipWS(data, pos)
		if pos >= len(data) || data[pos] != ':' {
			return nil, pos, herrors.New(herrors.InvalidArgument, "signature: expected ':' after key")
		}
		pos++
		pos = skipWS(data, pos)

		val, next, err := scanValue(data, pos)
		if err != nil {
			return nil, pos, err
		}
		out[key] = val
		pos = next

		pos = skipWS(data, pos)
		if pos >= len(data) {
			return nil, pos, herrors.New(herrors.InvalidArgument, "signature: truncated object")
		}
		if data[pos] == ',' {
			pos++
			continue
		}
		if data[pos] == '}' {
			return out, pos + 1, nil
		}
		return nil, pos, herrors.New(herrors.InvalidArgument, "signature: expected ',' or '}'")
	}
}

// scanArrayElements scans a JSON array at data[pos] (must be '[') and
// returns each element as a raw field, again without recursing.
func scanArrayElements(data []byte, pos int) ([]field, int, error) {
	if pos >= len(data) || data[pos] != '[' {
		return nil, pos, herrors.New(herrors.InvalidArgument, "signature: expected array")
	}
	pos++
	var out []field

	pos = skipWS(data, pos)
	if pos < len(data) && data[pos] == ']' {
		return out, pos + 1, nil
	}

	for {
		pos = skipWS(data, pos)
		val, next, err := scanValue(data, pos)
		if err != nil {
			return nil, pos, err
		}
		out = append(out, val)
		pos = next

		pos = skipWS(data, pos)
		if pos >= len(data) {
			return nil, pos, herrors.New(herrors.InvalidArgument, "signature: truncated array")
		}
		if data[pos] == ',' {
			pos++
			continue
		}
		if data[pos] == ']' {
			return out, pos + 1, nil
		}
		return nil, pos, herrors.New(herrors.InvalidArgument, "signature: expected ',' or ']'")
	}
}

func scanValue(data []byte, pos int) (field, int, error) {
	if pos >= len(data) {
		return field{}, pos, herrors.New(herrors.InvalidArgument, "signature: unexpected end of document")
	}
	switch c := data[pos]; {
	case c == '"':
		s, next, err := scanStringLiteral(data, pos)
		if err != nil {
			return field{}, pos, err
		}
		return field{kind: kindString, raw: data[pos:next], str: s}, next, nil
	case c == '{':
		next, err := scanBalanced(data, pos, '{', '}')
		if err != nil {
			return field{}, pos, err
		}
		return field{kind: kindObject, raw: data[pos:next]}, next, nil
	case c == '[':
		next, err := scanBalanced(data, pos, '[', ']')
		if err != nil {
			return field{}, pos, err
		}
		return field{kind: kindArray, raw: data[pos:next]}, next, nil
	case strings.HasPrefix(string(data[pos:min(pos+4, len(data))]), "true"):
		return field{kind: kindBool, raw: data[pos : pos+4]}, pos + 4, nil
	case strings.HasPrefix(string(data[pos:min(pos+5, len(data))]), "false"):
		return field{kind: kindBool, raw: data[pos : pos+5]}, pos + 5, nil
	case strings.HasPrefix(string(data[pos:min(pos+4, len(data))]), "null"):
		return field{kind: kindNull, raw: data[pos : pos+4]}, pos + 4, nil
	case c == '-' || (c >= '0' && c <= '9'):
		next := pos
		for next < len(data) && isNumberByte(data[next]) {
			next++
		}
		if _, err := strconv.ParseFloat(string(data[pos:next]), 64); err != nil {
			return field{}, pos, herrors.New(herrors.InvalidArgument, "signature: malformed number")
		}
		return field{kind: kindNumber, raw: data[pos:next]}, next, nil
	default:
		return field{}, pos, herrors.New(herrors.InvalidArgument, fmt.Sprintf("signature: unexpected byte %q", c))
	}
}

// scanBalanced walks a '{'/'}' or '['/']' span, tracking nesting depth
// and skipping over string literals (so braces inside strings don't
// confuse the depth count), and returns the index just past the
// closing delimiter.
func scanBalanced(data []byte, pos int, open, close byte) (int, error) {
	if pos >= len(data) || data[pos] != open {
		return pos, herrors.New(herrors.InvalidArgument, "signature: expected balanced span")
	}
	depth := 0
	for i := pos; i < len(data); i++ {
		switch data[i] {
		case '"':
			_, next, err := scanStringLiteral(data, i)
			if err != nil {
				return pos, err
			}
			i = next - 1
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i + 1, nil
			}
		}
	}
	return pos, herrors.New(herrors.InvalidArgument, "signature: unbalanced span")
}

func scanStringLiteral(data []byte, pos int) (string, int, error) {
	if pos >= len(data) || data[pos] != '"' {
		return "", pos, herrors.New(herrors.InvalidArgument, "signature: expected string")
	}
	var sb strings.Builder
	i := pos + 1
	for i < len(data) {
		c := data[i]
		if c == '"' {
			return sb.String(), i + 1, nil
		}
		if c == '\\' {
			if i+1 >= len(data) {
				return "", pos, herrors.New(herrors.InvalidArgument, "signature: truncated escape")
			}
			switch data[i+1] {
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			case '/':
				sb.WriteByte('/')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'u':
				if i+6 > len(data) {
					return "", pos, herrors.New(herrors.InvalidArgument, "signature: truncated unicode escape")
				}
				r, err := strconv.ParseUint(string(data[i+2:i+6]), 16, 32)
				if err != nil {
					return "", pos, herrors.New(herrors.InvalidArgument, "signature: bad unicode escape")
				}
				sb.WriteRune(rune(r))
				i += 4
			default:
				return "", pos, herrors.New(herrors.InvalidArgument, "signature: bad escape sequence")
			}
			i += 2
			continue
		}
		sb.WriteByte(c)
		i++
	}
	return "", pos, herrors.New(herrors.InvalidArgument, "signature: unterminated string")
}

func skipWS(data []byte, pos int) int {
	for pos < len(data) {
		switch data[pos] {
		case ' ', '\t', '\n', '\r':
			pos++
		default:
			return pos
		}
	}
	return pos
}

func isNumberByte(c byte) bool {
	return (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E'
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
