// Package fieldcase converts JSON field names between the snake_case wire and
// storage convention and the camelCase API convention. Conversion is mechanical
// except for the fields listed in the override table, whose mapping cannot be
// derived letter-by-letter (consecutive capitals).
package fieldcase

import "unicode"

type Direction int

const (
	CamelToSnake Direction = iota
	SnakeToCamel
)

// overrides holds camelCase -> snake_case mappings the mechanical converter
// would get wrong. Keep both maps in sync through init.
var overrides = map[string]string{
	"clientIP":  "client_ip",
	"imageDPI":  "image_dpi",
	"fileURL":   "file_url",
	"ocrJSON":   "ocr_json",
	"ttsWAV":    "tts_wav",
	"ragDocIDs": "rag_doc_ids",
}

var reverseOverrides = make(map[string]string, len(overrides))

func init() {
	for camel, snake := range overrides {
		reverseOverrides[snake] = camel
	}
}

// ToCamel replaces each "_x" with "X". Segments without a following letter
// keep their underscore.
func ToCamel(s string) string {
	out := make([]rune, 0, len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '_' && i+1 < len(runes) && unicode.IsLetter(runes[i+1]) {
			out = append(out, unicode.ToUpper(runes[i+1]))
			i++
			continue
		}
		out = append(out, runes[i])
	}
	return string(out)
}

// ToSnake inserts "_" before each interior uppercase letter and lowercases
// everything. Consecutive capitals are split letter-by-letter; fields where
// that is wrong belong in the override table.
func ToSnake(s string) string {
	out := make([]rune, 0, len(s)+4)
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				out = append(out, '_')
			}
			out = append(out, unicode.ToLower(r))
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// ConvertKey rewrites a single key, consulting the override table first.
func ConvertKey(key string, d Direction) string {
	switch d {
	case CamelToSnake:
		if snake, ok := overrides[key]; ok {
			return snake
		}
		return ToSnake(key)
	default:
		if camel, ok := reverseOverrides[key]; ok {
			return camel
		}
		return ToCamel(key)
	}
}

// maxDepth bounds recursion. JSON-decoded values are acyclic, but MapKeys is
// also called on handler-built payloads; beyond this depth the subtree is
// returned unchanged instead of looping.
const maxDepth = 64

// MapKeys rewrites every key in an object graph of maps and slices. Values
// other than map[string]any and []any pass through untouched.
func MapKeys(v any, d Direction) any {
	return mapKeys(v, d, nil, nil, 0)
}

// MapKeysFiltered is MapKeys with field allow/deny behavior. When include is
// non-empty, only the named fields are rewritten (and recursed into); the rest
// are copied through at their original key. When exclude is non-empty, the
// named fields are copied through unchanged and everything else is rewritten.
// The two modes are mutually exclusive; include wins when both are given.
func MapKeysFiltered(v any, d Direction, include, exclude []string) any {
	return mapKeys(v, d, toSet(include), toSet(exclude), 0)
}

func mapKeys(v any, d Direction, include, exclude map[string]struct{}, depth int) any {
	if depth > maxDepth {
		return v
	}
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if include != nil {
				if _, ok := include[k]; !ok {
					out[k] = inner
					continue
				}
			} else if exclude != nil {
				if _, ok := exclude[k]; ok {
					out[k] = inner
					continue
				}
			}
			out[ConvertKey(k, d)] = mapKeys(inner, d, include, exclude, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = mapKeys(inner, d, include, exclude, depth+1)
		}
		return out
	default:
		return v
	}
}

func toSet(fields []string) map[string]struct{} {
	if len(fields) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
