package corpus

// key identifies one corpus configuration.
type key struct {
	lang string
	n    int
}

// missingBySize lists identifiers that the enumeration rules produce but no
// 5-gram corpus of the 20120701 release contains, whatever the language.
var missingBySize = map[int][]string{
	5: {"qk"},
}

// exclusions is missingBySize expanded to every published language, plus any
// entries specific to one (language, size). Keep entries sorted.
var exclusions = buildExclusions()

func buildExclusions() map[key][]string {
	out := make(map[key][]string)
	for lang := range languages {
		for n, ids := range missingBySize {
			out[key{lang, n}] = append([]string(nil), ids...)
		}
	}
	return out
}

// Excluded returns the identifiers known to be missing for lang and n.
func Excluded(lang string, n int) []string {
	ex := exclusions[key{lang, n}]
	out := make([]string, len(ex))
	copy(out, ex)
	return out
}
