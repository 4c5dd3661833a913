// Package normalize turns free-text product and store names into stable
// canonical keys used for equality lookups across the catalog.
package normalize

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// unaccenter decomposes to NFD, drops combining marks, and recomposes.
// Equivalent to the Postgres unaccent() the database side relies on.
var unaccenter = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func unaccent(s string) string {
	out, _, err := transform.String(unaccenter, s)
	if err != nil {
		// The Mn-removal transform cannot fail on valid UTF-8; fall back to
		// the raw input rather than producing a partial key.
		return s
	}
	return out
}

// productSeparators are the rune runs a raw receipt line is tokenized on.
func isProductSeparator(r rune) bool {
	switch r {
	case '-', '.', '/', ',':
		return true
	}
	return unicode.IsSpace(r)
}

// ProductKey generates a stable, normalized key from raw receipt text.
// The process: lowercase -> unaccent -> split into words -> sort words -> join.
//
// Sorting the tokens makes the key invariant to word order ("LAIT DEMI ECREME"
// and "ECREME LAIT DEMI" produce the same key). That deliberately favors
// recall over precision: distinct multi-word products sharing a token set in
// a different order will merge into one catalog entry.
func ProductKey(rawText string) string {
	processed := unaccent(strings.ToLower(rawText))

	words := strings.FieldsFunc(processed, isProductSeparator)
	sort.Strings(words)

	return strings.Join(words, " ")
}

// storePunctuation is the fixed set stripped from store names.
const storePunctuation = "'\"`.,;:!?()[]{}&+*#-_/\\"

// StoreKey generates a normalized identity key for a store from its name and
// optional location. Unlike ProductKey it preserves word order: store identity
// is order-sensitive on the literal name. Name and location parts are
// concatenated without a separator.
func StoreKey(name, location string) string {
	return storeKeyPart(name) + storeKeyPart(location)
}

func storeKeyPart(s string) string {
	processed := unaccent(strings.ToLower(s))

	var b strings.Builder
	b.Grow(len(processed))
	for _, r := range processed {
		if unicode.IsSpace(r) || strings.ContainsRune(storePunctuation, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
