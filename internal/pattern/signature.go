// Package pattern computes the stable signatures that identify "the same
// situation" across anomalies. Signatures are sha256 hex digests over
// canonical, normalized queue-specific fields; identical inputs always
// produce identical signatures across runs and processes.
package pattern

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Normalize lowercases s, strips punctuation, and collapses whitespace.
// This is the shared normalization used by every signature input and by the
// lookup scorer's tokenization.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens returns the sorted, de-duplicated token set of the normalized input.
func Tokens(s string) []string {
	fields := strings.Fields(Normalize(s))
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func digest(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{'|'})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// AIC derives the signature for unknown-product anomalies:
// vendor plus the normalized line description.
func AIC(vendor, description string) string {
	return digest("aic", Normalize(vendor), Normalize(description))
}

// Listino derives the signature for price-mismatch anomalies:
// vendor, product identifier and the corrected price rounded to 2 decimals.
func Listino(vendor, productCode string, correctedPrice decimal.Decimal) string {
	return digest("listino", Normalize(vendor), Normalize(productCode), correctedPrice.Round(2).StringFixed(2))
}

// Lookup derives the signature for customer-lookup anomalies:
// normalized VAT and the name token set.
func Lookup(vat, name string) string {
	return digest("lookup", Normalize(vat), strings.Join(Tokens(name), " "))
}

// Espositore derives the signature for display-case anomalies:
// vendor, case code and the deviation band.
func Espositore(vendor, caseCode, band string) string {
	return digest("espositore", Normalize(vendor), Normalize(caseCode), strings.ToLower(band))
}
