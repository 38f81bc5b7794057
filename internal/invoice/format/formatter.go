package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gosimple/slug"
)

var (
	seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)
)

const DefaultInvoiceNumberTemplate = "{PREFIX}-{YYYY}-{SEQ6}"

// NormalizePrefix turns a configured prefix into an uppercase slug.
// An empty or unusable prefix falls back to INV.
func NormalizePrefix(prefix string) string {
	normalized := strings.ToUpper(slug.Make(strings.TrimSpace(prefix)))
	if normalized == "" {
		return "INV"
	}
	return normalized
}

// FormatInvoiceNumber renders an invoice number for an academic year and
// per-year sequence. It has no side effects.
func FormatInvoiceNumber(template, prefix string, year int, seq int64) (string, error) {
	if template == "" {
		template = DefaultInvoiceNumberTemplate
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}
	if year <= 0 {
		return "", fmt.Errorf("invalid invoice year: %d", year)
	}

	out := template
	out = strings.ReplaceAll(out, "{PREFIX}", NormalizePrefix(prefix))
	out = strings.ReplaceAll(out, "{YYYY}", fmt.Sprintf("%04d", year))
	out = strings.ReplaceAll(out, "{YY}", fmt.Sprintf("%02d", year%100))
	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		if len(match) != 2 {
			return m
		}
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.Contains(out, "{") || strings.Contains(out, "}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}
	return out, nil
}
