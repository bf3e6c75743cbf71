package db

import (
	"encoding/hex"
	"math"
	"strconv"
	"strings"
)

// EncodeRow renders a row as a parenthesized SQL values tuple.
func EncodeRow(r *Row) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, c := range r.cells {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(EncodeCell(c))
	}
	b.WriteByte(')')
	return b.String()
}

// EncodeCell renders a single cell as an SQL literal.
func EncodeCell(c Cell) string {
	switch c.Kind {
	case KindNull:
		return "NULL"
	case KindInteger:
		if _, err := strconv.ParseInt(c.Value, 10, 64); err == nil {
			return c.Value
		}
		return quoteText(c.Value)
	case KindReal:
		f, err := strconv.ParseFloat(c.Value, 64)
		if err != nil {
			return quoteText(c.Value)
		}
		switch {
		case math.IsNaN(f):
			return "NULL"
		case math.IsInf(f, 1):
			return "9e999"
		case math.IsInf(f, -1):
			return "-9e999"
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	case KindBlob:
		return "X'" + strings.ToUpper(hex.EncodeToString([]byte(c.Value))) + "'"
	default:
		return quoteText(c.Value)
	}
}

// SQLite limits function arity and expression depth, so char() calls take at
// most maxCharArgs zeros and long concatenations are nested as a balanced tree.
const (
	maxCharArgs  = 100
	maxFlatTerms = 64
)

// quoteText quotes s as an SQL string literal. A string literal cannot hold a
// zero byte, so each run of zero bytes becomes char(0, ...) calls and the
// non-empty segments around them are concatenated with ||.
func quoteText(s string) string {
	if !strings.ContainsRune(s, 0) {
		return quoteSegment(s)
	}

	var terms []string
	nulls := 0
	flush := func() {
		for nulls > 0 {
			n := min(nulls, maxCharArgs)
			terms = append(terms, "char("+strings.TrimSuffix(strings.Repeat("0, ", n), ", ")+")")
			nulls -= n
		}
	}
	for i, part := range strings.Split(s, "\x00") {
		if i > 0 {
			nulls++
		}
		if part != "" {
			flush()
			terms = append(terms, quoteSegment(part))
		}
	}
	flush()
	return concat(terms)
}

// concat joins terms with || as a flat chain when short, otherwise as two
// parenthesized halves.
func concat(terms []string) string {
	if len(terms) <= maxFlatTerms {
		return strings.Join(terms, "||")
	}
	mid := len(terms) / 2
	return "(" + concat(terms[:mid]) + ")||(" + concat(terms[mid:]) + ")"
}

func quoteSegment(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteIdent quotes a table or column name.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}
