package db

import (
	"strings"
	"testing"
)

func TestEncodeCell(t *testing.T) {
	tests := []struct {
		name string
		cell Cell
		want string
	}{
		{"null", Null(), "NULL"},
		{"integer", Integer(-42), "-42"},
		{"real", Cell{Kind: KindReal, Value: "1.5"}, "1.5"},
		{"real infinity", Cell{Kind: KindReal, Value: "+Inf"}, "9e999"},
		{"text", Text("hello"), "'hello'"},
		{"text with quote", Text("it's"), "'it''s'"},
		{"empty text", Text(""), "''"},
		{"blob", Blob([]byte{0x00, 0xab, 0x10}), "X'00AB10'"},
		{"integer kind holding text", Cell{Kind: KindInteger, Value: "abc"}, "'abc'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeCell(tt.cell); got != tt.want {
				t.Errorf("EncodeCell(%+v) = %s, want %s", tt.cell, got, tt.want)
			}
		})
	}
}

func TestQuoteTextZeroBytes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"\x00", "char(0)"},
		{"\x00\x00", "char(0, 0)"},
		{"a\x00b", "'a'||char(0)||'b'"},
		{"\x00a", "char(0)||'a'"},
		{"a\x00", "'a'||char(0)"},
		{"a\x00\x00\x00b\x00", "'a'||char(0, 0, 0)||'b'||char(0)"},
		{"x'\x00y", "'x'''||char(0)||'y'"},
	}

	for _, tt := range tests {
		if got := quoteText(tt.in); got != tt.want {
			t.Errorf("quoteText(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestQuoteTextLongZeroByteRuns(t *testing.T) {
	got := quoteText(strings.Repeat("\x00", 250))
	want := "char(" + strings.Repeat("0, ", 99) + "0)||char(" + strings.Repeat("0, ", 99) + "0)||char(" + strings.Repeat("0, ", 49) + "0)"
	if got != want {
		t.Errorf("unexpected encoding of 250 zero bytes: %s", got)
	}
}

func TestQuoteTextManyZeroBytesStaysShallow(t *testing.T) {
	got := quoteText(strings.Repeat("a\x00", 2000))

	depth, deepest := 0, 0
	for _, r := range got {
		switch r {
		case '(':
			depth++
			deepest = max(deepest, depth)
		case ')':
			depth--
		}
	}
	if depth != 0 {
		t.Fatalf("unbalanced parentheses in %s", got)
	}
	// 4000 terms in flat runs of at most 64, plus one char() call.
	if deepest > 8 {
		t.Errorf("nesting too deep: %d", deepest)
	}
	if n := strings.Count(got, "||"); n != 3999 {
		t.Errorf("expected 3999 concatenations, got %d", n)
	}
}

func TestEncodeRow(t *testing.T) {
	r := NewRow(Integer(1), Null(), Text("a"))
	if got := EncodeRow(r); got != "(1, NULL, 'a')" {
		t.Errorf("unexpected encoding %s", got)
	}
	if r.String() != EncodeRow(r) {
		t.Errorf("String should match EncodeRow")
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := QuoteIdent(`we"ird`); got != `"we""ird"` {
		t.Errorf("unexpected quoting %s", got)
	}
}
