package pdf

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

// runeWidth measures every rune as 1mm.
func runeWidth(s string) float64 { return float64(utf8.RuneCountInString(s)) }

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width float64
		want  []string
	}{
		{"fits", "short line", 20, []string{"short line"}},
		{"wraps at spaces", "aaa bbb ccc", 7, []string{"aaa bbb", "ccc"}},
		{"empty", "", 10, []string{""}},
		{"newlines keep blank paragraph", "one\n\ntwo", 10, []string{"one", "", "two"}},
		{"long word is broken", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"long word after text", "ab abcdefgh", 4, []string{"ab", "abcd", "efgh"}},
		{"collapses spaces", "a    b", 10, []string{"a b"}},
		{"multibyte runes", "ééééé", 2, []string{"éé", "éé", "é"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapText(tt.in, tt.width, runeWidth)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("wrapText(%q, %v) = %q, want %q", tt.in, tt.width, got, tt.want)
			}
		})
	}
}

func TestWrapText_LinesNeverExceedWidth(t *testing.T) {
	text := strings.Repeat("The client reported improved sleep and fewer panic episodes. ", 20)
	for _, line := range wrapText(text, 30, runeWidth) {
		if runeWidth(line) > 30 {
			t.Fatalf("line %q is wider than 30", line)
		}
	}
}

func TestRecorder_SplitUsesFontMetrics(t *testing.T) {
	r := NewRecorder()
	r.SetStyle(Style{Size: 10})
	narrow := r.Split("iiiiiiiiii iiiiiiiiii", 20)
	wide := r.Split("WWWWWWWWWW WWWWWWWWWW", 20)
	if len(wide) <= len(narrow) {
		t.Errorf("expected wide glyphs to wrap more: narrow=%d wide=%d", len(narrow), len(wide))
	}
}

func TestRecorder_DrawBeforePageFailsAtOutput(t *testing.T) {
	r := NewRecorder()
	r.Text(10, 10, "orphan")
	var sb strings.Builder
	if err := r.Output(&sb); err == nil {
		t.Fatal("expected error for drawing without a page")
	}
}

func renderFixed(t *testing.T, at time.Time) []byte {
	t.Helper()
	c := NewPDFCanvas(A4, DocumentInfo{Title: "Progress note", Author: "Clinic", CreatedAt: at})
	c.AddPage()
	for _, st := range []Style{{Size: 14, Bold: true}, {Size: 10}, {Size: 10, Italic: true}, {Size: 9, Bold: true, Italic: true}} {
		c.SetStyle(st)
		c.Text(20, 30, "Client consents to treatment")
	}
	c.Rule(20, 40, 190, 40)
	var buf bytes.Buffer
	if err := c.Output(&buf); err != nil {
		t.Fatalf("output: %v", err)
	}
	return buf.Bytes()
}

func TestPDFCanvas_FixedDateRendersSameBytes(t *testing.T) {
	at := time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)
	first := renderFixed(t, at)
	time.Sleep(1100 * time.Millisecond)
	for i := 0; i < 5; i++ {
		if got := renderFixed(t, at); !bytes.Equal(first, got) {
			t.Fatalf("render %d differs from the first render", i+1)
		}
	}
}
