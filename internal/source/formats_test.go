package source

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/fumiama/go-docx"
)

func TestMarkdownSource_Lines(t *testing.T) {
	input := `# LEGE nr. 1/2011

## CAPITOLUL I - Dispoziţii generale

Art. 1. - Prezenta lege reglementează
cadrul general.

* (1) Prima teză.
* (2) A doua teză.

` + "```" + `
ARTICOLUL 2
` + "```" + `
`
	doc, err := (&MarkdownSource{}).Read(strings.NewReader(input), "lege.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "lege" {
		t.Errorf("expected title %q, got %q", "lege", doc.Title)
	}
	want := []string{
		"LEGE nr. 1/2011",
		"CAPITOLUL I - Dispoziţii generale",
		"Art. 1. - Prezenta lege reglementează",
		"cadrul general.",
		"(1) Prima teză.",
		"(2) A doua teză.",
		"ARTICOLUL 2",
	}
	if !reflect.DeepEqual(doc.Lines, want) {
		t.Errorf("lines:\n got %q\nwant %q", doc.Lines, want)
	}
}

func TestMarkdownSource_Emphasis(t *testing.T) {
	doc, err := (&MarkdownSource{}).Read(strings.NewReader("**SECŢIUNEA 2**: Remedies\n"), "x.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Lines) != 1 || doc.Lines[0] != "SECŢIUNEA 2: Remedies" {
		t.Errorf("got %q", doc.Lines)
	}
}

func TestHTMLSource_Lines(t *testing.T) {
	input := `<html><head><title>Codul civil</title><style>p{}</style></head>
<body>
<nav>meniu</nav>
<h2>TITLUL   PRELIMINAR</h2>
<p>ARTICOLUL <b>1</b></p>
<p>Izvoarele dreptului civil<br>sunt legea, uzanţele.</p>
<ul><li>a) legea;</li><li>b) uzanţele.</li></ul>
<script>var x = 1;</script>
</body></html>`
	doc, err := (&HTMLSource{}).Read(strings.NewReader(input), "cod.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "Codul civil" {
		t.Errorf("expected title from <title>, got %q", doc.Title)
	}
	want := []string{
		"TITLUL PRELIMINAR",
		"ARTICOLUL 1",
		"Izvoarele dreptului civil",
		"sunt legea, uzanţele.",
		"a) legea;",
		"b) uzanţele.",
	}
	if !reflect.DeepEqual(doc.Lines, want) {
		t.Errorf("lines:\n got %q\nwant %q", doc.Lines, want)
	}
}

func TestDOCXSource_Lines(t *testing.T) {
	w := docx.New().WithDefaultTheme()
	w.AddParagraph().AddText("CAPITOLUL II")
	w.AddParagraph()
	w.AddParagraph().AddText("  ARTICOLUL 3  ")
	w.AddParagraph().AddText("Conţinut.")
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		t.Fatalf("write docx: %v", err)
	}

	doc, err := (&DOCXSource{}).Read(&buf, "act.docx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"CAPITOLUL II", "ARTICOLUL 3", "Conţinut."}
	if !reflect.DeepEqual(doc.Lines, want) {
		t.Errorf("lines:\n got %q\nwant %q", doc.Lines, want)
	}
	if doc.Title != "act" {
		t.Errorf("expected title %q, got %q", "act", doc.Title)
	}
}

func TestDOCXSource_Garbage(t *testing.T) {
	if _, err := (&DOCXSource{}).Read(strings.NewReader("not a zip"), "bad.docx"); err == nil {
		t.Error("expected error for invalid docx")
	}
}
