// Package testutil builds on-disk source fixtures for tests.
package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Slide is the list of shape texts on one slide. Newlines inside a shape text
// become separate paragraphs; an empty string is a shape without text.
type Slide []string

// WritePPTX writes a minimal slide deck to dir/name and returns its path.
// order lists 1-based slide numbers in presentation order; nil keeps the
// natural order, and an empty non-nil slice omits the presentation parts.
func WritePPTX(t testing.TB, dir, name string, slides []Slide, order []int) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	put := func(part, body string) {
		w, err := zw.Create(part)
		if err != nil {
			t.Fatalf("create %s: %v", part, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write %s: %v", part, err)
		}
	}

	for i, s := range slides {
		put(fmt.Sprintf("ppt/slides/slide%d.xml", i+1), slideXML(s))
	}
	if order == nil {
		order = make([]int, len(slides))
		for i := range slides {
			order[i] = i + 1
		}
	}
	if len(order) > 0 {
		var ids, rels strings.Builder
		for i, n := range order {
			fmt.Fprintf(&ids, `<p:sldId id="%d" r:id="rId%d"/>`, 256+i, 100+n)
		}
		for n := range slides {
			fmt.Fprintf(&rels, `<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide" Target="slides/slide%d.xml"/>`, 101+n, n+1)
		}
		rels.WriteString(`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideMaster" Target="slideMasters/slideMaster1.xml"/>`)
		put("ppt/presentation.xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+
			`<p:presentation xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">`+
			`<p:sldIdLst>`+ids.String()+`</p:sldIdLst></p:presentation>`)
		put("ppt/_rels/presentation.xml.rels", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+
			`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`+rels.String()+`</Relationships>`)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write pptx: %v", err)
	}
	return p
}

func slideXML(s Slide) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	b.WriteString(`<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"><p:cSld><p:spTree>`)
	for i, shape := range s {
		fmt.Fprintf(&b, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="Shape %d"/></p:nvSpPr>`, i+2, i+1)
		if shape == "" {
			b.WriteString(`<p:spPr/></p:sp>`)
			continue
		}
		b.WriteString(`<p:txBody><a:bodyPr/>`)
		for _, para := range strings.Split(shape, "\n") {
			b.WriteString(`<a:p><a:r><a:rPr lang="en-US"/><a:t>`)
			_ = xml.EscapeText(&b, []byte(para))
			b.WriteString(`</a:t></a:r></a:p>`)
		}
		b.WriteString(`</p:txBody></p:sp>`)
	}
	// a picture never contributes text
	b.WriteString(`<p:pic><p:nvPicPr><p:cNvPr id="99" name="Picture"/></p:nvPicPr></p:pic>`)
	b.WriteString(`</p:spTree></p:cSld></p:sld>`)
	return b.String()
}

// WritePDF writes a single-font PDF with one text line per page.
func WritePDF(t testing.TB, dir, name string, pages []string) string {
	t.Helper()
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	n := len(pages)
	// 1 catalog, 2 pages, 3 font, then (page, content) pairs
	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	for i, text := range pages {
		esc := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`).Replace(text)
		stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", esc)
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return p
}
