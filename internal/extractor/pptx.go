package extractor

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"docqa/internal/domain"
)

const (
	nsPresentation  = "http://schemas.openxmlformats.org/presentationml/2006/main"
	nsDrawing       = "http://schemas.openxmlformats.org/drawingml/2006/main"
	relTypeSlide    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide"
	presentationXML = "ppt/presentation.xml"
	presentationRel = "ppt/_rels/presentation.xml.rels"
)

var slidePartRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// extractPPTX concatenates the text of every text-bearing shape, slide by slide.
func extractPPTX(p string) (string, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrExtraction, p, err)
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	var texts []string
	for _, name := range slideOrder(files) {
		f, ok := files[name]
		if !ok {
			continue
		}
		shapes, err := readSlide(f)
		if err != nil {
			return "", fmt.Errorf("%w: %s %s: %v", domain.ErrExtraction, p, name, err)
		}
		texts = append(texts, shapes...)
	}
	return strings.Join(texts, "\n"), nil
}

// presentation mirrors the slide list of ppt/presentation.xml.
type presentation struct {
	SlideIDs []struct {
		RelID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

type relationships struct {
	Items []struct {
		ID     string `xml:"Id,attr"`
		Type   string `xml:"Type,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// slideOrder returns slide part names in presentation order, falling back to
// the numeric slideN order when the presentation parts are missing or unreadable.
func slideOrder(files map[string]*zip.File) []string {
	if ordered := presentationOrder(files); len(ordered) > 0 {
		return ordered
	}
	type numbered struct {
		n    int
		name string
	}
	var slides []numbered
	for name := range files {
		m := slidePartRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, numbered{n, name})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })
	out := make([]string, len(slides))
	for i, s := range slides {
		out[i] = s.name
	}
	return out
}

func presentationOrder(files map[string]*zip.File) []string {
	var pres presentation
	if err := decodePart(files[presentationXML], &pres); err != nil || len(pres.SlideIDs) == 0 {
		return nil
	}
	var rels relationships
	if err := decodePart(files[presentationRel], &rels); err != nil {
		return nil
	}
	targets := make(map[string]string, len(rels.Items))
	for _, r := range rels.Items {
		if r.Type != relTypeSlide {
			continue
		}
		if strings.HasPrefix(r.Target, "/") {
			targets[r.ID] = strings.TrimPrefix(r.Target, "/")
		} else {
			targets[r.ID] = path.Join("ppt", r.Target)
		}
	}
	out := make([]string, 0, len(pres.SlideIDs))
	for _, id := range pres.SlideIDs {
		if t, ok := targets[id.RelID]; ok {
			out = append(out, t)
		}
	}
	return out
}

func decodePart(f *zip.File, v any) error {
	if f == nil {
		return fmt.Errorf("missing part")
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(v)
}

// readSlide returns the text of each shape on the slide in document order.
// Paragraphs within a shape are separated by newlines; shapes without text
// are skipped.
func readSlide(f *zip.File) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var (
		shapes  []string
		paras   []string
		para    strings.Builder
		inShape bool
		inText  bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Space == nsPresentation && t.Name.Local == "sp":
				inShape = true
				paras = paras[:0]
			case !inShape || t.Name.Space != nsDrawing:
			case t.Name.Local == "p":
				para.Reset()
			case t.Name.Local == "t":
				inText = true
			case t.Name.Local == "br":
				para.WriteString("\n")
			}
		case xml.EndElement:
			switch {
			case t.Name.Space == nsPresentation && t.Name.Local == "sp":
				inShape = false
				if text := strings.Join(paras, "\n"); strings.TrimSpace(text) != "" {
					shapes = append(shapes, text)
				}
			case !inShape || t.Name.Space != nsDrawing:
			case t.Name.Local == "t":
				inText = false
			case t.Name.Local == "p":
				paras = append(paras, para.String())
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return shapes, nil
}
