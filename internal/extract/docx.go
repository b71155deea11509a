package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"mime"
	"path"
	"sort"
	"strings"

	"baagent/internal/types"
)

const (
	documentPart = "word/document.xml"
	mediaPrefix  = "word/media/"
	wordMLNS     = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	maxPartSize  = 64 << 20
)

// extractDOCX joins the text of every body paragraph with newlines and
// collects the images stored under word/media.
func extractDOCX(data []byte) (types.ExtractedContent, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return types.ExtractedContent{}, fmt.Errorf("not a docx package: %w", err)
	}

	var doc *zip.File
	var media []*zip.File
	for _, f := range zr.File {
		switch {
		case f.Name == documentPart:
			doc = f
		case strings.HasPrefix(f.Name, mediaPrefix) && imageMIME(f.Name) != "":
			media = append(media, f)
		}
	}
	if doc == nil {
		return types.ExtractedContent{}, fmt.Errorf("missing %s", documentPart)
	}

	raw, err := readPart(doc)
	if err != nil {
		return types.ExtractedContent{}, err
	}
	paragraphs, err := paragraphText(raw)
	if err != nil {
		return types.ExtractedContent{}, err
	}

	sort.Slice(media, func(i, j int) bool { return media[i].Name < media[j].Name })
	images := make([]types.Media, 0, len(media))
	for _, f := range media {
		b, err := readPart(f)
		if err != nil {
			return types.ExtractedContent{}, err
		}
		images = append(images, types.NewMedia(imageMIME(f.Name), b))
	}

	return types.ExtractedContent{Text: strings.Join(paragraphs, "\n"), Media: images}, nil
}

func readPart(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(io.LimitReader(rc, maxPartSize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return b, nil
}

// paragraphText walks document.xml and returns one string per w:p element,
// in order. Tabs and breaks inside a paragraph become \t and \n.
func paragraphText(raw []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var (
		paragraphs []string
		cur        strings.Builder
		depth      int
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", documentPart, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordMLNS {
				continue
			}
			switch t.Name.Local {
			case "p":
				if depth == 0 {
					cur.Reset()
				}
				depth++
			case "t":
				inText = true
			case "tab":
				if depth > 0 {
					cur.WriteByte('\t')
				}
			case "br", "cr":
				if depth > 0 {
					cur.WriteByte('\n')
				}
			}
		case xml.EndElement:
			if t.Name.Space != wordMLNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				depth--
				if depth == 0 {
					paragraphs = append(paragraphs, cur.String())
				}
			}
		case xml.CharData:
			if inText && depth > 0 {
				cur.Write(t)
			}
		}
	}
	return paragraphs, nil
}

// imageMIME maps a media part name to its image MIME type, or "" when the
// part is not an image.
func imageMIME(name string) string {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".webp":
		return "image/webp"
	}
	if t := mime.TypeByExtension(ext); strings.HasPrefix(t, "image/") {
		return t
	}
	return ""
}
