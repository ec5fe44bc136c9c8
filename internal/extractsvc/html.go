package extractsvc

import (
	"os"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nooble/rag-platform/internal/domainaction"
	"github.com/nooble/rag-platform/internal/domainerr"
)

const headingSelector = "h1, h2, h3, h4, h5, h6"

// extractHTML strips script/style/noscript like the teacher's parser did,
// then additionally walks h1-h6 tags to build a section map with real
// character offsets into the returned text, since goquery gives us the DOM
// for free and §4.6's structured tier wants real headings rather than a
// heuristic line-scan.
func extractHTML(filePath string) (Result, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return Result{}, domainerr.NewExtraction(err, "extract", "failed to open HTML file", false)
	}
	defer file.Close()

	doc, err := goquery.NewDocumentFromReader(file)
	if err != nil {
		return Result{}, domainerr.NewExtraction(err, "extract", "failed to parse HTML", false)
	}

	doc.Find("script, style, noscript").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	tables := doc.Find("table").Length()
	hasImages := doc.Find("img").Length() > 0

	headings := doc.Find(headingSelector)
	var text string
	var sections []domainaction.SectionInfo

	if headings.Length() == 0 {
		text = strings.TrimSpace(doc.Text())
	} else {
		var builder strings.Builder
		headings.Each(func(i int, h *goquery.Selection) {
			level, _ := strconv.Atoi(strings.TrimPrefix(goquery.NodeName(h), "h"))
			title := strings.TrimSpace(h.Text())
			if title == "" {
				return
			}
			start := builder.Len()
			builder.WriteString(title)
			builder.WriteString("\n")
			builder.WriteString(strings.TrimSpace(h.NextUntil(headingSelector).Text()))
			builder.WriteString("\n\n")
			sections = append(sections, domainaction.SectionInfo{
				Title: title, Level: level, StartChar: start, EndChar: builder.Len(),
			})
		})
		text = strings.TrimSpace(builder.String())
		for i := range sections {
			if sections[i].EndChar > len(text) {
				sections[i].EndChar = len(text)
			}
		}
	}

	if text == "" {
		return Result{}, domainerr.NewExtraction(nil, "extract", "no text extracted from HTML", false)
	}

	return Result{
		Text:   text,
		Method: "structured",
		Structure: &domainaction.DocumentStructure{
			Sections:  sections,
			Tables:    tables,
			WordCount: wordCount(text),
			HasImages: hasImages,
		},
	}, nil
}
