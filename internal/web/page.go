package web

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

const (
	MaxSummaryInput = 1 * 1024 * 1024 // 1MB
	maxLinks        = 50
)

var ErrUnsupportedContent = errors.New("unsupported content type: binary files like images or PDFs are not supported")

type PageSummary struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Text        string   `json:"text"`
	Links       []string `json:"links"`
}

// Summarize turns a cached body into readable text. HTML is reduced to
// markdown plus its outgoing links; other text is returned as is.
func Summarize(pageURL string, body []byte) (*PageSummary, error) {
	if len(body) == 0 {
		return nil, errors.New("empty response body")
	}
	if len(body) > MaxSummaryInput {
		body = append(body[:MaxSummaryInput:MaxSummaryInput], []byte("... [response trimmed due to size]")...)
	}

	contentType := strings.ToLower(http.DetectContentType(body))
	if !strings.HasPrefix(contentType, "text/") {
		return nil, ErrUnsupportedContent
	}
	if !strings.Contains(contentType, "text/html") {
		return &PageSummary{URL: pageURL, Text: string(body)}, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	// Remove non-visible elements
	doc.Find("script, style, noscript, iframe, object, embed, img, video, picture, svg, canvas, audio, source, track, map, area, form, label, input, button, select, textarea, progress, ins, applet").Remove()

	ps := &PageSummary{
		URL:         pageURL,
		Title:       strings.TrimSpace(doc.Find("head > title").First().Text()),
		Description: strings.TrimSpace(doc.Find("meta[name=description]").AttrOr("content", "")),
		Links:       extractLinks(doc, pageURL),
	}

	plainText := strings.Join(strings.Fields(doc.Find("body").Text()), " ")

	doc.Find("a").Remove()
	doc.Find("header, footer, aside").Remove()

	htmlStr, err := doc.Html()
	if err != nil {
		return nil, err
	}
	if markdown, err := htmltomarkdown.ConvertString(htmlStr); err == nil {
		ps.Text = markdown
	} else {
		ps.Text = plainText
	}
	return ps, nil
}

// extractLinks returns up to maxLinks sorted absolute links without
// fragments, skipping javascript:, mailto: and tel: targets.
func extractLinks(doc *goquery.Document, pageURL string) []string {
	base, _ := url.Parse(pageURL)
	set := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "javascript:") {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if !u.IsAbs() && base != nil {
			u = base.ResolveReference(u)
		}
		switch u.Scheme {
		case "", "javascript", "mailto", "tel":
			return
		}
		u.Fragment = ""
		set[u.String()] = struct{}{}
	})

	links := make([]string, 0, len(set))
	for l := range set {
		links = append(links, l)
	}
	sort.Strings(links)
	if len(links) > maxLinks {
		links = links[:maxLinks]
	}
	return links
}
