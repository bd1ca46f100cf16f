package browser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/leadscout/internal/lead"
)

var (
	ratingPattern  = regexp.MustCompile(`(\d[.,]\d)`)
	reviewsPattern = regexp.MustCompile(`\(([\d.,\s]+)\)`)
	labelPrefix    = regexp.MustCompile(`^[\p{L} ]{1,24}:\s*`)

	placeTokenPatterns = []*regexp.Regexp{
		regexp.MustCompile(`!19s(ChIJ[\w-]+)`),
		regexp.MustCompile(`place_id:(ChIJ[\w-]+)`),
		regexp.MustCompile(`!1s(0x[0-9a-fA-F]+:0x[0-9a-fA-F]+)`),
	}
)

// card is a parsed result card.
type card struct {
	root *goquery.Selection
	link *goquery.Selection
}

func parseCard(html, linkSelector string) (card, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return card{}, err
	}
	root := doc.Find("body").Children().First()
	link := root
	if !root.Is("a") {
		link = root.Find(linkSelector).First()
	}
	return card{root: root, link: link}, nil
}

// externalID runs the configured strategies in order and returns the first
// non-empty id.
func (c card) externalID(sel Selectors) string {
	for _, strategy := range sel.IDStrategies {
		var id string
		switch strategy {
		case IDFromCardAttr:
			id = c.root.AttrOr(sel.IDAttribute, "")
		case IDFromLinkAttr:
			id = c.link.AttrOr(sel.IDAttribute, "")
			if id == "" {
				id = c.root.Find("[" + sel.IDAttribute + "]").First().AttrOr(sel.IDAttribute, "")
			}
		case IDFromPlaceToken:
			id = placeToken(c.link.AttrOr("href", ""))
		case IDFromHref:
			id = c.link.AttrOr("href", "")
		}
		if id = strings.TrimSpace(id); id != "" {
			return id
		}
	}
	return ""
}

func (c card) label() string {
	if v := strings.TrimSpace(c.root.AttrOr("aria-label", "")); v != "" {
		return v
	}
	return strings.TrimSpace(c.link.AttrOr("aria-label", ""))
}

func placeToken(href string) string {
	for _, re := range placeTokenPatterns {
		if m := re.FindStringSubmatch(href); m != nil {
			return m[1]
		}
	}
	return ""
}

// detail is the opened place panel.
type detail struct {
	doc *goquery.Document
	sel Selectors
}

func parseDetail(html string, sel Selectors) (detail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return detail{}, err
	}
	return detail{doc: doc, sel: sel}, nil
}

func (d detail) website() string {
	return strings.TrimSpace(d.doc.Find(d.sel.Website).First().AttrOr("href", ""))
}

// candidate reads every remaining field. Each field is independent; a
// missing element leaves the zero value.
func (d detail) candidate(id string, c card, mapsURL string) lead.Candidate {
	out := lead.Candidate{
		ExternalID:      id,
		Name:            d.name(),
		Address:         d.labelled(d.sel.Address),
		Phone:           d.labelled(d.sel.Phone),
		OperatingStatus: d.operatingStatus(),
		MapsURL:         mapsURL,
		BusinessType:    strings.TrimSpace(d.doc.Find(d.sel.Category).First().Text()),
	}
	if out.Name == "" {
		out.Name = c.label()
	}
	out.Rating, out.ReviewCount = parseRating(d.doc.Find(d.sel.Rating).First().Text())
	return out
}

func (d detail) name() string {
	for _, s := range d.sel.Name {
		if v := strings.TrimSpace(d.doc.Find(s).First().Text()); v != "" {
			return v
		}
	}
	return ""
}

func (d detail) labelled(selector string) string {
	node := d.doc.Find(selector).First()
	if node.Length() == 0 {
		return ""
	}
	if v := strings.TrimSpace(node.AttrOr("aria-label", "")); v != "" {
		return strings.TrimSpace(labelPrefix.ReplaceAllString(v, ""))
	}
	return strings.TrimSpace(node.Text())
}

// operatingStatus matches closed markers against the header status line
// only. Review snippets in the same panel can mention closures.
func (d detail) operatingStatus() lead.OperatingStatus {
	var b strings.Builder
	for _, s := range d.sel.Status {
		d.doc.Find(s).Each(func(_ int, node *goquery.Selection) {
			b.WriteString(node.Text())
			b.WriteByte('\n')
		})
	}
	text := strings.ToLower(b.String())
	for _, marker := range d.sel.ClosedMarkers {
		if strings.Contains(text, strings.ToLower(marker)) {
			return lead.OperatingStatusClosed
		}
	}
	return lead.OperatingStatusOperating
}

// parseRating reads "4.8(1,234)" style summaries.
func parseRating(text string) (*float64, int) {
	text = strings.ReplaceAll(text, "\n", "")
	var rating *float64
	if m := ratingPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64); err == nil {
			rating = &v
		}
	}
	reviews := 0
	if m := reviewsPattern.FindStringSubmatch(text); m != nil {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, m[1])
		if v, err := strconv.Atoi(digits); err == nil {
			reviews = v
		}
	}
	return rating, reviews
}
