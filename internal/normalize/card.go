package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/V4T54L/agenda-ingest/internal/domain"
)

const untitled = "Sans titre"

// FromCard parses the first listing card found in html.
func (n *Normalizer) FromCard(html string) (*domain.Event, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: parse card: %v", ErrSkipped, err)
	}
	card := doc.Find(n.opts.CardSelector).First()
	if card.Length() == 0 {
		return nil, fmt.Errorf("%w: no %s element", ErrSkipped, n.opts.CardSelector)
	}
	return n.FromCardSelection(card)
}

// CardID returns the card's data-id attribute, or "" when it has none.
func CardID(card *goquery.Selection) string {
	id, _ := card.Attr("data-id")
	return strings.TrimSpace(id)
}

// CardUID derives the stable identifier of a card without parsing its body.
func (n *Normalizer) CardUID(card *goquery.Selection) string {
	id := CardID(card)
	if id == "" {
		return ""
	}
	return PrefixedUID(n.opts.BrowserPrefix, id)
}

// FromCardSelection builds an event from an already located card element.
func (n *Normalizer) FromCardSelection(card *goquery.Selection) (*domain.Event, error) {
	id := CardID(card)
	if id == "" {
		return nil, fmt.Errorf("%w: card without data-id", ErrSkipped)
	}

	img := card.Find("img.thumbnail").First()
	title := strings.TrimSpace(img.AttrOr("alt", ""))
	if title == "" {
		title = untitled
	}
	image := strings.TrimSpace(img.AttrOr("data-path", ""))
	if image == "" {
		image = strings.TrimSpace(img.AttrOr("src", ""))
	}

	days := card.Find(".day")
	rawDate := strings.TrimSpace(days.Eq(0).Text())
	rawTime := ""
	if days.Length() > 1 {
		rawTime = strings.TrimSpace(days.Eq(1).Text())
	}

	cityFull := strings.TrimSpace(card.Find(".location").First().Text())
	city, postal := SplitCityPostal(cityFull)
	name := strings.TrimSpace(card.Find(".card-header .name").First().Text())

	ev := &domain.Event{
		UID:          PrefixedUID(n.opts.BrowserPrefix, id),
		Title:        title,
		Category:     strings.TrimSpace(card.Find(".gender").First().Text()),
		Organizer:    name,
		LocationName: name,
		ImagePath:    image,
		City:         city,
		PostalCode:   postal,
		Country:      n.opts.DefaultCountry,
		Source:       domain.SourceBrowser,
	}
	ev.BeginDate = ParseDate(rawDate, n.today())
	ev.StartTime, ev.EndTime = ParseTimeRange(rawTime)

	outer, _ := goquery.OuterHtml(card)
	raw, err := json.Marshal(map[string]string{
		"data_id":        id,
		"city_full":      cityFull,
		"begin_date_raw": rawDate,
		"start_time_raw": rawTime,
		"html":           outer,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode raw card: %v", ErrSkipped, err)
	}
	ev.Raw = raw
	return ev, nil
}
