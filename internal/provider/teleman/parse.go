package teleman

import (
	"errors"
	"path"
	"strings"

	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/provider/web"
	"golang.org/x/net/html"
)

const stationsPath = "/program-tv/stacje/"

var errNoSchedule = errors.New("station schedule list not found")

// parseStations reads the station index into (id, name) pairs.
func parseStations(doc *html.Node) []domain.Source {
	nav := web.Find(doc, web.TagID("", "stations-index"))
	if nav == nil {
		return nil
	}

	seen := make(map[domain.SourceID]bool)
	var sources []domain.Source
	for _, a := range web.FindAll(nav, web.Tag("a")) {
		href := web.Attr(a, "href")
		if !strings.HasPrefix(href, stationsPath) {
			continue
		}
		id := domain.SourceID(path.Base(strings.TrimRight(href, "/")))
		name := web.Text(a)
		if id == "" || name == "" || seen[id] {
			continue
		}
		seen[id] = true
		sources = append(sources, domain.Source{ProviderID: domain.ProviderTeleman, ID: id, Name: name})
	}
	return sources
}

// parseSchedule reads a station day page. A page without the schedule list
// means the layout changed.
func parseSchedule(doc *html.Node) ([]domain.RawItem, error) {
	list := web.Find(doc, web.TagClass("ul", "stationItems"))
	if list == nil {
		return nil, errNoSchedule
	}

	var items []domain.RawItem
	for _, li := range web.Children(list, web.Tag("li")) {
		item := domain.RawItem{
			Start:   web.Text(web.Find(li, web.Tag("em"))),
			Markers: markers(li),
		}

		if detail := web.Find(li, web.TagClass("div", "detail")); detail != nil {
			if a := web.Find(detail, web.Tag("a")); a != nil {
				item.Title = web.Text(a)
				item.DetailsRef = web.Attr(a, "href")
			}
			for _, p := range web.FindAll(detail, web.Tag("p")) {
				switch {
				case web.HasClass(p, "genre"):
					if item.Subtitle == "" {
						item.Subtitle = web.Text(p)
					}
				case item.Description == "":
					item.Description = web.Text(p)
				}
			}
		}

		if item.Start == "" && item.Title == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// markers collects accessibility hints: class tokens, titles and alt texts of
// the entry's decorations.
func markers(li *html.Node) []string {
	var out []string
	out = append(out, strings.Fields(web.Attr(li, "class"))...)
	for _, n := range web.FindAll(li, func(n *html.Node) bool { return n.Type == html.ElementNode }) {
		switch n.Data {
		case "em", "a", "p", "div":
			continue
		}
		out = append(out, strings.Fields(web.Attr(n, "class"))...)
		for _, key := range []string{"title", "alt"} {
			if v := strings.TrimSpace(web.Attr(n, key)); v != "" {
				out = append(out, v)
			}
		}
		if n.Data == "span" || n.Data == "abbr" {
			if t := web.Text(n); t != "" && len(t) <= 24 {
				out = append(out, t)
			}
		}
	}
	return out
}

// parseDetails renders the sections of a show page as "Heading: text" blocks.
func parseDetails(doc *html.Node) string {
	var blocks []string
	for _, section := range web.FindAll(doc, web.TagClass("div", "section")) {
		heading := web.Text(web.Find(section, web.Tag("h2")))
		var paras []string
		for _, p := range web.FindAll(section, web.Tag("p")) {
			if t := web.Text(p); t != "" {
				paras = append(paras, t)
			}
		}
		if len(paras) == 0 {
			continue
		}
		text := strings.Join(paras, "\n")
		if heading != "" {
			text = heading + ":\n" + text
		}
		blocks = append(blocks, text)
	}
	return strings.Join(blocks, "\n\n")
}
