package polskieradio

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/provider/web"
	"golang.org/x/net/html"
)

var errNoSchedule = errors.New("schedule containers not found")

// onclickRef captures the arguments of showProgrammeDetails('id','schedule','HH:MM','YYYY-MM-DD').
var onclickRef = regexp.MustCompile(`showProgrammeDetails\(\s*'([^']*)'\s*,\s*'([^']*)'\s*,\s*'([^']*)'\s*,\s*'([^']*)'\s*\)`)

// detailsRef turns the popup handler of a programme link into a reference
// of the form "programme|schedule|HH:MM|YYYY-MM-DD".
func detailsRef(onclick string) string {
	m := onclickRef.FindStringSubmatch(onclick)
	if m == nil {
		return ""
	}
	return strings.Join(m[1:], "|")
}

// parseMultiSchedule splits the all-stations page into one list per
// container, in page order.
func parseMultiSchedule(doc *html.Node) ([][]domain.RawItem, error) {
	containers := web.FindAll(doc, web.TagClass("div", "scheduleViewContainer"))
	if len(containers) == 0 {
		return nil, errNoSchedule
	}

	out := make([][]domain.RawItem, 0, len(containers))
	for _, c := range containers {
		var items []domain.RawItem
		for _, li := range web.FindAll(c, web.TagClass("li", "programmeLi")) {
			item := domain.RawItem{
				Start: web.Text(web.Find(li, web.TagClass("span", "sTime"))),
				Title: web.Text(web.Find(li, web.TagClass("span", "desc"))),
			}
			if a := web.Find(li, web.Tag("a")); a != nil {
				item.DetailsRef = detailsRef(web.Attr(a, "onclick"))
			}
			item.Markers = strings.Fields(web.Attr(li, "class"))
			if item.Start == "" && item.Title == "" {
				continue
			}
			items = append(items, item)
		}
		out = append(out, items)
	}
	return out, nil
}

type programmePopup struct {
	Start       string
	Title       string
	Lead        string
	Description string
	Href        string
}

// parsePopup reads the programme details popup.
func parsePopup(doc *html.Node) programmePopup {
	field := func(id string) string {
		return web.Text(web.Find(doc, web.TagID("", "programmeDetails_"+id)))
	}
	popup := programmePopup{
		Start:       field("lblProgrammeStartTime"),
		Title:       field("lblProgrammeTitle"),
		Lead:        meaningful(field("lblProgrammeLead")),
		Description: meaningful(field("lblProgrammeDescription")),
	}
	if a := web.Find(doc, web.TagID("a", "programmeDetails_hypProgrammeWebsite")); a != nil {
		popup.Href = web.Attr(a, "href")
	}
	return popup
}

// meaningful drops the one-character placeholders the site leaves in empty
// description fields.
func meaningful(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(strings.Trim(s, ".-_ ")) < 2 {
		return ""
	}
	return s
}

func (p programmePopup) text() string {
	var parts []string
	for _, s := range []string{p.Lead, p.Description} {
		if s != "" && !strings.Contains(strings.Join(parts, "\n"), s) {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}
