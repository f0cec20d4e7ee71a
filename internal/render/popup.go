package render

import (
	"bytes"
	"html/template"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/sheetmap/sheetmap/internal/model"
)

// popupTmpl builds the detail popup for one marker. Contextual auto-escaping
// keeps spreadsheet-sourced text inert.
var popupTmpl = template.Must(template.New("popup").Parse(
	`<div class="sheetmap-popup"><h3>{{.Name}}</h3>` +
		`{{if .Description}}<p>{{.Description}}</p>{{end}}` +
		`{{if .LinkURL}}<p><a href="{{.LinkURL}}" target="_blank" rel="noopener">{{.LinkText}}</a></p>{{end}}` +
		`</div>`))

// BuildPopupHTML renders the shared detail popup content for an entry: the
// name as a heading, the description as a paragraph when present, and the
// link only when its URL is well-formed http/https.
func BuildPopupHTML(e model.LocationEntry) (string, error) {
	linkURL := ""
	if IsHTTPURL(e.LinkURL) {
		linkURL = e.LinkURL
	}

	data := struct {
		Name        string
		Description string
		LinkURL     string
		LinkText    string
	}{
		Name:        e.Name,
		Description: e.Description,
		LinkURL:     linkURL,
		LinkText:    e.LinkText,
	}

	var buf bytes.Buffer
	if err := popupTmpl.Execute(&buf, data); err != nil {
		return "", eris.Wrapf(err, "render: popup for %q", e.Name)
	}
	return buf.String(), nil
}

// IsHTTPURL reports whether raw parses as an absolute http or https URL.
func IsHTTPURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
