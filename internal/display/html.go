package display

import (
	"embed"
	"html/template"
	"io"
)

//go:embed templates/dashboard.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/dashboard.html"))

type NetworkOption struct {
	Name     string
	Title    string
	Selected bool
}

// Page is the data behind the html dashboard. When Message is set it is
// shown instead of the table.
type Page struct {
	Networks []NetworkOption
	View     View
	Message  string
}

func WriteHTML(w io.Writer, page Page) error {
	return pageTemplate.Execute(w, page)
}
