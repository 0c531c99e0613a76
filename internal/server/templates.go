package server

import (
	_ "embed"
	"html/template"
)

//go:embed templates/callback.html
var callbackPageTemplateHTML string

var callbackPageTemplate = template.Must(template.New("callback").Parse(callbackPageTemplateHTML))

// CallbackPageData is rendered into the popup once the provider redirects
// back. The page only informs the user; the outcome travels on the
// message channel.
type CallbackPageData struct {
	Title            string
	Message          string
	Success          bool
	CloseAfterMillis int
}
