package notify

import (
	"bytes"
	_ "embed"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobcheck/internal/model"
)

//go:embed templates/alert.html
var alertHTMLRaw string

//go:embed templates/alert.txt
var alertTextRaw string

var funcs = map[string]any{
	"inc": func(i int) int { return i + 1 },
}

var (
	alertHTML = htmltemplate.Must(htmltemplate.New("alert.html").Funcs(funcs).Parse(alertHTMLRaw))
	alertText = texttemplate.Must(texttemplate.New("alert.txt").Funcs(funcs).Parse(alertTextRaw))
)

type alertView struct {
	PersonName string
	Previous   string
	New        string
	Confidence int
	Evidence   []evidenceView
}

type evidenceView struct {
	Snippet string
	Link    string
}

// Subject returns the email subject for a change alert.
func Subject(alert model.ChangeAlert) string {
	return "Job Change Alert: " + alert.PersonName + " has a new position"
}

// Render produces the HTML and plain-text bodies for a change alert.
func Render(alert model.ChangeAlert) (html, text string, err error) {
	view := alertView{
		PersonName: alert.PersonName,
		Previous:   describe(alert.Previous),
		New:        describe(alert.Proposed),
		Confidence: alert.Confidence,
	}
	for _, e := range alert.Evidence {
		view.Evidence = append(view.Evidence, evidenceView{Snippet: orNA(e.Snippet), Link: e.Link})
	}

	var hb, tb bytes.Buffer
	if err := alertHTML.Execute(&hb, view); err != nil {
		return "", "", eris.Wrap(err, "notify: render html")
	}
	if err := alertText.Execute(&tb, view); err != nil {
		return "", "", eris.Wrap(err, "notify: render text")
	}
	return hb.String(), strings.TrimSpace(tb.String()), nil
}

func describe(p model.Position) string {
	return orUnknown(p.Role) + " at " + orUnknown(p.Company)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
