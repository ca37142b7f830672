// Package render отрисовывает дайджест в текстовое и HTML тело письма.
package render

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"

	"forum-digest/internal/domain"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

const stampLayout = "Jan 2, 2006 15:04 UTC"

// Options задаёт оформление письма.
type Options struct {
	LMSBase       string
	LogoURL       string
	PostalAddress string
}

// Renderer отрисовывает письма по встроенным шаблонам.
type Renderer struct {
	text *texttemplate.Template
	html *htmltemplate.Template
	md   goldmark.Markdown
	opts Options
	log  zerolog.Logger
}

type view struct {
	User           domain.User
	Digest         domain.Digest
	Title          string
	Description    string
	CourseCount    int
	CourseNames    string
	ThreadCount    int
	LogoURL        string
	UnsubscribeURL string
	PostalAddress  string
	Lang           string
	Broad          bool
}

// New разбирает встроенные шаблоны.
func New(opts Options, logger zerolog.Logger) (*Renderer, error) {
	r := &Renderer{md: goldmark.New(), opts: opts, log: logger}
	funcs := map[string]any{
		"stamp": func(t time.Time) string { return t.UTC().Format(stampLayout) },
		"iso":   func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
	}

	text, err := texttemplate.New("digest-email.txt.tmpl").Funcs(funcs).ParseFS(templatesFS, "templates/digest-email.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}
	htmlFuncs := htmltemplate.FuncMap{"markdown": r.markdown}
	for k, v := range funcs {
		htmlFuncs[k] = v
	}
	html, err := htmltemplate.New("digest-email.html.tmpl").Funcs(htmlFuncs).ParseFS(templatesFS, "templates/digest-email.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	r.text, r.html = text, html
	return r, nil
}

// Render возвращает текстовое и HTML тело письма.
func (r *Renderer) Render(user domain.User, digest domain.Digest, title, description string, mode domain.Mode) (string, string, error) {
	r.log.Debug().Str("user", user.ID).Str("mode", mode.String()).Msg("render: отрисовка письма")
	names := make([]string, 0, len(digest.Courses))
	for _, c := range digest.Courses {
		if c.Title != "" {
			names = append(names, c.Title)
		}
	}
	v := view{
		User:           user,
		Digest:         digest,
		Title:          title,
		Description:    description,
		CourseCount:    len(digest.Courses),
		CourseNames:    TextList(names),
		ThreadCount:    digest.ThreadCount(),
		LogoURL:        r.opts.LogoURL,
		UnsubscribeURL: r.unsubscribeURL(user, mode),
		PostalAddress:  r.opts.PostalAddress,
		Lang:           language(user),
		Broad:          mode.IsBroad(),
	}

	var text, html bytes.Buffer
	if err := r.text.Execute(&text, v); err != nil {
		return "", "", fmt.Errorf("render text: %w", err)
	}
	if err := r.html.Execute(&html, v); err != nil {
		return "", "", fmt.Errorf("render html: %w", err)
	}
	return text.String(), html.String(), nil
}

// unsubscribeURL строится из токена в предпочтении режима.
func (r *Renderer) unsubscribeURL(user domain.User, mode domain.Mode) string {
	token := user.Preference(mode.PreferenceKey())
	if token == "" {
		r.log.Error().Str("user", user.ID).Str("name", user.Name).Msg("render: у пользователя нет токена отписки")
	}
	url := fmt.Sprintf("%s/notification_prefs/unsubscribe/%s/", strings.TrimRight(r.opts.LMSBase, "/"), token)
	if mode.IsBroad() {
		url += "?broad=1"
	}
	return url
}

func (r *Renderer) markdown(body string) htmltemplate.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(body), &buf); err != nil {
		return htmltemplate.HTML("<p>" + htmltemplate.HTMLEscapeString(body) + "</p>")
	}
	return htmltemplate.HTML(buf.String())
}

// TextList собирает список на естественном языке: "a", "a and b",
// "a, b, and c".
func TextList(values []string) string {
	switch len(values) {
	case 0:
		return ""
	case 1:
		return values[0]
	case 2:
		return values[0] + " and " + values[1]
	default:
		return strings.Join(values[:len(values)-1], ", ") + ", and " + values[len(values)-1]
	}
}

func language(user domain.User) string {
	if lang := strings.TrimSpace(user.Preference(domain.LanguagePreferenceKey)); lang != "" {
		return lang
	}
	return "en"
}

var _ domain.DigestRenderer = (*Renderer)(nil)
