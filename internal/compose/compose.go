// Package compose is the built-in content-generation collaborator: it
// renders outbound subjects and bodies from templates and selects a
// resume variant per posting. Anything fancier (tailored cover letters,
// PDF rendering) plugs in behind the same Renderer interface.
package compose

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/jmorrell2146/applyflow/internal/config"
	"github.com/jmorrell2146/applyflow/internal/model"
)

// Ensure Templates implements model.Renderer.
var _ model.Renderer = (*Templates)(nil)

const defaultSubject = `Application for {{.Title}} at {{.Company}} — {{.SenderName}}`

const defaultBody = `Hello,

I'm writing to apply for the {{.Title}} role at {{.Company}}. My resume is
attached; I'd welcome the chance to talk about how I can contribute.

Best regards,
{{.SenderName}}
{{.SenderEmail}}
`

const followUpSubject = `Following up: {{.Title}} at {{.Company}}`

const followUpBody = `Hello,

I applied for the {{.Title}} role at {{.Company}} a little while ago and
wanted to follow up. I remain very interested and am happy to provide
anything further that would help.

Best regards,
{{.SenderName}}
{{.SenderEmail}}
`

// Templates renders application materials from text templates and the
// configured sender identity.
type Templates struct {
	sender config.SenderConfig

	subject   *template.Template
	body      *template.Template
	fuSubject *template.Template
	fuBody    *template.Template
}

type templateData struct {
	Company     string
	Title       string
	SenderName  string
	SenderEmail string
}

// New builds the template renderer for the given sender.
func New(sender config.SenderConfig) (*Templates, error) {
	t := &Templates{sender: sender}
	var err error
	if t.subject, err = template.New("subject").Parse(defaultSubject); err != nil {
		return nil, fmt.Errorf("parsing subject template: %w", err)
	}
	if t.body, err = template.New("body").Parse(defaultBody); err != nil {
		return nil, fmt.Errorf("parsing body template: %w", err)
	}
	if t.fuSubject, err = template.New("fu_subject").Parse(followUpSubject); err != nil {
		return nil, fmt.Errorf("parsing follow-up subject template: %w", err)
	}
	if t.fuBody, err = template.New("fu_body").Parse(followUpBody); err != nil {
		return nil, fmt.Errorf("parsing follow-up body template: %w", err)
	}
	return t, nil
}

// Render produces the application materials for rec.
func (t *Templates) Render(rec *model.JobRecord) (model.RenderedContent, error) {
	return t.render(rec, t.subject, t.body, true)
}

// RenderFollowUp produces the follow-up variant. No attachments: the
// resume already went out with the original application.
func (t *Templates) RenderFollowUp(rec *model.JobRecord) (model.RenderedContent, error) {
	return t.render(rec, t.fuSubject, t.fuBody, false)
}

func (t *Templates) render(rec *model.JobRecord, subjectTmpl, bodyTmpl *template.Template, attach bool) (model.RenderedContent, error) {
	data := templateData{
		Company:     rec.Company,
		Title:       rec.Title,
		SenderName:  t.sender.Name,
		SenderEmail: t.sender.Email,
	}

	var subject, body strings.Builder
	if err := subjectTmpl.Execute(&subject, data); err != nil {
		return model.RenderedContent{}, fmt.Errorf("rendering subject for %s: %w", rec.IdentityKey, err)
	}
	if err := bodyTmpl.Execute(&body, data); err != nil {
		return model.RenderedContent{}, fmt.Errorf("rendering body for %s: %w", rec.IdentityKey, err)
	}

	variant := t.selectVariant(rec.Title)
	content := model.RenderedContent{
		Subject:       subject.String(),
		Body:          body.String(),
		ResumeVariant: variant,
	}
	if attach && t.sender.ResumeDir != "" && variant != "" {
		content.Attachments = []model.Attachment{{
			Name: variant + ".pdf",
			Path: filepath.Join(t.sender.ResumeDir, variant+".pdf"),
		}}
	}
	return content, nil
}

// selectVariant picks the resume variant whose keyword appears in the
// title, falling back to the default variant. Keywords are checked in
// sorted order so ties resolve the same way every run.
func (t *Templates) selectVariant(title string) string {
	lower := strings.ToLower(title)
	keywords := make([]string, 0, len(t.sender.Variants))
	for kw := range t.sender.Variants {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return t.sender.Variants[kw]
		}
	}
	return t.sender.DefaultVariant
}
