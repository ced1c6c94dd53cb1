package llm

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"triage/internal/domain"
)

//go:embed templates/*.tmpl
var promptTemplates embed.FS

const defaultMaxExampleChars = 500

// Prompt renders few-shot classification prompts and maps model answers back
// onto the category set.
type Prompt struct {
	categories      domain.CategorySet
	maxExampleChars int
	system          *template.Template
	user            *template.Template
	matchers        []categoryMatcher
}

type categoryMatcher struct {
	name string
	re   *regexp.Regexp
}

type promptData struct {
	Categories []domain.Category
	Examples   []domain.Example
	Text       string
}

func NewPrompt(categories domain.CategorySet, maxExampleChars int) (*Prompt, error) {
	if categories.Len() == 0 {
		return nil, fmt.Errorf("prompt requires at least one category")
	}
	if maxExampleChars <= 0 {
		maxExampleChars = defaultMaxExampleChars
	}
	p := &Prompt{categories: categories, maxExampleChars: maxExampleChars}

	funcs := template.FuncMap{"clip": p.clip}
	var err error
	if p.system, err = loadTemplate("templates/system.tmpl", funcs); err != nil {
		return nil, err
	}
	if p.user, err = loadTemplate("templates/user.tmpl", funcs); err != nil {
		return nil, err
	}

	for _, name := range categories.Names() {
		pattern := `(?i)(?:^|[^\p{L}\p{N}])` + regexp.QuoteMeta(name) + `(?:$|[^\p{L}\p{N}])`
		p.matchers = append(p.matchers, categoryMatcher{name: name, re: regexp.MustCompile(pattern)})
	}
	return p, nil
}

func loadTemplate(name string, funcs template.FuncMap) (*template.Template, error) {
	content, err := promptTemplates.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("template not found: %w", err)
	}
	tmpl, err := template.New(name).Funcs(funcs).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return tmpl, nil
}

// Render returns the system and user messages for req.
func (p *Prompt) Render(req domain.ClassificationRequest) (string, string, error) {
	data := promptData{
		Categories: p.categories.All(),
		Examples:   req.Examples,
		Text:       strings.TrimSpace(req.Text),
	}

	var system, user bytes.Buffer
	if err := p.system.Execute(&system, data); err != nil {
		return "", "", fmt.Errorf("failed to render system prompt: %w", err)
	}
	if err := p.user.Execute(&user, data); err != nil {
		return "", "", fmt.Errorf("failed to render user prompt: %w", err)
	}
	return strings.TrimSpace(system.String()), strings.TrimSpace(user.String()), nil
}

// Parse extracts the category from a model answer. An answer naming no
// category, or several, is a MalformedResponseError.
func (p *Prompt) Parse(provider, raw string) (string, error) {
	answer := cleanAnswer(raw)
	if name, ok := p.categories.Canonical(answer); ok {
		return name, nil
	}

	var found []string
	for _, m := range p.matchers {
		if m.re.MatchString(raw) {
			found = append(found, m.name)
		}
	}
	if name, ok := longestCovering(found); ok {
		return name, nil
	}
	return "", &domain.MalformedResponseError{Provider: provider, Raw: raw}
}

func (p *Prompt) clip(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= p.maxExampleChars {
		return s
	}
	return string(runes[:p.maxExampleChars]) + "..."
}

func cleanAnswer(raw string) string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return ""
	}
	answer := lines[0]
	if i := strings.Index(strings.ToLower(answer), "category:"); i >= 0 {
		answer = answer[i+len("category:"):]
	}
	return strings.Trim(answer, " \t\"'`*.:")
}

// longestCovering accepts several matches only when one name contains all the
// others, as with "Access" inside "Access Control".
func longestCovering(found []string) (string, bool) {
	if len(found) == 0 {
		return "", false
	}
	best := found[0]
	for _, f := range found[1:] {
		if len(f) > len(best) {
			best = f
		}
	}
	lower := strings.ToLower(best)
	for _, f := range found {
		if !strings.Contains(lower, strings.ToLower(f)) {
			return "", false
		}
	}
	return best, true
}
