package retrieval

import (
	"strings"
	"text/template"
)

// DefaultTemplate is the prompt sent to the generation gateway. It is data,
// not logic: deployments may override it in configuration as long as it
// references .Context and .Question.
const DefaultTemplate = `You are a helpful assistant. Answer the question using only the following context.
If the context does not contain the answer, say so honestly.

Context:
{{.Context}}

Question: {{.Question}}

Answer:`

// NoMatchAnswer is returned when retrieval finds nothing above the score
// threshold. The generation gateway is not invoked in that case.
const NoMatchAnswer = "I couldn't find any relevant information in the knowledge base. " +
	"Please ensure documents have been ingested or try rephrasing your question."

type promptData struct {
	Context  string
	Question string
}

func parseTemplate(text string) (*template.Template, error) {
	if text == "" {
		text = DefaultTemplate
	}
	return template.New("prompt").Parse(text)
}

func (p *Pipeline) buildPrompt(contextText, question string) (string, error) {
	var b strings.Builder
	if err := p.tmpl.Execute(&b, promptData{Context: contextText, Question: question}); err != nil {
		return "", err
	}
	return b.String(), nil
}
