package terminal

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nimec77/deepseek-json/backend/model"
	"github.com/nimec77/deepseek-json/backend/taskfinisher"
	"github.com/nimec77/deepseek-json/shared/conv"
)

const cardRule = "─────────────────────────────────────────────────────────────"

func RenderStructuredResponse(w io.Writer, response *model.StructuredResponse) {
	fmt.Fprintf(w, "\n%s\n", Title("📋 Structured Response:"))
	fmt.Fprintf(w, "%s\n", labelStyle.Render("┌"+cardRule))
	writeCardLine(w, "🏷️  Title:", Bold(response.Title))
	writeCardLine(w, "📝 Description:", response.Description)
	writeCardLine(w, "📄 Content:", response.Content)
	if response.Category != nil {
		writeCardLine(w, "🏪 Category:", *response.Category)
	}
	if response.Timestamp != nil {
		writeCardLine(w, "⏰ Timestamp:", *response.Timestamp)
	}
	if response.Confidence != nil {
		writeCardLine(w, "🎯 Confidence:", fmt.Sprintf("%.2f", *response.Confidence))
	}
	fmt.Fprintf(w, "%s\n\n", labelStyle.Render("└"+cardRule))
}

func writeCardLine(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("│ "+label), value)
}

// RenderClarifying prints one round of questions followed by the checklist.
func RenderClarifying(w io.Writer, round int, payload *taskfinisher.ClarifyingPayload) {
	fmt.Fprintf(w, "\n%s %s (round %d)\n", QuestionSymbol, warningStyle.Render("Clarifying Questions:"), round)
	if len(payload.Questions) == 0 {
		fmt.Fprintf(w, "%s\n", Subtle("  (no questions)"))
	}
	for _, q := range payload.Questions {
		fmt.Fprintf(w, "- %s %s\n", Bold(q.ID), q.Text)
		if q.HasOptions() {
			fmt.Fprintf(w, "  options: %s\n", strings.Join(q.Options, " | "))
		}
	}

	fmt.Fprintf(w, "\n%s\n", Title("🧾 Checklist:"))
	for _, item := range payload.Checklist {
		fmt.Fprintf(w, "- %s [%s]\n", item.Field, labelStyle.Render(item.Status))
	}
}

// ArtifactMarkdown lays out an artifact as a markdown document.
func ArtifactMarkdown(a *taskfinisher.Artifact) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", a.Title)
	fmt.Fprintf(&b, "*%s v%s*\n\n", a.ArtifactName, a.Version)
	fmt.Fprintf(&b, "%s\n\n", a.Summary)

	b.WriteString("## Stakeholders\n\n")
	writeList(&b, a.Stakeholders, func(s taskfinisher.Stakeholder) string {
		return fmt.Sprintf("**%s**: %s", s.Role, s.Description)
	})

	b.WriteString("## Scope\n\n")
	b.WriteString("**In scope**\n\n")
	writeStrings(&b, a.Scope.InScope)
	b.WriteString("**Out of scope**\n\n")
	writeStrings(&b, a.Scope.OutOfScope)

	b.WriteString("## Requirements\n\n")
	b.WriteString("### Functional\n\n")
	writeList(&b, a.Requirements.Functional, func(r taskfinisher.FunctionalRequirement) string {
		line := fmt.Sprintf("**%s** %s", r.ID, r.Statement)
		if rationale := conv.FromPtr(r.Rationale); rationale != "" {
			line += fmt.Sprintf("\n  - rationale: *%s*", rationale)
		}
		return line
	})
	b.WriteString("### Non-functional\n\n")
	writeList(&b, a.Requirements.NonFunctional, func(r taskfinisher.NonFunctionalRequirement) string {
		return fmt.Sprintf("**%s** [%s] %s", r.ID, r.Category, r.Target)
	})

	b.WriteString("## Data integrations\n\n")
	rpc := a.DataIntegrations.RPCProviders
	if len(rpc.Selection) > 0 {
		fmt.Fprintf(&b, "- RPC providers: %s\n", strings.Join(rpc.Selection, ", "))
	}
	for _, name := range sortedKeys(rpc.Endpoints) {
		fmt.Fprintf(&b, "- Endpoint `%s` = %s\n", name, endpointValue(rpc.Endpoints[name]))
	}
	price := a.DataIntegrations.PriceSource
	fmt.Fprintf(&b, "- Price source: %s", price.Provider)
	if price.TTLSeconds != nil {
		fmt.Fprintf(&b, " (ttl=%ds)", *price.TTLSeconds)
	}
	b.WriteString("\n\n")

	b.WriteString("## Constraints\n\n")
	writeStrings(&b, a.Constraints)
	b.WriteString("## Assumptions\n\n")
	writeStrings(&b, a.Assumptions)

	b.WriteString("## Risks\n\n")
	writeList(&b, a.Risks, func(r taskfinisher.Risk) string {
		return fmt.Sprintf("**%s**: %s\n  - mitigation: %s", r.ID, r.Description, r.Mitigation)
	})

	b.WriteString("## Milestones\n\n")
	writeList(&b, a.Milestones, func(m taskfinisher.Milestone) string {
		line := fmt.Sprintf("**%s** %s", m.ID, m.Name)
		for _, d := range m.Deliverables {
			line += "\n  - " + d
		}
		return line
	})

	b.WriteString("## Acceptance criteria\n\n")
	writeList(&b, a.AcceptanceCriteria, func(ac taskfinisher.AcceptanceCriterion) string {
		return fmt.Sprintf("**%s**\n  - Given: %s\n  - When: %s\n  - Then: %s", ac.ID, ac.Given, ac.When, ac.Then)
	})

	b.WriteString("## Open questions\n\n")
	writeStrings(&b, a.OpenQuestions)

	fmt.Fprintf(&b, "---\n\nStatus: **%s** End: %s\n", a.Status, a.EndToken)
	return b.String()
}

func writeStrings(b *strings.Builder, items []string) {
	writeList(b, items, func(s string) string { return s })
}

func writeList[T any](b *strings.Builder, items []T, format func(T) string) {
	if len(items) == 0 {
		b.WriteString("*(none)*\n\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", format(item))
	}
	b.WriteString("\n")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func endpointValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func RenderArtifact(w io.Writer, a *taskfinisher.Artifact, tty bool) error {
	fmt.Fprintf(w, "\n%s\n\n", Title("📦 Technical Task (Artifact):"))
	out, err := RenderMarkdown(ArtifactMarkdown(a), DefaultWrapWidth, tty)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, out)
	return nil
}

func WriteJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(v)
}

func WriteYAML(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return err
	}
	return encoder.Close()
}
