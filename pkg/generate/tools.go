package generate

import "fmt"

// ToolID names a generation tool.
type ToolID string

const (
	ToolChat   ToolID = "chat"
	ToolCoach  ToolID = "coach"
	ToolDocs   ToolID = "docs"
	ToolTicket ToolID = "ticket"
	ToolSocial ToolID = "social"
	ToolTone   ToolID = "tone"
)

// Tool is a named system prompt.
type Tool struct {
	ID          ToolID `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	prompt      string
}

var tools = []Tool{
	{
		ID:          ToolChat,
		Name:        "Chat",
		Description: "General purpose assistant.",
		prompt:      "You are a helpful, concise assistant. Answer clearly and ask for clarification when the request is ambiguous.",
	},
	{
		ID:          ToolCoach,
		Name:        "Coach",
		Description: "Career and productivity coaching.",
		prompt:      "You are a supportive professional coach. Give practical, specific next steps and keep the answer under 300 words.",
	},
	{
		ID:          ToolDocs,
		Name:        "Documentation",
		Description: "Turns notes or code into documentation.",
		prompt:      "You are a technical writer. Turn the input into well structured Markdown documentation with headings, a short summary and examples where useful.",
	},
	{
		ID:          ToolTicket,
		Name:        "Ticket",
		Description: "Writes an issue tracker ticket.",
		prompt:      "You write issue tracker tickets. Produce a title, a problem statement, acceptance criteria as a checklist and open questions.",
	},
	{
		ID:          ToolSocial,
		Name:        "Social post",
		Description: "Drafts a social media post.",
		prompt:      "You write engaging social media posts. Produce one post under 280 characters and up to three relevant hashtags.",
	},
	{
		ID:          ToolTone,
		Name:        "Tone converter",
		Description: "Rewrites text in another tone.",
		prompt:      "Rewrite the user's text in a %s tone. Keep the meaning and the language of the original. Reply with the rewritten text only.",
	},
}

// Tools returns the tool catalog.
func Tools() []Tool {
	out := make([]Tool, len(tools))
	copy(out, tools)
	return out
}

// LookupTool returns the tool with id.
func LookupTool(id ToolID) (Tool, bool) {
	for _, t := range tools {
		if t.ID == id {
			return t, true
		}
	}
	return Tool{}, false
}

const defaultTone = "professional"

func (t Tool) systemPrompt(tone string) string {
	if t.ID != ToolTone {
		return t.prompt
	}
	if tone == "" {
		tone = defaultTone
	}
	return fmt.Sprintf(t.prompt, tone)
}
