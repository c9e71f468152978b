package provider

import (
	"testing"

	"google.golang.org/genai"

	"github.com/compass-ai-chat/compass-sub000/internal/chat"
)

func TestGeminiContents_RolesAndSystemSplit(t *testing.T) {
	contents, system := geminiContents([]chat.Message{
		{Content: "context note", IsSystem: true},
		{Content: "question", IsUser: true},
		{Content: "answer"},
		{Content: "followup", IsUser: true},
		{Content: "  "},
	})

	if system != "context note" {
		t.Fatalf("system = %q, want the system message collected out of band", system)
	}
	if len(contents) != 3 {
		t.Fatalf("got %d contents, want trailing blank assistant message dropped", len(contents))
	}

	wantRoles := []string{genai.RoleUser, genai.RoleModel, genai.RoleUser}
	for i, c := range contents {
		if c.Role != wantRoles[i] {
			t.Fatalf("content %d role = %q, want %q", i, c.Role, wantRoles[i])
		}
	}
	if len(contents[0].Parts) == 0 || contents[0].Parts[0].Text != "question" {
		t.Fatalf("content 0 = %+v, want the user's text", contents[0])
	}
}
