package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/compass-ai-chat/compass-sub000/internal/chat"
)

func TestPipeline_RunsStagesInOrder(t *testing.T) {
	var order []string
	stage := func(name string) Transform {
		return Transform{Name: name, Apply: func(_ context.Context, m *MessageContext) (*MessageContext, error) {
			order = append(order, name)
			return m, nil
		}}
	}

	p := NewPipeline(stage("first"), stage("second")).Add(stage("third"))
	p.Process(context.Background(), &MessageContext{})

	want := []string{"first", "second", "third"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Fatalf("stage order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, p.Names()); diff != "" {
		t.Fatalf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestPipeline_FailedStageLeavesContextUnchanged(t *testing.T) {
	initial := &MessageContext{
		Message:      "hello",
		SystemPrompt: "prompt",
		Thread: chat.Thread{
			ID:       "t1",
			Messages: []chat.Message{{Content: "prior", IsUser: true}},
		},
		Context: TurnContext{
			MessagesToSend: []chat.Message{{Content: "hello", IsUser: true}},
		},
		Metadata: Metadata{
			Messages: []chat.Message{{Content: "prior", IsUser: true}},
			UserName: "Dana",
		},
	}

	mutateAndFail := Transform{Name: "broken", Apply: func(_ context.Context, m *MessageContext) (*MessageContext, error) {
		m.SystemPrompt = ""
		m.Context.MessagesToSend = append(m.Context.MessagesToSend, chat.Message{Content: "junk"})
		m.Metadata.WebContent = []string{"junk"}
		m.Thread.Messages[0].Content = "overwritten"
		return m, errors.New("stage exploded")
	}}

	var sawPrompt string
	inspect := Transform{Name: "inspect", Apply: func(_ context.Context, m *MessageContext) (*MessageContext, error) {
		sawPrompt = m.SystemPrompt
		return m, nil
	}}

	result := NewPipeline(mutateAndFail, inspect).Process(context.Background(), initial)

	if sawPrompt != "prompt" {
		t.Fatalf("next stage saw prompt %q, want the pre-failure value", sawPrompt)
	}
	opts := cmpopts.IgnoreFields(Metadata{}, "Search", "Dispatch")
	if diff := cmp.Diff(initial, result, opts); diff != "" {
		t.Fatalf("failed stage leaked mutations (-want +got):\n%s", diff)
	}
}

// A URL-bearing message run through the full standard stage list: the
// page is fetched, relevant passages land as a system message, webSearch
// stays quiet without its flag, and the thread update is dispatched.
func TestPipeline_StandardStages_URLMessage(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.example/": "Paris facts from the page",
	}}
	dispatcher := &recordingDispatcher{}
	p := &fakeProvider{simpleResponse: "Paris Travel Chat"}
	thread := chat.Thread{
		ID:            "t1",
		SelectedModel: &chat.Model{ID: "m", Provider: chat.Provider{ID: "p1"}},
	}

	m := baseContext(p, thread, "tell me about paris https://a.example/")
	m.Metadata.Dispatch = dispatcher
	m.Metadata.Search = func(context.Context, string) (SearchResponse, error) {
		t.Fatal("search invoked with searchEnabled unset")
		return SearchResponse{}, nil
	}

	stages := testStages(fetcher, nil)
	result := NewPipeline(stages.Standard()...).Process(context.Background(), m)

	if len(fetcher.urls) != 1 || fetcher.urls[0] != "https://a.example/" {
		t.Fatalf("fetched %v, want the message's URL", fetcher.urls)
	}

	var webContext *chat.Message
	for i := range result.Context.MessagesToSend {
		msg := &result.Context.MessagesToSend[i]
		if strings.HasPrefix(msg.Content, "Web content context:\n") {
			webContext = msg
		}
		if strings.HasPrefix(msg.Content, "Web search results: ") {
			t.Fatal("webSearch appended results despite the unset flag")
		}
	}
	if webContext == nil {
		t.Fatalf("MessagesToSend = %+v, want a web content message", result.Context.MessagesToSend)
	}
	if !webContext.IsSystem || webContext.IsUser {
		t.Fatal("web content context must be system-attributed")
	}
	body := strings.TrimPrefix(webContext.Content, "Web content context:\n")
	if n := len(strings.Split(body, "\n")); n > 5 {
		t.Fatalf("web context carries %d passages, want at most 5", n)
	}
	if !strings.Contains(body, "Paris facts from the page") {
		t.Fatalf("web context = %q, want the fetched passage", body)
	}

	if result.Metadata.UpdatedThread == nil {
		t.Fatal("threadUpdate did not record the updated thread")
	}
	if got := result.Metadata.UpdatedThread.Title; got != "Paris Travel Chat" {
		t.Fatalf("title = %q, want the generated first-turn title", got)
	}

	actions := dispatcher.all()
	if len(actions) != 2 {
		t.Fatalf("got %d dispatches, want threadUpdate + title update", len(actions))
	}
	msgs := actions[0].Thread.Messages
	if len(msgs) != 2 || !msgs[0].IsUser || msgs[1].Content != "" {
		t.Fatalf("threadUpdate messages = %+v, want user message + placeholder", msgs)
	}
}

func TestPipeline_ContinuesAfterFailure(t *testing.T) {
	failing := Transform{Name: "failing", Apply: func(_ context.Context, m *MessageContext) (*MessageContext, error) {
		return nil, errors.New("boom")
	}}
	appending := Transform{Name: "appending", Apply: func(_ context.Context, m *MessageContext) (*MessageContext, error) {
		m.Context.MessagesToSend = append(m.Context.MessagesToSend, chat.Message{Content: "appended"})
		return m, nil
	}}

	result := NewPipeline(failing, appending).Process(context.Background(), &MessageContext{})

	if len(result.Context.MessagesToSend) != 1 || result.Context.MessagesToSend[0].Content != "appended" {
		t.Fatalf("MessagesToSend = %+v, want later stages to keep running", result.Context.MessagesToSend)
	}
}
