package httpadapter

import (
	"context"
	"fmt"
	"testing"
)

func TestHandleGreetingSkipsPipeline(t *testing.T) {
	svc := &querySvcFake{response: answeredResponse()}
	manager := NewConversationManager(svc, 10)

	reply := manager.Handle(context.Background(), MessageRequest{Message: "Hello!"})

	if reply.Intent != intentGreeting {
		t.Fatalf("expected greeting intent, got %s", reply.Intent)
	}
	if reply.Answer != greetingReply {
		t.Fatalf("unexpected answer: %q", reply.Answer)
	}
	if len(svc.queries) != 0 {
		t.Fatalf("greeting must not hit the pipeline")
	}
	if reply.ConversationID == "" {
		t.Fatalf("expected a generated conversation id")
	}
}

func TestHandlePolicyQuestionRunsPipeline(t *testing.T) {
	svc := &querySvcFake{response: answeredResponse()}
	manager := NewConversationManager(svc, 10)

	reply := manager.Handle(context.Background(), MessageRequest{
		Message:        "What is the refund policy for online orders?",
		ConversationID: "conv-1",
		Channel:        "chat",
	})

	if reply.Intent != intentPolicy {
		t.Fatalf("expected policy intent, got %s", reply.Intent)
	}
	if len(svc.queries) != 1 {
		t.Fatalf("expected one pipeline call, got %d", len(svc.queries))
	}
	metadata := svc.metadata[0]
	if metadata["conversation_id"] != "conv-1" || metadata["channel"] != "chat" {
		t.Fatalf("conversation metadata not forwarded: %v", metadata)
	}
	if reply.Confidence != 0.7 || len(reply.Citations) != 1 {
		t.Fatalf("pipeline response not surfaced: %+v", reply)
	}
}

func TestHandleOffTopicGetsGeneralReply(t *testing.T) {
	svc := &querySvcFake{response: answeredResponse()}
	manager := NewConversationManager(svc, 10)

	reply := manager.Handle(context.Background(), MessageRequest{Message: "tell me a joke"})

	if reply.Intent != intentGeneral {
		t.Fatalf("expected general intent, got %s", reply.Intent)
	}
	if reply.Answer != generalReply {
		t.Fatalf("unexpected answer: %q", reply.Answer)
	}
	if len(svc.queries) != 0 {
		t.Fatalf("off-topic message must not hit the pipeline")
	}
}

func TestHistoryIsBounded(t *testing.T) {
	svc := &querySvcFake{response: answeredResponse()}
	manager := NewConversationManager(svc, 3)

	for i := 0; i < 5; i++ {
		manager.Handle(context.Background(), MessageRequest{
			Message:        fmt.Sprintf("what is rule number %d", i),
			ConversationID: "conv-1",
		})
	}

	history := manager.History("conv-1")
	if len(history) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(history))
	}
	if history[0].Message != "what is rule number 2" {
		t.Fatalf("oldest entries must be evicted first, got %q", history[0].Message)
	}
}

func TestHistoryIsPerConversation(t *testing.T) {
	svc := &querySvcFake{response: answeredResponse()}
	manager := NewConversationManager(svc, 10)

	manager.Handle(context.Background(), MessageRequest{Message: "hello", ConversationID: "a"})
	manager.Handle(context.Background(), MessageRequest{Message: "hello", ConversationID: "b"})

	if len(manager.History("a")) != 1 || len(manager.History("b")) != 1 {
		t.Fatalf("histories must be isolated per conversation")
	}
	if manager.History("missing") != nil {
		t.Fatalf("unknown conversation must have no history")
	}
}

func TestClassifyIntent(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"hi", intentGreeting},
		{"Good morning!", intentGreeting},
		{"what is the cancellation deadline", intentPolicy},
		{"Can I return a damaged item?", intentPolicy},
		{"sing me a song", intentGeneral},
	}
	for _, tc := range cases {
		if got := classifyIntent(tc.message); got != tc.want {
			t.Fatalf("classifyIntent(%q) = %s, want %s", tc.message, got, tc.want)
		}
	}
}
