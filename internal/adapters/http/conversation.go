package httpadapter

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/compiledanswers/policy-rag/internal/core/domain"
	"github.com/compiledanswers/policy-rag/internal/core/ports"
)

const defaultHistoryLimit = 10

const (
	intentGreeting = "greeting"
	intentPolicy   = "policy"
	intentGeneral  = "general"

	greetingReply = "Hello! I can answer questions about company policies and procedures. What would you like to know?"
	generalReply  = "I'm a policy assistant, so I can only help with questions about company policies and procedures. Could you rephrase your question?"
)

var greetingPattern = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|good\s+(morning|afternoon|evening)|greetings)[\s!.,]*$`)

// policyKeywords marks a message as a policy question. Deliberately broad:
// false positives just run the pipeline, false negatives get the canned
// general reply.
var policyKeywords = []string{
	"policy", "policies", "procedure", "process", "rule", "allowed",
	"permitted", "refund", "return", "cancel", "complaint", "how do i",
	"how to", "can i", "what is", "what are", "when", "deadline", "limit",
}

type MessageRequest struct {
	Message        string         `json:"message"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Channel        string         `json:"channel,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type MessageReply struct {
	ConversationID string            `json:"conversation_id"`
	Intent         string            `json:"intent"`
	Answer         string            `json:"answer"`
	Citations      []domain.Citation `json:"citations,omitempty"`
	Confidence     float64           `json:"confidence"`
	Metadata       map[string]any    `json:"metadata,omitempty"`
}

// HistoryEntry is one stored exchange: the user message and the reply it got.
type HistoryEntry struct {
	Message string
	Answer  string
}

// conversationHistory is a bounded ring: once capacity is reached the oldest
// exchange is dropped.
type conversationHistory struct {
	entries []HistoryEntry
	limit   int
}

func (h *conversationHistory) add(entry HistoryEntry) {
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
}

// ConversationManager routes chat messages: greetings and off-topic messages
// get canned replies without touching the pipeline, policy questions run the
// full retrieval pipeline. History stays inside the adapter; the core only
// ever sees it as caller metadata.
type ConversationManager struct {
	querySvc     ports.QueryService
	historyLimit int

	mu       sync.Mutex
	sessions map[string]*conversationHistory
}

func NewConversationManager(querySvc ports.QueryService, historyLimit int) *ConversationManager {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &ConversationManager{
		querySvc:     querySvc,
		historyLimit: historyLimit,
		sessions:     make(map[string]*conversationHistory),
	}
}

func (m *ConversationManager) Handle(ctx context.Context, req MessageRequest) MessageReply {
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	intent := classifyIntent(req.Message)
	reply := MessageReply{
		ConversationID: conversationID,
		Intent:         intent,
	}

	switch intent {
	case intentGreeting:
		reply.Answer = greetingReply
	case intentGeneral:
		reply.Answer = generalReply
	default:
		metadata := map[string]any{
			"conversation_id": conversationID,
			"history_turns":   m.historyLen(conversationID),
		}
		if req.Channel != "" {
			metadata["channel"] = req.Channel
		}
		for key, value := range req.Metadata {
			metadata[key] = value
		}

		response := m.querySvc.Answer(ctx, req.Message, metadata)
		reply.Answer = response.Answer
		reply.Citations = response.Citations
		reply.Confidence = response.Confidence
		reply.Metadata = response.Metadata
	}

	m.remember(conversationID, HistoryEntry{Message: req.Message, Answer: reply.Answer})
	return reply
}

// History returns a copy of the stored exchanges for one conversation.
func (m *ConversationManager) History(conversationID string) []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[conversationID]
	if !ok {
		return nil
	}
	out := make([]HistoryEntry, len(session.entries))
	copy(out, session.entries)
	return out
}

func (m *ConversationManager) historyLen(conversationID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[conversationID]; ok {
		return len(session.entries)
	}
	return 0
}

func (m *ConversationManager) remember(conversationID string, entry HistoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[conversationID]
	if !ok {
		session = &conversationHistory{limit: m.historyLimit}
		m.sessions[conversationID] = session
	}
	session.add(entry)
}

func classifyIntent(message string) string {
	if greetingPattern.MatchString(message) {
		return intentGreeting
	}

	lowered := strings.ToLower(message)
	for _, keyword := range policyKeywords {
		if strings.Contains(lowered, keyword) {
			return intentPolicy
		}
	}
	return intentGeneral
}
