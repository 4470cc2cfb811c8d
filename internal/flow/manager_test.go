package flow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dmirchev92/servicetext/internal/analyzer"
	"github.com/dmirchev92/servicetext/internal/models"
	"github.com/dmirchev92/servicetext/internal/nlp"
	"github.com/dmirchev92/servicetext/internal/store"
)

func newTestManager() *Manager {
	return NewManager(store.NewInMemoryStore(), nlp.NewProcessor(nil), analyzer.NewAnalyzer())
}

func testEvent(phone string) models.CallEvent {
	return models.CallEvent{PhoneNumber: phone, Channel: models.ChannelWhatsApp}
}

func TestStartConversation(t *testing.T) {
	m := newTestManager()
	conv, err := m.StartConversation(context.Background(), testEvent("359888111222"))
	if err != nil {
		t.Fatalf("StartConversation failed: %v", err)
	}
	if conv.State != models.StateInitialResponse {
		t.Errorf("expected initial state, got %s", conv.State)
	}
	if conv.Status != models.StatusActive {
		t.Errorf("expected active status, got %s", conv.Status)
	}
	if conv.Metadata.Language != "bg" {
		t.Errorf("expected bg language, got %s", conv.Metadata.Language)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].Sender != models.SenderSystem {
		t.Fatalf("expected a single bootstrap system message, got %+v", conv.Messages)
	}
	if conv.CustomerMessageCount() != 0 {
		t.Errorf("bootstrap message must not count as a customer message, got %d", conv.CustomerMessageCount())
	}
}

func TestStartConversationReusesActive(t *testing.T) {
	m := newTestManager()
	first, err := m.StartConversation(context.Background(), testEvent("359888111222"))
	if err != nil {
		t.Fatalf("StartConversation failed: %v", err)
	}
	second, err := m.StartConversation(context.Background(), testEvent("359888111222"))
	if err != nil {
		t.Fatalf("second StartConversation failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected reused conversation %s, got %s", first.ID, second.ID)
	}
}

func TestStartConversationConcurrentSamePhone(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	const workers = 20
	ids := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv, err := m.StartConversation(ctx, testEvent("359888111222"))
			if err != nil {
				t.Errorf("StartConversation failed: %v", err)
				return
			}
			ids <- conv.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Errorf("concurrent starts created %d conversations for one phone: %v", len(seen), seen)
	}

	active, err := m.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("expected a single active conversation, got %d", len(active))
	}
}

func TestStartConversationValidation(t *testing.T) {
	m := newTestManager()
	if _, err := m.StartConversation(context.Background(), models.CallEvent{Channel: models.ChannelWhatsApp}); !errors.Is(err, models.ErrEmptyPhoneNumber) {
		t.Errorf("expected ErrEmptyPhoneNumber, got %v", err)
	}
	if _, err := m.StartConversation(context.Background(), models.CallEvent{PhoneNumber: "359888111222", Channel: "pigeon"}); !errors.Is(err, models.ErrInvalidChannel) {
		t.Errorf("expected ErrInvalidChannel, got %v", err)
	}
}

func TestProcessCustomerMessageAdvancesState(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	conv, _ := m.StartConversation(ctx, testEvent("359888111222"))

	// First message always advances out of the initial state.
	res, err := m.ProcessCustomerMessage(ctx, conv.ID, "Здравейте, имам проблем с контакта в кухнята")
	if err != nil {
		t.Fatalf("ProcessCustomerMessage failed: %v", err)
	}
	if res.Conversation.State != models.StateAwaitingDescription {
		t.Errorf("expected awaiting_description, got %s", res.Conversation.State)
	}
	if res.Completed || res.Escalated {
		t.Errorf("unexpected terminal outcome: %+v", res)
	}

	// A problem description then moves into follow-up questions.
	res, err = m.ProcessCustomerMessage(ctx, conv.ID, "Контактът спря и не работи от сутринта")
	if err != nil {
		t.Fatalf("second message failed: %v", err)
	}
	if res.Conversation.State != models.StateFollowUpQuestions {
		t.Errorf("expected follow_up_questions, got %s", res.Conversation.State)
	}
	if res.Conversation.CustomerMessageCount() != 2 {
		t.Errorf("expected 2 customer messages, got %d", res.Conversation.CustomerMessageCount())
	}
}

func TestProcessCustomerMessageEmergencyEscalates(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	conv, _ := m.StartConversation(ctx, testEvent("359888111222"))

	res, err := m.ProcessCustomerMessage(ctx, conv.ID, "Спешно! От контакта излизат искри")
	if err != nil {
		t.Fatalf("ProcessCustomerMessage failed: %v", err)
	}
	if !res.Escalated {
		t.Fatal("expected escalation")
	}
	if res.Conversation.State != models.StateCompleted {
		t.Errorf("expected completed state, got %s", res.Conversation.State)
	}
	if res.Conversation.Status != models.StatusEscalated {
		t.Errorf("expected escalated status, got %s", res.Conversation.Status)
	}
	if res.Conversation.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}

	// The terminal conversation accepts no further messages.
	if _, err := m.ProcessCustomerMessage(ctx, conv.ID, "още нещо"); !errors.Is(err, models.ErrConversationCompleted) {
		t.Errorf("expected ErrConversationCompleted, got %v", err)
	}
}

func TestProcessCustomerMessageErrors(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	if _, err := m.ProcessCustomerMessage(ctx, "conv_missing", "текст"); !errors.Is(err, models.ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}

	conv, _ := m.StartConversation(ctx, testEvent("359888111222"))
	if _, err := m.ProcessCustomerMessage(ctx, conv.ID, ""); !errors.Is(err, models.ErrEmptyMessageText) {
		t.Errorf("expected ErrEmptyMessageText, got %v", err)
	}
}

func TestCloseConversation(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	conv, _ := m.StartConversation(ctx, testEvent("359888111222"))

	if err := m.CloseConversation(ctx, conv.ID, "customer resolved it"); err != nil {
		t.Fatalf("CloseConversation failed: %v", err)
	}
	// Closing twice is a no-op.
	if err := m.CloseConversation(ctx, conv.ID, "again"); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	got, err := m.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.Status != models.StatusClosed {
		t.Errorf("expected closed status, got %s", got.Status)
	}
	last := got.Messages[len(got.Messages)-1]
	if last.Sender != models.SenderSystem {
		t.Errorf("expected trailing system message, got sender %s", last.Sender)
	}

	if _, err := m.ProcessCustomerMessage(ctx, conv.ID, "текст"); !errors.Is(err, models.ErrConversationClosed) {
		t.Errorf("expected ErrConversationClosed, got %v", err)
	}
}

func TestAppendAgentMessage(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	conv, _ := m.StartConversation(ctx, testEvent("359888111222"))

	if err := m.AppendAgentMessage(ctx, conv.ID, "Здравейте!"); err != nil {
		t.Fatalf("AppendAgentMessage failed: %v", err)
	}
	got, _ := m.GetConversation(ctx, conv.ID)
	if got.Status != models.StatusWaitingResponse {
		t.Errorf("expected waiting_response, got %s", got.Status)
	}
	if len(got.Messages) != 2 || got.Messages[1].Sender != models.SenderAgent {
		t.Errorf("expected bootstrap plus one agent message, got %+v", got.Messages)
	}

	// A customer reply flips the conversation back to active processing.
	res, err := m.ProcessCustomerMessage(ctx, conv.ID, "Имам въпрос")
	if err != nil {
		t.Fatalf("ProcessCustomerMessage failed: %v", err)
	}
	if res.Conversation.Status != models.StatusActive {
		t.Errorf("expected active status, got %s", res.Conversation.Status)
	}
}

func TestUnintelligibleMessageStillRecorded(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	conv, _ := m.StartConversation(ctx, testEvent("359888111222"))

	res, err := m.ProcessCustomerMessage(ctx, conv.ID, "ммм ххх")
	if err != nil {
		t.Fatalf("ProcessCustomerMessage failed: %v", err)
	}
	msgs := res.Conversation.CustomerMessages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 customer message, got %d", len(msgs))
	}
	if msgs[0].Understanding == nil {
		t.Fatal("expected understanding attached to customer message")
	}
	if msgs[0].Understanding.Intent != models.IntentClarification {
		t.Errorf("expected clarification intent, got %s", msgs[0].Understanding.Intent)
	}
}
