package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmirchev92/servicetext/internal/models"
	"github.com/dmirchev92/servicetext/internal/testutil"
)

func waitForSent(t *testing.T, env *testutil.Env, n int) []models.OutboundMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sent := env.MsgService.Sent(); len(sent) >= n {
			return sent
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sent messages, got %d", n, len(env.MsgService.Sent()))
	return nil
}

func TestHandleMissedCallSendsGreeting(t *testing.T) {
	env := testutil.NewTestEngine(t)
	conv := testutil.StartConversation(t, env, "359888111222")

	if conv.Status != models.StatusWaitingResponse {
		t.Errorf("expected waiting_response after greeting, got %s", conv.Status)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("expected call bootstrap plus agent greeting, got %+v", conv.Messages)
	}
	if conv.Messages[0].Sender != models.SenderSystem {
		t.Errorf("expected leading bootstrap system message, got sender %s", conv.Messages[0].Sender)
	}
	if conv.Messages[1].Sender != models.SenderAgent {
		t.Errorf("expected agent greeting, got sender %s", conv.Messages[1].Sender)
	}

	sent := waitForSent(t, env, 1)
	if sent[0].Recipient != "359888111222" {
		t.Errorf("greeting sent to wrong recipient: %+v", sent[0])
	}
	if sent[0].Text != conv.Messages[1].Text {
		t.Errorf("outbound text differs from recorded greeting")
	}
}

func TestHandleMissedCallReusesConversation(t *testing.T) {
	env := testutil.NewTestEngine(t)
	first := testutil.StartConversation(t, env, "359888111222")
	second := testutil.StartConversation(t, env, "359888111222")

	if second.ID != first.ID {
		t.Errorf("expected reused conversation %s, got %s", first.ID, second.ID)
	}
	// No second greeting: still just the bootstrap and the first greeting.
	if len(second.Messages) != 2 {
		t.Errorf("expected bootstrap plus one greeting, got %d messages", len(second.Messages))
	}
}

func TestProcessIncomingMessageReplies(t *testing.T) {
	env := testutil.NewTestEngine(t)
	conv := testutil.StartConversation(t, env, "359888111222")

	res, err := env.Engine.ProcessIncomingMessage(context.Background(), conv.ID, "Здравейте, имам проблем с контакта в кухнята")
	if err != nil {
		t.Fatalf("ProcessIncomingMessage failed: %v", err)
	}
	if res.Completed || res.Escalated {
		t.Errorf("unexpected terminal outcome: %+v", res)
	}

	got, err := env.Engine.GetConversation(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	last := got.Messages[len(got.Messages)-1]
	if last.Sender != models.SenderAgent {
		t.Errorf("expected trailing agent reply, got sender %s", last.Sender)
	}

	// Greeting plus the generated reply.
	waitForSent(t, env, 2)
}

func TestEmergencyEscalation(t *testing.T) {
	env := testutil.NewTestEngine(t)
	conv := testutil.StartConversation(t, env, "359888111222")
	ctx := context.Background()

	res, err := env.Engine.ProcessIncomingMessage(ctx, conv.ID, "Спешно! От контакта излизат искри и мирише на изгоряло")
	if err != nil {
		t.Fatalf("ProcessIncomingMessage failed: %v", err)
	}
	if !res.Escalated {
		t.Fatal("expected escalation")
	}

	recs, err := env.Store.GetEscalations()
	if err != nil {
		t.Fatalf("GetEscalations failed: %v", err)
	}
	if len(recs) == 0 {
		t.Fatal("expected escalation record to be persisted")
	}
	if recs[0].PhoneNumber != "359888111222" || recs[0].Priority != models.PriorityUrgent {
		t.Errorf("unexpected escalation record: %+v", recs[0])
	}

	// The emergency advice goes out on the urgent path.
	sent := waitForSent(t, env, 2)
	found := false
	for _, m := range sent {
		if m.Text != "" && m.Recipient == "359888111222" {
			found = true
		}
	}
	if !found {
		t.Error("expected outbound emergency advice")
	}

	if _, err := env.Engine.ProcessIncomingMessage(ctx, conv.ID, "друго"); !errors.Is(err, models.ErrConversationCompleted) {
		t.Errorf("expected ErrConversationCompleted after escalation, got %v", err)
	}
}

func TestProcessIncomingFromPhoneBootstraps(t *testing.T) {
	env := testutil.NewTestEngine(t)

	res, err := env.Engine.ProcessIncomingFromPhone(context.Background(), "359888777666", "Здравейте, тече ми кранът в банята", models.ChannelWhatsApp)
	if err != nil {
		t.Fatalf("ProcessIncomingFromPhone failed: %v", err)
	}
	if res.Conversation.PhoneNumber != "359888777666" {
		t.Errorf("unexpected phone: %s", res.Conversation.PhoneNumber)
	}
	if res.Conversation.CustomerMessageCount() != 1 {
		t.Errorf("expected 1 customer message, got %d", res.Conversation.CustomerMessageCount())
	}

	// A second text from the same phone lands in the same conversation.
	res2, err := env.Engine.ProcessIncomingFromPhone(context.Background(), "359888777666", "В банята е, капе от сифона", models.ChannelWhatsApp)
	if err != nil {
		t.Fatalf("second ProcessIncomingFromPhone failed: %v", err)
	}
	if res2.Conversation.ID != res.Conversation.ID {
		t.Errorf("expected same conversation, got %s and %s", res.Conversation.ID, res2.Conversation.ID)
	}
}

func TestCloseConversationStopsProcessing(t *testing.T) {
	env := testutil.NewTestEngine(t)
	conv := testutil.StartConversation(t, env, "359888111222")
	ctx := context.Background()

	if err := env.Engine.CloseConversation(ctx, conv.ID, "resolved over the phone"); err != nil {
		t.Fatalf("CloseConversation failed: %v", err)
	}
	if _, err := env.Engine.ProcessIncomingMessage(ctx, conv.ID, "текст"); !errors.Is(err, models.ErrConversationClosed) {
		t.Errorf("expected ErrConversationClosed, got %v", err)
	}
}

func TestGetStats(t *testing.T) {
	env := testutil.NewTestEngine(t)
	testutil.StartConversation(t, env, "359888111222")
	testutil.StartConversation(t, env, "359888333444")

	stats, err := env.Engine.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.ActiveConversations != 2 {
		t.Errorf("expected 2 active conversations, got %d", stats.ActiveConversations)
	}
	if stats.Escalations != 0 {
		t.Errorf("expected no escalations, got %d", stats.Escalations)
	}
}
