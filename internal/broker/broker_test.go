package broker

import "testing"

func TestSubscribeAndNotify(t *testing.T) {
	b := New()

	ch := b.Subscribe(ConversationTopic("c1"))
	b.Notify(ConversationTopic("c1"))

	select {
	case <-ch:
	default:
		t.Fatalf("expected a nudge on the subscribed topic")
	}
}

func TestNotifyDoesNotBlockOnFullSubscriber(t *testing.T) {
	b := New()

	ch := b.Subscribe(UserTopic("u1"))
	b.Notify(UserTopic("u1"))
	// Second notify must not block even though the buffer is full.
	b.Notify(UserTopic("u1"))

	select {
	case <-ch:
	default:
		t.Fatalf("expected one pending nudge")
	}
	select {
	case <-ch:
		t.Fatalf("coalesced nudges should deliver once")
	default:
	}
}

func TestUnsubscribeRemovesTopic(t *testing.T) {
	b := New()

	ch := b.Subscribe(ConversationTopic("c2"))
	b.Unsubscribe(ConversationTopic("c2"), ch)

	if len(b.subs) != 0 {
		t.Fatalf("expected empty topic map after unsubscribe")
	}

	b.Notify(ConversationTopic("c2"))
	select {
	case <-ch:
		t.Fatalf("unsubscribed channel must not be notified")
	default:
	}
}

func TestNotifyOtherTopicUnaffected(t *testing.T) {
	b := New()

	ch := b.Subscribe(ConversationTopic("c3"))
	b.Notify(ConversationTopic("other"))

	select {
	case <-ch:
		t.Fatalf("unrelated topic must not be notified")
	default:
	}
}
