package broker

import "sync"

// Topic keys. Conversation topics fire on any change inside one conversation,
// user topics fire when any conversation of the user changes.
func ConversationTopic(conversationID string) string {
	return "conversation:" + conversationID
}

func UserTopic(userID string) string {
	return "user:" + userID
}

// Broker fans change notifications out to registered subscribers. A
// notification is a nudge, not a payload: subscribers re-query and emit a full
// snapshot, so a dropped nudge is recovered by the next one.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan struct{}]bool
}

// New creates an empty broker.
func New() *Broker {
	return &Broker{subs: make(map[string]map[chan struct{}]bool)}
}

// Subscribe registers a subscriber channel for a topic.
func (b *Broker) Subscribe(topic string) chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[topic]; !ok {
		b.subs[topic] = make(map[chan struct{}]bool)
	}
	b.subs[topic][ch] = true
	return ch
}

// Unsubscribe removes a subscriber channel from a topic.
func (b *Broker) Unsubscribe(topic string, ch chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if chans, ok := b.subs[topic]; ok {
		delete(chans, ch)
		if len(chans) == 0 {
			delete(b.subs, topic)
		}
	}
}

// Notify nudges every subscriber of the given topics without blocking. A
// subscriber with a pending nudge is skipped.
func (b *Broker) Notify(topics ...string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, topic := range topics {
		for ch := range b.subs[topic] {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}
