package rooms

import "fmt"

func busKey(roomType, roomID, event string) string {
	return roomType + ":" + roomID + ":" + event
}

// Subscribe registers a server-side handler for events emitted on
// (roomType, roomId, event). A component's subscriptions are torn down
// automatically on CleanupComponent.
func (m *Manager) Subscribe(roomType, roomID, event, componentID string, handler func(roomID string, payload any)) {
	key := busKey(roomType, roomID, event)

	m.busMu.Lock()
	m.bus[key] = append(m.bus[key], subscription{componentID: componentID, handler: handler})
	m.busMu.Unlock()

	m.byComponentMu.Lock()
	if m.byComponentBus[componentID] == nil {
		m.byComponentBus[componentID] = make(map[string]struct{})
	}
	m.byComponentBus[componentID][key] = struct{}{}
	m.byComponentMu.Unlock()
}

// Unsubscribe removes one component's handler for an event key.
func (m *Manager) Unsubscribe(roomType, roomID, event, componentID string) {
	key := busKey(roomType, roomID, event)

	m.busMu.Lock()
	subs := m.bus[key]
	filtered := subs[:0]
	for _, s := range subs {
		if s.componentID != componentID {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		delete(m.bus, key)
	} else {
		m.bus[key] = filtered
	}
	m.busMu.Unlock()

	m.byComponentMu.Lock()
	if set, ok := m.byComponentBus[componentID]; ok {
		delete(set, key)
		if len(set) == 0 {
			delete(m.byComponentBus, componentID)
		}
	}
	m.byComponentMu.Unlock()
}

// Emit delivers an event to every server-side bus subscriber for
// (roomType, roomId, event). Per spec.md §4.D "Ordering", all
// deliveries for one emit to one room complete, in subscription order,
// before the next emit to that same room begins; a panicking handler
// is recovered, logged, and does not stop delivery to the remaining
// subscribers.
func (m *Manager) Emit(roomType, roomID, event string, payload any) {
	room, ok := m.Get(roomID)
	if !ok {
		return
	}
	key := busKey(roomType, roomID, event)

	m.busMu.Lock()
	subs := make([]subscription, len(m.bus[key]))
	copy(subs, m.bus[key])
	m.busMu.Unlock()

	room.mu.Lock()
	defer room.mu.Unlock()
	for _, s := range subs {
		m.invoke(s, roomID, payload)
	}
}

func (m *Manager) invoke(s subscription, roomID string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("room event subscriber panicked", "room", roomID, "component", s.componentID, "panic", fmt.Sprint(r))
		}
	}()
	s.handler(roomID, payload)
}
