package fleet

const defaultEventBuffer = 64

// Subscribe returns a channel of fleet events and a function that ends the
// subscription. Slow subscribers lose events rather than block the fleet.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	ch := make(chan Event, buffer)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	key := m.nextSub
	m.nextSub++
	m.subs[key] = ch
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[key]; ok {
			delete(m.subs, key)
			close(sub)
		}
	}
}

func (m *Manager) publishLocked(ev Event) {
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
