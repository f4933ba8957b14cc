package koseki

import "testing"

type busTestEvent struct {
	value int
}

type busOtherEvent struct {
	label string
}

func TestEventBusSubscribePublish(t *testing.T) {
	bus := NewEventBus()
	var got []int
	Subscribe(bus, func(e busTestEvent) { got = append(got, e.value) })
	Subscribe(bus, func(e busTestEvent) { got = append(got, e.value*10) })

	Publish(bus, busTestEvent{value: 3})
	if len(got) != 2 || got[0] != 3 || got[1] != 30 {
		t.Errorf("handlers must run in subscription order, got %v", got)
	}
}

func TestEventBusTypeIsolation(t *testing.T) {
	bus := NewEventBus()
	var calls int
	Subscribe(bus, func(busTestEvent) { calls++ })

	Publish(bus, busOtherEvent{label: "x"})
	if calls != 0 {
		t.Error("handlers must only see their own event type")
	}
}

func TestEventBusPublishWithoutSubscribers(t *testing.T) {
	bus := NewEventBus()
	// must not panic
	Publish(bus, busTestEvent{value: 1})
}
