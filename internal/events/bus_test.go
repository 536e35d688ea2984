package events

import (
	"testing"
	"time"
)

func TestPublishRoutesByKind(t *testing.T) {
	bus := NewBus(nil)

	var started, finished int
	bus.Subscribe(KindScriptStarted, func(Event) { started++ })
	bus.Subscribe(KindScriptFinished, func(Event) { finished++ })

	bus.Publish(Event{Kind: KindScriptStarted, Name: "a.py"})
	bus.Publish(Event{Kind: KindScriptStarted, Name: "b.py"})
	bus.Publish(Event{Kind: KindScriptFinished, Name: "a.py"})

	if started != 2 || finished != 1 {
		t.Fatalf("started=%d finished=%d", started, finished)
	}
}

func TestSubscribeAllSeesEverything(t *testing.T) {
	bus := NewBus(nil)

	var all []Kind
	bus.SubscribeAll(func(ev Event) { all = append(all, ev.Kind) })

	bus.Publish(Event{Kind: KindServiceCrashed})
	bus.Publish(Event{Kind: KindExecutionBlocked})

	if len(all) != 2 || all[0] != KindServiceCrashed || all[1] != KindExecutionBlocked {
		t.Fatalf("all = %v", all)
	}
}

func TestPanickingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(nil)

	delivered := false
	bus.Subscribe(KindNotification, func(Event) { panic("bad handler") })
	bus.Subscribe(KindNotification, func(Event) { delivered = true })

	bus.Publish(Event{Kind: KindNotification})
	if !delivered {
		t.Fatal("second handler starved by panicking first")
	}
}

func TestPublishStampsTime(t *testing.T) {
	bus := NewBus(nil)

	var got time.Time
	bus.Subscribe(KindStatusUpdate, func(ev Event) { got = ev.Time })

	before := time.Now()
	bus.Publish(Event{Kind: KindStatusUpdate})
	if got.Before(before) || got.IsZero() {
		t.Fatalf("time not stamped: %v", got)
	}
}

func TestNilHandlerIgnored(t *testing.T) {
	bus := NewBus(nil)
	bus.Subscribe(KindMenuRebuild, nil)
	bus.SubscribeAll(nil)
	bus.Publish(Event{Kind: KindMenuRebuild}) // must not panic
}
