package events

import (
	"testing"
	"time"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventTaskProgress)

	testEvent := &TaskProgressEvent{
		BaseEvent: BaseEvent{
			EventType: EventTaskProgress,
			Time:      time.Now(),
		},
		TaskID: "t1",
		Phase:  "downloading",
		Name:   "file.bin",
	}

	bus.Publish(testEvent)

	select {
	case received := <-ch:
		progress, ok := received.(*TaskProgressEvent)
		if !ok {
			t.Fatal("Expected TaskProgressEvent")
		}
		if progress.TaskID != "t1" {
			t.Errorf("Expected task id 't1', got '%s'", progress.TaskID)
		}
		if progress.Phase != "downloading" {
			t.Errorf("Expected phase 'downloading', got '%s'", progress.Phase)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
	}
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch1 := bus.Subscribe(EventLog)
	ch2 := bus.Subscribe(EventLog)

	testEvent := &LogEvent{
		BaseEvent: BaseEvent{
			EventType: EventLog,
			Time:      time.Now(),
		},
		Level:   InfoLevel,
		Message: "Test log",
		TaskID:  "t1",
	}

	bus.Publish(testEvent)

	received1 := false
	received2 := false

	select {
	case <-ch1:
		received1 = true
	case <-time.After(100 * time.Millisecond):
	}

	select {
	case <-ch2:
		received2 = true
	case <-time.After(100 * time.Millisecond):
	}

	if !received1 || !received2 {
		t.Error("Not all subscribers received the event")
	}
}

func TestEventBus_DifferentEventTypes(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	progressCh := bus.Subscribe(EventTaskProgress)
	logCh := bus.Subscribe(EventLog)

	bus.Publish(&TaskProgressEvent{
		BaseEvent: BaseEvent{EventType: EventTaskProgress, Time: time.Now()},
		TaskID:    "t1",
	})

	select {
	case <-progressCh:
	case <-time.After(100 * time.Millisecond):
		t.Error("Progress subscriber didn't receive event")
	}

	select {
	case <-logCh:
		t.Error("Log subscriber received wrong event type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBus_SubscribeAll(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	allCh := bus.SubscribeAll()

	bus.Publish(&TaskProgressEvent{
		BaseEvent: BaseEvent{EventType: EventTaskProgress, Time: time.Now()},
	})

	bus.Publish(&LogEvent{
		BaseEvent: BaseEvent{EventType: EventLog, Time: time.Now()},
	})

	count := 0
	for i := 0; i < 2; i++ {
		select {
		case <-allCh:
			count++
		case <-time.After(100 * time.Millisecond):
			break
		}
	}

	if count != 2 {
		t.Errorf("Expected to receive 2 events, got %d", count)
	}
}

func TestEventBus_NonBlocking(t *testing.T) {
	bus := NewEventBus(2)
	defer bus.Close()

	ch := bus.Subscribe(EventTaskProgress)

	for i := 0; i < 10; i++ {
		bus.Publish(&TaskProgressEvent{
			BaseEvent: BaseEvent{EventType: EventTaskProgress, Time: time.Now()},
			TaskID:    "t1",
		})
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
		case <-time.After(10 * time.Millisecond):
			goto done
		}
	}
done:

	if count == 0 {
		t.Error("Should have received at least some events")
	}
}

func TestEventBus_Close(t *testing.T) {
	bus := NewEventBus(10)

	ch := bus.Subscribe(EventTaskProgress)

	bus.Close()

	_, ok := <-ch
	if ok {
		t.Error("Channel should be closed after bus.Close()")
	}

	bus.Publish(&TaskProgressEvent{
		BaseEvent: BaseEvent{EventType: EventTaskProgress, Time: time.Now()},
	})
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level %d: expected %s, got %s", tt.level, tt.expected, got)
		}
	}
}

func TestConvenienceMethods(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	logCh := bus.Subscribe(EventLog)
	stateCh := bus.Subscribe(EventTaskStateChange)

	bus.PublishLog(InfoLevel, "test message", "t1", nil)

	select {
	case event := <-logCh:
		log, ok := event.(*LogEvent)
		if !ok {
			t.Fatal("Expected LogEvent")
		}
		if log.Message != "test message" {
			t.Errorf("Expected 'test message', got '%s'", log.Message)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Timeout waiting for log event")
	}

	bus.PublishTaskStateChange("t1", 1, 100, "AdmissionCheck", "Downloading", "")

	select {
	case event := <-stateCh:
		state, ok := event.(*TaskStateChangeEvent)
		if !ok {
			t.Fatal("Expected TaskStateChangeEvent")
		}
		if state.NewState != "Downloading" {
			t.Errorf("Expected new state 'Downloading', got '%s'", state.NewState)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Timeout waiting for state change event")
	}
}
