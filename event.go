package slcan

import (
	"fmt"
	"log"
	"path/filepath"
	"runtime"
)

type EventType int

func (et EventType) String() string {
	switch et {
	case EventTypeError:
		return "ERROR"
	case EventTypeWarning:
		return "WARN"
	case EventTypeInfo:
		return "INFO"
	case EventTypeDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

const (
	EventTypeError EventType = iota
	EventTypeWarning
	EventTypeInfo
	EventTypeDebug
)

type Event struct {
	Type    EventType
	Details string
}

func (e Event) String() string {
	return fmt.Sprintf("[%s] %s", e.Type.String(), e.Details)
}

// LogEvent is the default event sink, it prefixes the event with the
// location that raised it.
func LogEvent(evt Event) {
	_, file, no, ok := runtime.Caller(2)
	if ok {
		log.Printf("%s#%d %s", filepath.Base(file), no, evt)
		return
	}
	log.Println(evt)
}
