package notify

import "github.com/matheus3301/simchat/internal/bus"

// Level is the severity of a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notice is a transient message for the user. It is published on the bus
// and never stored.
type Notice struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

func publish(b *bus.Bus, kind string, level Level, text string) {
	b.Publish(bus.Event{Kind: kind, Payload: Notice{Level: level, Text: text}})
}

func Info(b *bus.Bus, text string)    { publish(b, bus.KindNoticeInfo, LevelInfo, text) }
func Success(b *bus.Bus, text string) { publish(b, bus.KindNoticeSuccess, LevelSuccess, text) }
func Error(b *bus.Bus, text string)   { publish(b, bus.KindNoticeError, LevelError, text) }
