// Package surface keeps a disposable secondary display (the float) in step
// with the active timer.
package surface

import "fmt"

// Version is the wire version of Message.
const Version = 1

type Kind string

const (
	KindPublish Kind = "publish"
	KindClear   Kind = "clear"
	KindStopped Kind = "stopped"
)

type PublishPayload struct {
	TaskID   int64  `json:"taskId"`
	TaskName string `json:"taskName"`
	Seconds  int64  `json:"seconds"`
}

type StoppedPayload struct {
	TaskID       int64 `json:"taskId"`
	TotalSeconds int64 `json:"totalSeconds"`
}

// Message is the closed set of messages exchanged between surfaces. Every
// message is stamped with the generation of the secondary it targets.
type Message struct {
	Version    int             `json:"v"`
	Kind       Kind            `json:"kind"`
	Generation string          `json:"generation"`
	Publish    *PublishPayload `json:"publish,omitempty"`
	Stopped    *StoppedPayload `json:"stopped,omitempty"`
}

// Validate rejects unknown versions, unknown kinds and missing payloads.
func (m Message) Validate() error {
	if m.Version != Version {
		return fmt.Errorf("unsupported message version %d", m.Version)
	}
	switch m.Kind {
	case KindPublish:
		if m.Publish == nil {
			return fmt.Errorf("publish message without payload")
		}
	case KindStopped:
		if m.Stopped == nil {
			return fmt.Errorf("stopped message without payload")
		}
	case KindClear:
	default:
		return fmt.Errorf("unknown message kind %q", m.Kind)
	}
	if m.Generation == "" {
		return fmt.Errorf("message without generation")
	}
	return nil
}
