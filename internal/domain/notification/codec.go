package notification

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Channel      Channel         `json:"channel"`
	Notification json.RawMessage `json:"notification"`
}

// Marshal encodes n together with its channel tag.
func Marshal(n Notification) ([]byte, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: nil notification", ErrInvalid)
	}
	body, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal %s notification: %w", n.Channel(), err)
	}
	return json.Marshal(envelope{Channel: n.Channel(), Notification: body})
}

func Unmarshal(b []byte) (Notification, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	n, err := New(env.Channel)
	if err != nil {
		return nil, err
	}
	if len(env.Notification) == 0 {
		return nil, fmt.Errorf("%w: empty %s body", ErrInvalid, env.Channel)
	}
	if err := json.Unmarshal(env.Notification, n); err != nil {
		return nil, fmt.Errorf("unmarshal %s notification: %w", env.Channel, err)
	}
	return n, nil
}
