package counter

import "github.com/vadiminshakov/distnode/core/message"

// Add increments the shared counter by Delta.
type Add struct {
	Delta uint32 `json:"delta"`
}

func (Add) Type() string { return "add" }

// AddOk is sent once the increment is committed to the store.
type AddOk struct{}

func (AddOk) Type() string { return "add_ok" }

type Read struct{}

func (Read) Type() string { return "read" }

type ReadOk struct {
	Value uint32 `json:"value"`
}

func (ReadOk) Type() string { return "read_ok" }

// Refresh is the timer that re-reads the committed value from the store.
type Refresh struct{}

var payloads = message.NewRegistry(&Add{}, &AddOk{}, &Read{}, &ReadOk{})
