package taskmsg

import (
	"bytes"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/beamline/forge/internal/pool"
)

// ErrUnknownType is returned when a message envelope names a type that is not
// part of the protocol. The coordinator treats it as an invariant violation.
var ErrUnknownType = errors.New("unknown task message type")

type envelope struct {
	Type    string              `json:"type"`
	Payload jsoniter.RawMessage `json:"payload"`
}

// decoders is a tagged dispatch table built once; adding a variant means
// adding a constructor here, not registering types at run time.
var decoders = map[string]func(payload []byte) (Message, error){
	"Partition": decodeInto(func() Message { return &Partition{} }),
	"Complete":  decodeInto(func() Message { return &Complete{} }),
	"Failed":    decodeInto(func() Message { return &Failed{} }),
	"Log":       decodeInto(func() Message { return &Log{} }),
}

func decodeInto(newMessage func() Message) func([]byte) (Message, error) {
	return func(payload []byte) (Message, error) {
		m := newMessage()
		if err := jsoniter.Unmarshal(payload, m); err != nil {
			return nil, errors.Wrap(err, "decode payload")
		}
		return m, nil
	}
}

func typeNameOf(m Message) (string, error) {
	switch m.(type) {
	case *Partition, Partition:
		return "Partition", nil
	case *Complete, Complete:
		return "Complete", nil
	case *Failed, Failed:
		return "Failed", nil
	case *Log, Log:
		return "Log", nil
	}
	return "", errors.Wrapf(ErrUnknownType, "%T", m)
}

// Marshal wraps a message in a type-tagged envelope.
func Marshal(m Message) ([]byte, error) {
	name, err := typeNameOf(m)
	if err != nil {
		return nil, err
	}
	payload, err := jsoniter.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "encode payload")
	}
	return jsoniter.Marshal(envelope{Type: name, Payload: payload})
}

// Unmarshal decodes a type-tagged envelope back into its message variant.
func Unmarshal(data []byte) (Message, error) {
	var e envelope
	if err := jsoniter.Unmarshal(data, &e); err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}
	decode, ok := decoders[e.Type]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownType, "%q", e.Type)
	}
	return decode(e.Payload)
}

var bufPool = pool.NewWithResetter(
	func() *bytes.Buffer { return new(bytes.Buffer) },
	func(b **bytes.Buffer) { (*b).Reset() },
)

// Write encodes a message as a single newline-delimited envelope. The message
// stream between worker and coordinator is a sequence of such lines.
func Write(w io.Writer, m Message) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	buf := bufPool.Get()
	defer bufPool.ResetAndPut(buf)

	buf.Write(data)
	buf.WriteByte('\n')
	_, err = w.Write(buf.Bytes())
	return errors.Wrap(err, "write message")
}
