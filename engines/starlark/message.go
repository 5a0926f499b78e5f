package starlark

import (
	"fmt"
	"sort"

	starlarkLib "go.starlark.net/starlark"

	"github.com/robbyt/go-scriptsvc/platform/envelope"
)

// messageValue exposes an envelope to scripts:
//
//	message.id                       read-only
//	message.payload                  read/write, string
//	message.metadata                 copy of all metadata, dict
//	message.get_metadata(k, d="")    single entry
//	message.set_metadata(k, v)
//	message.delete_metadata(k)
type messageValue struct {
	env envelope.Envelope
}

var (
	_ starlarkLib.HasAttrs    = (*messageValue)(nil)
	_ starlarkLib.HasSetField = (*messageValue)(nil)
)

func newMessageValue(env envelope.Envelope) *messageValue {
	return &messageValue{env: env}
}

func (m *messageValue) String() string        { return fmt.Sprintf("<message %s>", m.env.ID()) }
func (m *messageValue) Type() string          { return "message" }
func (m *messageValue) Freeze()               {}
func (m *messageValue) Truth() starlarkLib.Bool { return starlarkLib.True }

func (m *messageValue) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: message")
}

func (m *messageValue) AttrNames() []string {
	names := []string{"delete_metadata", "get_metadata", "id", "metadata", "payload", "set_metadata"}
	sort.Strings(names)
	return names
}

func (m *messageValue) Attr(name string) (starlarkLib.Value, error) {
	switch name {
	case "id":
		return starlarkLib.String(m.env.ID()), nil
	case "payload":
		return starlarkLib.String(m.env.Payload()), nil
	case "metadata":
		return toStarlark(m.env.Metadata())
	case "get_metadata":
		return starlarkLib.NewBuiltin("get_metadata", m.getMetadata), nil
	case "set_metadata":
		return starlarkLib.NewBuiltin("set_metadata", m.setMetadata), nil
	case "delete_metadata":
		return starlarkLib.NewBuiltin("delete_metadata", m.deleteMetadata), nil
	default:
		return nil, nil
	}
}

func (m *messageValue) SetField(name string, val starlarkLib.Value) error {
	if name != "payload" {
		return starlarkLib.NoSuchAttrError(fmt.Sprintf("message has no writable field %q", name))
	}
	switch v := val.(type) {
	case starlarkLib.String:
		m.env.SetPayload([]byte(v))
	case starlarkLib.Bytes:
		m.env.SetPayload([]byte(v))
	default:
		return fmt.Errorf("message.payload must be string or bytes, got %s", val.Type())
	}
	return nil
}

func (m *messageValue) getMetadata(
	_ *starlarkLib.Thread,
	b *starlarkLib.Builtin,
	args starlarkLib.Tuple,
	kwargs []starlarkLib.Tuple,
) (starlarkLib.Value, error) {
	var key string
	def := ""
	if err := starlarkLib.UnpackArgs(b.Name(), args, kwargs, "key", &key, "default?", &def); err != nil {
		return nil, err
	}
	if v := m.env.GetMetadata(key); v != "" {
		return starlarkLib.String(v), nil
	}
	return starlarkLib.String(def), nil
}

func (m *messageValue) setMetadata(
	_ *starlarkLib.Thread,
	b *starlarkLib.Builtin,
	args starlarkLib.Tuple,
	kwargs []starlarkLib.Tuple,
) (starlarkLib.Value, error) {
	var key, value string
	if err := starlarkLib.UnpackArgs(b.Name(), args, kwargs, "key", &key, "value", &value); err != nil {
		return nil, err
	}
	m.env.SetMetadata(key, value)
	return starlarkLib.None, nil
}

func (m *messageValue) deleteMetadata(
	_ *starlarkLib.Thread,
	b *starlarkLib.Builtin,
	args starlarkLib.Tuple,
	kwargs []starlarkLib.Tuple,
) (starlarkLib.Value, error) {
	var key string
	if err := starlarkLib.UnpackArgs(b.Name(), args, kwargs, "key", &key); err != nil {
		return nil, err
	}
	m.env.DeleteMetadata(key)
	return starlarkLib.None, nil
}
