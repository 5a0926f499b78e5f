package tengo

import (
	"context"
	"log/slog"
	"sort"

	tengoLib "github.com/d5/tengo/v2"

	"github.com/robbyt/go-scriptsvc/platform/envelope"
)

// messageObject exposes an envelope to scripts:
//
//	message.id, message.payload, message.metadata
//	message.payload = "..."
//	message.get_metadata(k [, default]), message.set_metadata(k, v), message.delete_metadata(k)
type messageObject struct {
	tengoLib.ObjectImpl
	env envelope.Envelope
}

func newMessageObject(env envelope.Envelope) *messageObject {
	return &messageObject{env: env}
}

func (m *messageObject) TypeName() string { return "message" }
func (m *messageObject) String() string   { return "<message " + m.env.ID() + ">" }
func (m *messageObject) IsFalsy() bool    { return false }

func (m *messageObject) Copy() tengoLib.Object {
	return &messageObject{env: m.env}
}

func (m *messageObject) Equals(another tengoLib.Object) bool {
	o, ok := another.(*messageObject)
	return ok && o.env == m.env
}

func (m *messageObject) IndexGet(index tengoLib.Object) (tengoLib.Object, error) {
	key, ok := tengoLib.ToString(index)
	if !ok {
		return nil, tengoLib.ErrInvalidIndexType
	}
	switch key {
	case "id":
		return &tengoLib.String{Value: m.env.ID()}, nil
	case "payload":
		return &tengoLib.String{Value: string(m.env.Payload())}, nil
	case "metadata":
		md := m.env.Metadata()
		out := make(map[string]tengoLib.Object, len(md))
		for k, v := range md {
			out[k] = &tengoLib.String{Value: v}
		}
		return &tengoLib.Map{Value: out}, nil
	case "get_metadata":
		return &tengoLib.UserFunction{Name: key, Value: m.getMetadata}, nil
	case "set_metadata":
		return &tengoLib.UserFunction{Name: key, Value: m.setMetadata}, nil
	case "delete_metadata":
		return &tengoLib.UserFunction{Name: key, Value: m.deleteMetadata}, nil
	default:
		return tengoLib.UndefinedValue, nil
	}
}

func (m *messageObject) IndexSet(index, value tengoLib.Object) error {
	key, ok := tengoLib.ToString(index)
	if !ok || key != "payload" {
		return tengoLib.ErrNotIndexAssignable
	}
	switch v := value.(type) {
	case *tengoLib.String:
		m.env.SetPayload([]byte(v.Value))
	case *tengoLib.Bytes:
		m.env.SetPayload(v.Value)
	default:
		return tengoLib.ErrInvalidIndexValueType
	}
	return nil
}

func (m *messageObject) getMetadata(args ...tengoLib.Object) (tengoLib.Object, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, tengoLib.ErrWrongNumArguments
	}
	key, ok := tengoLib.ToString(args[0])
	if !ok {
		return nil, tengoLib.ErrInvalidArgumentType{Name: "key", Expected: "string", Found: args[0].TypeName()}
	}
	v := m.env.GetMetadata(key)
	if v == "" && len(args) == 2 {
		v, _ = tengoLib.ToString(args[1])
	}
	return &tengoLib.String{Value: v}, nil
}

func (m *messageObject) setMetadata(args ...tengoLib.Object) (tengoLib.Object, error) {
	if len(args) != 2 {
		return nil, tengoLib.ErrWrongNumArguments
	}
	key, ok := tengoLib.ToString(args[0])
	if !ok {
		return nil, tengoLib.ErrInvalidArgumentType{Name: "key", Expected: "string", Found: args[0].TypeName()}
	}
	value, _ := tengoLib.ToString(args[1])
	m.env.SetMetadata(key, value)
	return tengoLib.UndefinedValue, nil
}

func (m *messageObject) deleteMetadata(args ...tengoLib.Object) (tengoLib.Object, error) {
	if len(args) != 1 {
		return nil, tengoLib.ErrWrongNumArguments
	}
	key, ok := tengoLib.ToString(args[0])
	if !ok {
		return nil, tengoLib.ErrInvalidArgumentType{Name: "key", Expected: "string", Found: args[0].TypeName()}
	}
	m.env.DeleteMetadata(key)
	return tengoLib.UndefinedValue, nil
}

// newLogObject builds the "log" binding: log.info("msg" [, {key: value}]).
func newLogObject(ctx context.Context, logger *slog.Logger) *tengoLib.ImmutableMap {
	fns := make(map[string]tengoLib.Object, 4)
	for name, level := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		fns[name] = &tengoLib.UserFunction{Name: name, Value: logFunc(ctx, logger, level)}
	}
	return &tengoLib.ImmutableMap{Value: fns}
}

func logFunc(ctx context.Context, logger *slog.Logger, level slog.Level) tengoLib.CallableFunc {
	return func(args ...tengoLib.Object) (tengoLib.Object, error) {
		if len(args) < 1 || len(args) > 2 {
			return nil, tengoLib.ErrWrongNumArguments
		}
		msg, _ := tengoLib.ToString(args[0])

		var attrs []any
		if len(args) == 2 {
			if fields, ok := tengoLib.ToInterface(args[1]).(map[string]any); ok {
				keys := make([]string, 0, len(fields))
				for k := range fields {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					attrs = append(attrs, k, fields[k])
				}
			}
		}
		logger.Log(ctx, level, msg, attrs...)
		return tengoLib.UndefinedValue, nil
	}
}
