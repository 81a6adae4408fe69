package outbox

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// Invocation is the serialized description of a deferred method call: a
// symbolic target name, a method name, the declared parameter type names
// (informational; used by some serializers to disambiguate overloads), and
// the argument values.
type Invocation struct {
	ClassName        string
	MethodName       string
	ParameterTypeNames []string
	Args             []any
}

// Description returns a short human-readable identifier for logging.
func (inv Invocation) Description() string {
	return fmt.Sprintf("%s.%s", inv.ClassName, inv.MethodName)
}

// Serializer converts an Invocation to and from its durable text form.
// Implementations must round-trip every supported argument kind; an
// unsupported argument fails at Serialize time with ErrSerializationUnsupported.
type Serializer interface {
	Serialize(inv Invocation) (string, error)
	Deserialize(text string) (Invocation, error)
}

// JSONSerializer is the default Serializer. It supports nil, bool, int,
// int32, int64, uint64, float32, float64, string, time.Time, and any type
// registered in Allowlist; anything else (including other integer widths)
// fails with ErrSerializationUnsupported.
//
// Allowlist maps a stable type tag to a zero value used to determine the
// concrete Go type to decode into on Deserialize, mirroring the "argument
// type whitelist" the default Java serializer uses.
type JSONSerializer struct {
	Allowlist map[string]any
}

type wireInvocation struct {
	ClassName          string        `json:"className"`
	MethodName         string        `json:"methodName"`
	ParameterTypeNames []string      `json:"parameterTypeNames"`
	Args               []wireArg     `json:"args"`
}

type wireArg struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

const (
	tagNil    = "nil"
	tagBool   = "bool"
	tagInt64  = "int64"
	tagUint64 = "uint64"
	tagFloat  = "float64"
	tagString = "string"
	tagTime   = "time"
)

// Serialize implements Serializer.
func (s JSONSerializer) Serialize(inv Invocation) (string, error) {
	wire := wireInvocation{
		ClassName:          inv.ClassName,
		MethodName:         inv.MethodName,
		ParameterTypeNames: inv.ParameterTypeNames,
		Args:                make([]wireArg, len(inv.Args)),
	}
	for i, arg := range inv.Args {
		tag, raw, err := s.encodeArg(arg)
		if err != nil {
			return "", err
		}
		wire.Args[i] = wireArg{Type: tag, Value: raw}
	}
	buf, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerializationUnsupported, err)
	}

	return string(buf), nil
}

// Deserialize implements Serializer.
func (s JSONSerializer) Deserialize(text string) (Invocation, error) {
	var wire wireInvocation
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return Invocation{}, fmt.Errorf("outbox: deserialize invocation: %w", err)
	}
	args := make([]any, len(wire.Args))
	for i, arg := range wire.Args {
		decoded, err := s.decodeArg(arg)
		if err != nil {
			return Invocation{}, err
		}
		args[i] = decoded
	}

	return Invocation{
		ClassName:          wire.ClassName,
		MethodName:         wire.MethodName,
		ParameterTypeNames: wire.ParameterTypeNames,
		Args:                args,
	}, nil
}

func (s JSONSerializer) encodeArg(arg any) (string, json.RawMessage, error) {
	switch v := arg.(type) {
	case nil:
		return tagNil, json.RawMessage("null"), nil
	case bool:
		return s.encodeSimple(tagBool, v)
	case int:
		return s.encodeSimple(tagInt64, int64(v))
	case int32:
		return s.encodeSimple(tagInt64, int64(v))
	case int64:
		return s.encodeSimple(tagInt64, v)
	case uint64:
		return s.encodeSimple(tagUint64, v)
	case float32:
		return s.encodeSimple(tagFloat, float64(v))
	case float64:
		return s.encodeSimple(tagFloat, v)
	case string:
		return s.encodeSimple(tagString, v)
	case time.Time:
		return s.encodeSimple(tagTime, v.UTC().Format(time.RFC3339Nano))
	default:
		for tag, zero := range s.Allowlist {
			if sameType(zero, v) {
				return s.encodeSimple(tag, v)
			}
		}

		return "", nil, fmt.Errorf("%w: %T", ErrSerializationUnsupported, arg)
	}
}

func (s JSONSerializer) encodeSimple(tag string, v any) (string, json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrSerializationUnsupported, err)
	}

	return tag, raw, nil
}

func (s JSONSerializer) decodeArg(arg wireArg) (any, error) {
	switch arg.Type {
	case tagNil:
		return nil, nil
	case tagBool:
		var v bool
		return v, unmarshalInto(arg.Value, &v)
	case tagInt64:
		var v int64
		return v, unmarshalInto(arg.Value, &v)
	case tagUint64:
		var v uint64
		return v, unmarshalInto(arg.Value, &v)
	case tagFloat:
		var v float64
		return v, unmarshalInto(arg.Value, &v)
	case tagString:
		var v string
		return v, unmarshalInto(arg.Value, &v)
	case tagTime:
		var v string
		if err := unmarshalInto(arg.Value, &v); err != nil {
			return nil, err
		}

		return time.Parse(time.RFC3339Nano, v)
	default:
		zero, ok := s.Allowlist[arg.Type]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrSerializationUnsupported, arg.Type)
		}
		target := reflect.New(reflect.TypeOf(zero))
		if err := unmarshalInto(arg.Value, target.Interface()); err != nil {
			return nil, err
		}

		return target.Elem().Interface(), nil
	}
}

func unmarshalInto(raw json.RawMessage, target any) error {
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("outbox: decode invocation argument: %w", err)
	}

	return nil
}

func sameType(zero, v any) bool {
	return reflect.TypeOf(zero) == reflect.TypeOf(v)
}
