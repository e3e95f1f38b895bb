package sel

import (
	"reflect"
	"sync"
	"time"
)

// StandardTypeLocator resolves the type names used by T(...) and new
// expressions. Go has no runtime class loading, so the embedder registers
// the types it wants expressions to see; the scalar names are pre-registered.
type StandardTypeLocator struct {
	types sync.Map // string -> reflect.Type
	ctors sync.Map // string -> reflect.Value (factory func)
}

func NewStandardTypeLocator() *StandardTypeLocator {
	l := &StandardTypeLocator{}
	for name, t := range map[string]reflect.Type{
		"int":      typeInt64,
		"long":     typeInt64,
		"float":    typeFloat64,
		"double":   typeFloat64,
		"string":   typeString,
		"bool":     typeBool,
		"boolean":  typeBool,
		"object":   typeAny,
		"list":     reflect.TypeOf([]any{}),
		"map":      reflect.TypeOf(map[string]any{}),
		"time":     reflect.TypeOf(time.Time{}),
		"duration": reflect.TypeOf(time.Duration(0)),
	} {
		l.types.Store(name, t)
	}
	return l
}

// Register makes t visible under name.
func (l *StandardTypeLocator) Register(name string, t reflect.Type) {
	l.types.Store(name, t)
}

// RegisterConstructor binds a factory function consulted before positional
// struct construction.
func (l *StandardTypeLocator) RegisterConstructor(name string, fn any) {
	v := reflect.ValueOf(fn)
	if v.Kind() == reflect.Func {
		l.ctors.Store(name, v)
	}
}

func (l *StandardTypeLocator) FindType(name string) (reflect.Type, error) {
	if t, ok := l.types.Load(name); ok {
		return t.(reflect.Type), nil
	}
	return nil, newEvalError(-1, CodeUnknownType, name)
}

func (l *StandardTypeLocator) findConstructor(name string) (reflect.Value, bool) {
	if v, ok := l.ctors.Load(name); ok {
		return v.(reflect.Value), true
	}
	return reflect.Value{}, false
}
