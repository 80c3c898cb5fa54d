package logger

import (
	"fmt"
	"time"
)

// A Field is extra structured data attached to a log line.
type Field interface {
	Key() string
	String() string
}

type Fields []Field

// GenericField formats any value with a fmt verb.
type GenericField struct {
	key    string
	value  any
	format string
}

func (f GenericField) Key() string { return f.key }

func (f GenericField) String() string { return fmt.Sprintf(f.format, f.value) }

func StringField(key, value string) Field {
	return GenericField{key: key, value: value, format: "%s"}
}

func IntField(key string, value int) Field {
	return GenericField{key: key, value: value, format: "%d"}
}

func DurationField(key string, value time.Duration) Field {
	return GenericField{key: key, value: value, format: "%v"}
}
