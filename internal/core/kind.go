package core

// Kind is the closed set of scalar kinds a column can hold.
type Kind int

const (
	KindInvalid Kind = iota
	KindText
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindBool
	KindUUID
	KindTimestamp
)

var kindNames = map[Kind]string{
	KindText:      "text",
	KindInt16:     "int16",
	KindInt32:     "int32",
	KindInt64:     "int64",
	KindFloat32:   "float32",
	KindFloat64:   "float64",
	KindBool:      "bool",
	KindUUID:      "uuid",
	KindTimestamp: "timestamp",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "invalid"
}

// Valid reports whether k belongs to the supported set.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}
