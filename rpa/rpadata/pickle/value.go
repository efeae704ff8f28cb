package pickle

// Value is any decoded pickle value: nil (None), bool, int64, float64,
// string (a unicode string), []byte (a byte string), Tuple, List, *Dict,
// Set, Global, or Reduced.
type Value interface{}

// Tuple is a fixed-arity pickle tuple.
type Tuple []Value

// List is a pickle list.
type List []Value

// Set is a pickle set or frozenset. Order matches encounter order on the
// wire; pickle sets have no other defined order.
type Set []Value

// Global is an opaque class or function reference produced by GLOBAL or
// STACK_GLOBAL. The index codec never needs to instantiate one: a Global
// surviving into the top-level index value is rejected by the caller as
// BadIndex.
type Global struct {
	Module string
	Name   string
}

// Reduced is what REDUCE or NEWOBJ produce when the callable isn't one of
// the few constructors this package understands specially
// (collections.OrderedDict and the builtin dict). It is carried opaquely,
// same as Global.
type Reduced struct {
	Callable Value
	Args     Value
	State    Value
}

// Dict is a string-keyed mapping that preserves insertion order, matching
// Python dict semantics since 3.7 (and the ordering collections.OrderedDict
// always had). Values are looked up by Get; iteration order is Keys order.
type Dict struct {
	Keys   []string
	values map[string]Value
}

// NewDict returns an empty, ready-to-use Dict.
func NewDict() *Dict {
	return &Dict{values: map[string]Value{}}
}

// Set inserts or overwrites the value for key, appending key to Keys the
// first time it's seen.
func (d *Dict) Set(key string, v Value) {
	if d.values == nil {
		d.values = map[string]Value{}
	}
	if _, ok := d.values[key]; !ok {
		d.Keys = append(d.Keys, key)
	}
	d.values[key] = v
}

// Get returns the value for key and whether it was present.
func (d *Dict) Get(key string) (Value, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	return len(d.Keys)
}
