package domain

// Origin records who last wrote an Override.
type Origin int

const (
	OriginUnset Origin = iota
	OriginResolved
	OriginUser
)

// Override holds a value that may be seeded from resolved data until the
// user writes it. Transitions are monotonic: unset -> resolved -> user.
type Override[T any] struct {
	value  T
	origin Origin
}

func UserValue[T any](v T) Override[T] {
	return Override[T]{value: v, origin: OriginUser}
}

// Seed writes v only when nothing has been written yet. The first seed wins.
func (o *Override[T]) Seed(v T) bool {
	if o.origin != OriginUnset {
		return false
	}
	o.value = v
	o.origin = OriginResolved
	return true
}

func (o *Override[T]) Set(v T) {
	o.value = v
	o.origin = OriginUser
}

func (o Override[T]) Get() (T, bool) {
	return o.value, o.origin != OriginUnset
}

func (o Override[T]) Value() T {
	return o.value
}

func (o Override[T]) Origin() Origin {
	return o.origin
}
