package funnel

// PartialResult is the tri-state outcome of one metric query: present with a concrete
// value, or unknown because the query failed or timed out. Distinct from a legitimate
// zero value, so the dashboard can render "no data" instead of a misleading number.
//
// The zero value is unknown.
type PartialResult[T any] struct {
	value   T
	present bool
}

func Present[T any](value T) PartialResult[T] {
	return PartialResult[T]{value: value, present: true}
}

func Unknown[T any]() PartialResult[T] {
	return PartialResult[T]{}
}

func (result PartialResult[T]) Get() (value T, present bool) {
	return result.value, result.present
}

func (result PartialResult[T]) IsPresent() bool {
	return result.present
}
