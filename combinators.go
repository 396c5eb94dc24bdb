package loom

// Awaitable is a type-erased Future, used only to let AwaitAll accept a
// heterogeneous set of futures (spec.md §4.7: "a (possibly heterogeneous)
// set of awaitables"). Build one with Erase.
type Awaitable interface {
	await(s *Scheduler) (any, error)
}

type erasedFuture[T any] struct {
	f Future[T]
}

func (e erasedFuture[T]) await(s *Scheduler) (any, error) {
	return e.f.Await(s)
}

// Erase adapts a Future[T] into an Awaitable so it can be mixed with
// futures of other result types in a single AwaitAll call.
func Erase[T any](f Future[T]) Awaitable {
	return erasedFuture[T]{f: f}
}

// AwaitAll awaits each of the given awaitables on the current fiber, in
// order, discarding their results. Per spec.md §4.7, awaiting is
// sequential: total elapsed time equals the sum of each await's
// suspension only in the absence of overlap, and overlaps whenever each
// awaitable suspends on disjoint readiness events interleaved by other
// fibers running in between — there is no implicit concurrency here, only
// interleaving through suspension. Returns the first error encountered,
// without awaiting the remainder.
func AwaitAll(s *Scheduler, awaitables ...Awaitable) error {
	for _, a := range awaitables {
		if _, err := a.await(s); err != nil {
			return err
		}
	}
	return nil
}

// CaptureAll awaits each future in order and collects their results into a
// slice in that same order, per spec.md §4.7. All futures must share
// result type R; for a heterogeneous set, await each individually and
// assemble the slice by hand, or wrap each in a Future[any].
func CaptureAll[R any](s *Scheduler, futures ...Future[R]) ([]R, error) {
	results := make([]R, 0, len(futures))
	for _, f := range futures {
		v, err := f.Await(s)
		if err != nil {
			return results, err
		}
		results = append(results, v)
	}
	return results, nil
}
