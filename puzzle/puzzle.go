package puzzle

import "sync"

// Value is a lazy function of an optional Answer, with the discipline
// that a call against a concrete Answer must succeed, while a call with
// no Answer succeeds only if the Value is free of unknowns. The closure
// returns (T, ok); combinators below build larger Values out of smaller
// ones.
type Value[T any] struct {
	eval func(ans *Answer) (T, bool)
}

// Call evaluates v against a concrete Answer. This must succeed for
// every allocated Answer once every unknown reachable from v has been
// bound; a false ok here means a puzzle piece was never wired to a
// producer, which is a builder error, not a runtime one.
func (v *Value[T]) Call(ans *Answer) (T, error) {
	val, ok := v.eval(ans)
	if !ok {
		var zero T
		return zero, errUnbound
	}
	return val, nil
}

// Constant evaluates v with no Answer. It returns (value, true) iff v is
// free of unknowns; otherwise (zero, false).
func (v *Value[T]) Constant() (T, bool) {
	return v.eval(nil)
}

// errUnbound is returned by Call when a Value's closure reports not-ok
// for a concrete Answer — an unwired unknown/delayed slot.
var errUnbound error = unboundErr{}

type unboundErr struct{}

func (unboundErr) Error() string { return "puzzle: value has no bound producer for this answer" }

// Constant returns a Value that ignores its Answer and always yields t.
func Constant[T any](t T) *Value[T] {
	return &Value[T]{eval: func(*Answer) (T, bool) { return t, true }}
}

// Derived lifts a pure function over src. It succeeds exactly when src
// succeeds for the same Answer.
func Derived[A, B any](src *Value[A], f func(A) B) *Value[B] {
	return &Value[B]{eval: func(ans *Answer) (B, bool) {
		a, ok := src.eval(ans)
		if !ok {
			var zero B
			return zero, false
		}
		return f(a), true
	}}
}

// Setter binds an Unknown Value's per-Answer value.
type Setter[T any] struct {
	group *unknownGroup[T]
}

// Set binds v's value for ans. Binding the same Answer twice overwrites
// the earlier binding.
func (s *Setter[T]) Set(ans *Answer, v T) {
	s.group.mu.Lock()
	s.group.byIndex[ans.index] = v
	s.group.mu.Unlock()
}

type unknownGroup[T any] struct {
	mu      sync.Mutex
	byIndex map[int]T
}

// Unknown returns a (setter, Value) pair. The returned Value succeeds
// for an Answer only once setter.Set has bound that Answer; called with
// no Answer it always fails, since by definition an unknown value is not
// free of unknowns.
func Unknown[T any]() (*Setter[T], *Value[T]) {
	g := &unknownGroup[T]{byIndex: make(map[int]T)}
	v := &Value[T]{eval: func(ans *Answer) (T, bool) {
		var zero T
		if ans == nil {
			return zero, false
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		val, ok := g.byIndex[ans.index]
		return val, ok
	}}
	return &Setter[T]{group: g}, v
}

// DelayedSetter supplies the expression a PromiseDelayed Value defers
// construction of.
type DelayedSetter[T any] struct {
	mu   sync.Mutex
	expr *Value[T]
}

// Set supplies the expression a delayed Value should evaluate from now on.
// Calling Set more than once replaces the expression.
func (s *DelayedSetter[T]) Set(expr *Value[T]) {
	s.mu.Lock()
	s.expr = expr
	s.mu.Unlock()
}

func (s *DelayedSetter[T]) get() (*Value[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expr, s.expr != nil
}

// PromiseDelayed returns a (setter, Value) pair whose underlying
// expression is supplied later via setter.Set. Reading it before Set is
// called fails for both Call and Constant.
func PromiseDelayed[T any]() (*DelayedSetter[T], *Value[T]) {
	s := &DelayedSetter[T]{}
	v := &Value[T]{eval: func(ans *Answer) (T, bool) {
		expr, ok := s.get()
		if !ok {
			var zero T
			return zero, false
		}
		return expr.eval(ans)
	}}
	return s, v
}

// Delayed is the build-on-first-use sibling of PromiseDelayed: build runs
// at most once, on the first evaluation from any Answer, rather than
// being pushed in externally via a setter — for a deferred expression
// that doesn't depend on anything supplied after construction, only on
// being expensive to build eagerly.
func Delayed[T any](build func() *Value[T]) *Value[T] {
	var (
		once  sync.Once
		inner *Value[T]
	)
	return &Value[T]{eval: func(ans *Answer) (T, bool) {
		once.Do(func() { inner = build() })
		return inner.eval(ans)
	}}
}

// Commute folds values with op (required to be associative) starting
// from zero, used e.g. to compute a stack height as the max of per-row
// contributions. The result for a concrete Answer succeeds iff every
// value in the list succeeds for that Answer; an empty list evaluates to
// zero unconditionally.
func Commute[T any](values []*Value[T], zero T, op func(a, b T) T) *Value[T] {
	// Copied so later mutation of the caller's slice can't change this
	// Value's behavior after construction.
	vs := append([]*Value[T](nil), values...)
	return &Value[T]{eval: func(ans *Answer) (T, bool) {
		acc := zero
		for _, v := range vs {
			val, ok := v.eval(ans)
			if !ok {
				var none T
				return none, false
			}
			acc = op(acc, val)
		}
		return acc, true
	}}
}

// CacheConstant memoizes src's result against its first evaluation and
// returns the same value for every later call regardless of Answer — for
// a Value that is expensive to derive the first time but never varies
// once computed.
func CacheConstant[T any](src *Value[T]) *Value[T] {
	var (
		once sync.Once
		val  T
		ok   bool
	)
	return &Value[T]{eval: func(ans *Answer) (T, bool) {
		once.Do(func() { val, ok = src.eval(ans) })
		return val, ok
	}}
}

// ShortMemoized caches src's result per Answer, using the Answer's own
// Retain slot so the cache lives and dies with that Answer (unlike
// CacheConstant, which caches forever).
func ShortMemoized[T any](key any, src *Value[T]) *Value[T] {
	type result struct {
		val T
		ok  bool
	}
	return &Value[T]{eval: func(ans *Answer) (T, bool) {
		if ans == nil {
			return src.eval(ans)
		}
		r := ans.Retain(key, func() any {
			val, ok := src.eval(ans)
			return result{val: val, ok: ok}
		}).(result)
		return r.val, r.ok
	}}
}
