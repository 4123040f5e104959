package repository

// Option applies a configuration option to the ResultStore.
type Option func(*ResultStore)

// WithCapacity sets how many results are retained.
func WithCapacity(n int) Option {
	return func(s *ResultStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}
