package core

import "context"

type (
	// Pinger is anything whose connectivity can be checked (databases, caches).
	Pinger interface {
		PingContext(ctx context.Context) error
	}

	DBOrdering struct {
		Field     string
		Ascending bool
	}
)

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
