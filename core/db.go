package core

// DBOrdering is a single ORDER BY clause element, parsed from a query
// string by the API layer and interpreted by each repository.
type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
