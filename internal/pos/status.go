package pos

type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusInvoiced  Status = "INVOICED"
	StatusCancelled Status = "CANCELLED"
)

// INVOICED and CANCELLED are terminal.
var validNext = map[Status]map[Status]bool{
	StatusCreated:   {StatusInvoiced: true, StatusCancelled: true},
	StatusInvoiced:  {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func ValidStatus(s Status) bool {
	_, ok := validNext[s]
	return ok
}
