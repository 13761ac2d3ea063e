package payment

type Status string

const (
	StatusInitialized Status = "initialized"
	StatusFailed      Status = "failed"
	StatusReconciled  Status = "reconciled"
)

// A failed attempt can still be reconciled by a later successful verify.
var validNext = map[Status]map[Status]bool{
	StatusInitialized: {StatusFailed: true, StatusReconciled: true},
	StatusFailed:      {StatusReconciled: true},
	StatusReconciled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
