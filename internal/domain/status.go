package domain

// Status is the lifecycle state of a ticket.
//
//	pending -> classified_by_cache | classified_by_ai | failed
//	classified_by_cache | classified_by_ai -> corrected
//	corrected -> corrected (repeated feedback)
type Status string

const (
	StatusPending           Status = "pending"
	StatusClassifiedByCache Status = "classified_by_cache"
	StatusClassifiedByAI    Status = "classified_by_ai"
	StatusFailed            Status = "failed"
	StatusCorrected         Status = "corrected"
)

var transitions = map[Status][]Status{
	StatusPending:           {StatusClassifiedByCache, StatusClassifiedByAI, StatusFailed},
	StatusClassifiedByCache: {StatusCorrected},
	StatusClassifiedByAI:    {StatusCorrected},
	StatusCorrected:         {StatusCorrected},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusClassifiedByCache, StatusClassifiedByAI, StatusFailed, StatusCorrected:
		return true
	}
	return false
}

// Terminal reports whether classification of the ticket has finished.
func (s Status) Terminal() bool {
	return s != StatusPending && s.Valid()
}

// Classified reports whether the ticket carries a category backed by memory.
func (s Status) Classified() bool {
	return s == StatusClassifiedByCache || s == StatusClassifiedByAI || s == StatusCorrected
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseStatus accepts the wire names of statuses.
func ParseStatus(v string) (Status, bool) {
	s := Status(v)
	return s, s.Valid()
}
