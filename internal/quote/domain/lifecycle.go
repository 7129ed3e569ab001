package domain

var allowedTransitions = map[QuoteStatus][]QuoteStatus{
	StatusDraft:       {StatusSent, StatusSigned, StatusCanceled},
	StatusSent:        {StatusSigned, StatusCanceled},
	StatusSigned:      {StatusDepositPaid, StatusCanceled},
	StatusDepositPaid: {StatusCompleted, StatusCanceled},
}

// NonTerminalStatuses lists the states from which a quote can still move.
var NonTerminalStatuses = []QuoteStatus{
	StatusDraft,
	StatusSent,
	StatusSigned,
	StatusDepositPaid,
}

func CanTransition(from, to QuoteStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s QuoteStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusSigned, StatusDepositPaid, StatusCompleted, StatusCanceled:
		return true
	default:
		return false
	}
}

func (s QuoteStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Editable reports whether lines, totals and deposit percent may change.
func (s QuoteStatus) Editable() bool {
	return s == StatusDraft
}

func (s QuoteStatus) Signable() bool {
	return CanTransition(s, StatusSigned)
}

func StatusStrings(statuses []QuoteStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}
