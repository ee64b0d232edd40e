package domain

// ApplyFlow classifies a clicked control
type ApplyFlow string

const (
	FlowNone          ApplyFlow = ""
	FlowEasyApply     ApplyFlow = "EASY_APPLY"
	FlowSubmit        ApplyFlow = "SUBMIT"
	FlowExternalApply ApplyFlow = "EXTERNAL_APPLY"
	FlowDirectApply   ApplyFlow = "DIRECT_APPLY"
)

func (f ApplyFlow) String() string {
	if f == FlowNone {
		return "NONE"
	}
	return string(f)
}

// Application status values accepted by the backend
const (
	StatusApplied   = "APPLIED"
	StatusInterview = "INTERVIEW"
	StatusOffer     = "OFFER"
	StatusRejected  = "REJECTED"
)

// IsValidStatus reports whether s is one of the backend status values
func IsValidStatus(s string) bool {
	switch s {
	case StatusApplied, StatusInterview, StatusOffer, StatusRejected:
		return true
	}
	return false
}
