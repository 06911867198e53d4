package jobs

type JobType string

const (
	JobEnrollmentConfirmation JobType = "enrollment.confirmation"
)

// check to see if the job type is a known constant

func (t JobType) IsValid() bool {
	switch t {
	case JobEnrollmentConfirmation:
		return true
	default:
		return false
	}
}
