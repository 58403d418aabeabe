package links

import "time"

// Stage is a delivery-to-completion milestone.
type Stage string

const (
	StageNone         Stage = ""
	StageSent         Stage = "sent"
	StageDelivered    Stage = "delivered"
	StageOpened       Stage = "opened"
	StageJobStarted   Stage = "job_started"
	StageJobCompleted Stage = "job_completed"
	StageReportSent   Stage = "report_sent"
)

// stageOrder is the total order over stages.
var stageOrder = map[Stage]int{
	StageNone:         0,
	StageSent:         1,
	StageDelivered:    2,
	StageOpened:       3,
	StageJobStarted:   4,
	StageJobCompleted: 5,
	StageReportSent:   6,
}

// ParseStage returns the Stage named s. StageNone is not a valid target.
func ParseStage(s string) (Stage, bool) {
	st := Stage(s)
	if st == StageNone {
		return StageNone, false
	}
	_, ok := stageOrder[st]
	return st, ok
}

// Rank returns the position of s in the stage order.
func (s Stage) Rank() int {
	return stageOrder[s]
}

// CanAdvanceTo reports whether a link at current may move to requested.
// Stages may be skipped but never revisited.
func CanAdvanceTo(current, requested Stage) bool {
	if _, ok := stageOrder[requested]; !ok || requested == StageNone {
		return false
	}
	return requested.Rank() > current.Rank()
}

// StageTime returns the timestamp recorded for stage, or nil.
func (l *MagicLink) StageTime(stage Stage) *time.Time {
	switch stage {
	case StageSent:
		return l.SentAt
	case StageDelivered:
		return l.DeliveredAt
	case StageOpened:
		return l.OpenedAt
	case StageJobStarted:
		return l.JobStartedAt
	case StageJobCompleted:
		return l.JobCompletedAt
	case StageReportSent:
		return l.ReportSentAt
	}
	return nil
}

func (l *MagicLink) setStageTime(stage Stage, at time.Time) {
	p := timePtr(at)
	switch stage {
	case StageSent:
		l.SentAt = p
	case StageDelivered:
		l.DeliveredAt = p
	case StageOpened:
		l.OpenedAt = p
	case StageJobStarted:
		l.JobStartedAt = p
	case StageJobCompleted:
		l.JobCompletedAt = p
	case StageReportSent:
		l.ReportSentAt = p
	}
}
