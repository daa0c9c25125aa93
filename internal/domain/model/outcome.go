package model

// Reason classifies why a grant or event did not apply.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonRateLimited        Reason = "rate_limited"
	ReasonFeatureDisabled    Reason = "feature_disabled"
	ReasonSelfTarget         Reason = "self_target"
	ReasonBotTarget          Reason = "bot_target"
	ReasonExcludedChannel    Reason = "excluded_channel"
	ReasonPolicyUnavailable  Reason = "policy_unavailable"
	ReasonPersistenceFailure Reason = "persistence_failure"
	ReasonSinkFailure        Reason = "sink_failure"
)

// Expected reports whether r is a routine policy outcome rather than a fault.
func (r Reason) Expected() bool {
	switch r {
	case ReasonRateLimited, ReasonFeatureDisabled, ReasonSelfTarget, ReasonBotTarget, ReasonExcludedChannel:
		return true
	default:
		return false
	}
}

// RepResult is the outcome of a reputation grant.
type RepResult struct {
	Applied    bool
	Reason     Reason
	GiverID    string
	ReceiverID string
	Source     GrantSource
	NewScore   int64
	Rewards    []Reward
	Err        error
}

// XPResult is the outcome of an experience grant.
type XPResult struct {
	Applied   bool
	Reason    Reason
	UserID    string
	Gained    int64
	NewXP     int64
	OldLevel  int
	NewLevel  int
	LeveledUp bool
	Rewards   []Reward
	Err       error
}

// Verdict is the terminal state of hashtag enforcement.
type Verdict string

const (
	VerdictIgnored  Verdict = "ignored"
	VerdictAccepted Verdict = "accepted"
	VerdictRejected Verdict = "rejected"
)
