package subscription

// lifecycleState is the state of one local subscription record.
type lifecycleState int

const (
	stateNoRecord lifecycleState = iota
	stateActive
	stateCanceled
)

func (s lifecycleState) String() string {
	switch s {
	case stateActive:
		return "active"
	case stateCanceled:
		return "canceled"
	default:
		return "no-record"
	}
}

func stateOf(sub *Subscription) lifecycleState {
	switch {
	case sub == nil:
		return stateNoRecord
	case sub.Active:
		return stateActive
	default:
		return stateCanceled
	}
}

// transition is the action taken for an event in a given state.
type transition int

const (
	doNothing transition = iota
	doReject
	doUpsert
	doDeactivate
	doOpenWindow
)

// lifecycle maps (state, event) to a transition. Missing pairs are no-ops.
var lifecycle = map[lifecycleState]map[EventKind]transition{
	stateNoRecord: {
		KindSubscriptionCreated: doUpsert,
		KindSubscriptionUpdated: doUpsert,
		KindSubscriptionDeleted: doReject,
		KindPaymentSucceeded:    doReject,
		KindPaymentFailed:       doNothing,
	},
	stateActive: {
		KindSubscriptionCreated: doUpsert,
		KindSubscriptionUpdated: doUpsert,
		KindSubscriptionDeleted: doDeactivate,
		KindPaymentSucceeded:    doOpenWindow,
		KindPaymentFailed:       doNothing,
	},
	stateCanceled: {
		KindSubscriptionCreated: doUpsert,
		KindSubscriptionUpdated: doUpsert,
		KindSubscriptionDeleted: doNothing,
		KindPaymentSucceeded:    doOpenWindow,
		KindPaymentFailed:       doNothing,
	},
}

func nextTransition(state lifecycleState, kind EventKind) transition {
	return lifecycle[state][kind]
}
