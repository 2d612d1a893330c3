package coordinator

import (
	"context"

	"github.com/mvandermade/poolkeeper/internal/poolcore"
)

type eventKind int

const (
	evCheckoutReq eventKind = iota
	evWorkReq
	evCheckin
	evCancel
	evClientDown
	evWorkerExit
	evStatusQuery
	evStop
)

// checkoutResult is delivered on a checkout request's reply channel.
type checkoutResult[MSG any, REPLY any] struct {
	handle *poolcore.Handle[MSG, REPLY]
	err    error
}

// workResult is delivered on a work request's reply channel, either by the
// coordinator itself (FULL, spawn failure, pool stopped, cancellation) or by the
// worker's own Reply closure once it has produced an answer.
type workResult[REPLY any] struct {
	reply REPLY
	err   error
}

// event is the single tagged-union message type sent through the
// coordinator's inbox. Only the fields relevant to kind are populated by the
// sender; handlers read only the fields their kind defines.
type event[MSG any, REPLY any] struct {
	kind eventKind

	clientRef     poolcore.CancelToken
	livenessToken poolcore.MonitorToken
	block         bool
	msg           MSG

	worker *poolcore.Handle[MSG, REPLY]

	checkoutReply chan checkoutResult[MSG, REPLY]
	workReply     chan workResult[REPLY]
	statusReply   chan Status
	stopReply     chan struct{}

	ctx context.Context
}
