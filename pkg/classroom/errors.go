package classroom

import (
	"errors"

	errors2 "github.com/LingByte/EchoClass/pkg/errors"
	"github.com/LingByte/EchoClass/pkg/mixer"
)

var (
	ErrDuplicateRoom       = errors.New("room already open")
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomClosed          = errors.New("room closed")
	ErrRoomFull            = errors.New("room is full")
	ErrUnknownParticipant  = errors.New("unknown participant")
	ErrParticipantConflict = errors.New("participant is live in another room")
	ErrNegotiationConflict = errors.New("negotiation conflict")
	ErrTransportFailure    = errors.New("transport failure")
	ErrMediaUnavailable    = errors.New("media unavailable")
	ErrSelfEdge            = errors.New("forward edge source equals target")
	ErrEdgeNotFound        = errors.New("forward edge not found")
)

var errorCodes = []struct {
	err  error
	code errors2.ErrorCode
}{
	{ErrDuplicateRoom, errors2.ErrCodeDuplicateRoom},
	{ErrRoomNotFound, errors2.ErrCodeRoomNotFound},
	{ErrRoomClosed, errors2.ErrCodeRoomClosed},
	{ErrRoomFull, errors2.ErrCodeRoomFull},
	{ErrUnknownParticipant, errors2.ErrCodeUnknownParticipant},
	{ErrParticipantConflict, errors2.ErrCodeParticipantConflict},
	{ErrNegotiationConflict, errors2.ErrCodeNegotiationConflict},
	{ErrTransportFailure, errors2.ErrCodeTransportFailure},
	{ErrMediaUnavailable, errors2.ErrCodeMediaUnavailable},
	{ErrEdgeNotFound, errors2.ErrCodeNotFound},
	{ErrSelfEdge, errors2.ErrCodeInvalidInput},
	{mixer.ErrNegativeGain, errors2.ErrCodeInvalidInput},
}

// ToAppError maps a coordinator error onto the application error taxonomy.
// The original error stays reachable through Unwrap.
func ToAppError(err error) *errors2.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := errors2.AsAppError(err); ok {
		return appErr
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return errors2.WrapError(ec.code, err)
		}
	}
	return errors2.WrapError(errors2.ErrCodeInternal, err)
}
