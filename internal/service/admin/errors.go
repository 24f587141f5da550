package admin

import "errors"

var (
	ErrNoTiers         = errors.New("event needs at least one ticket tier")
	ErrInvalidTier     = errors.New("invalid ticket tier")
	ErrInvalidSchedule = errors.New("event must end after it starts")
)
