package transfer

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/shopspring/decimal"
)

// loggingService decorates a transfer.Service with logging
type loggingService struct {
	logger log.Logger
	next   Service
}

// NewLoggingService returns a new instance of a logging Service
func NewLoggingService(logger log.Logger, s Service) Service {
	return &loggingService{
		next:   s,
		logger: logger,
	}
}

func (s *loggingService) Transfer(ctx context.Context, from, to int64, amount decimal.Decimal) (err error) {
	defer func(begin time.Time) {
		s.logger.Log(
			"method", "transfer",
			"from", from,
			"to", to,
			"amount", amount.String(),
			"took", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.Transfer(ctx, from, to, amount)
}
