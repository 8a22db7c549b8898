package service

import (
	"context"
	"errors"

	"github.com/rf-checker/rf-checker-go/internal/domain"
)

// check outcomes
const (
	CheckSuccess = "success"
	CheckInvalid = "invalid"
	CheckFailed  = "failed"
)

// CheckObserver counts check outcomes
type CheckObserver interface {
	RecordCheck(status string, flagged int)
}

type instrumented struct {
	CheckService
	observer CheckObserver
}

// Instrument reports every Check of svc to o.
func Instrument(svc CheckService, o CheckObserver) CheckService {
	if o == nil {
		return svc
	}
	return &instrumented{CheckService: svc, observer: o}
}

func (s *instrumented) Check(ctx context.Context, req *CheckRequest) (*CheckResponse, error) {
	resp, err := s.CheckService.Check(ctx, req)
	switch {
	case errors.Is(err, ErrInvalidRequest):
		s.observer.RecordCheck(CheckInvalid, 0)
	case err != nil:
		s.observer.RecordCheck(CheckFailed, 0)
	default:
		s.observer.RecordCheck(CheckSuccess, countFlagged(resp.URLsMetadata))
	}
	return resp, err
}

func (s *instrumented) Probe(ctx context.Context, urls []string) ([]*domain.DomainProbeResult, error) {
	return s.CheckService.Probe(ctx, urls)
}
