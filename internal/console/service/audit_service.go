package service

import (
	"context"

	"github.com/xela07ax/agentops-console/internal/audit"
)

// EventProvider — чтение трейла для админки.
type EventProvider interface {
	ListEvents(ctx context.Context, agentID, kind string) ([]audit.Event, error)
}

type AuditService struct {
	repo EventProvider
}

func NewAuditService(repo EventProvider) *AuditService {
	return &AuditService{repo: repo}
}

// FetchLogs возвращает события трейла с фильтрами по агенту и типу.
func (s *AuditService) FetchLogs(ctx context.Context, agentID, kind string) ([]audit.Event, error) {
	events, err := s.repo.ListEvents(ctx, agentID, kind)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []audit.Event{}
	}
	return events, nil
}
