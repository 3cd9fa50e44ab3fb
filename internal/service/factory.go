package service

import (
	"musky.app/forecast/internal/queue"
)

type Services struct {
	gen        Generator
	sched      Scheduler
	producer   queue.Producer
	retainDays int
}

func NewServices(gen Generator, sched Scheduler, producer queue.Producer, retainDays int) *Services {
	return &Services{
		gen:        gen,
		sched:      sched,
		producer:   producer,
		retainDays: retainDays,
	}
}

func (s *Services) Reports() ReportService {
	return NewReportService(s.gen, s.retainDays)
}

func (s *Services) Admin() AdminService {
	return NewAdminService(s.gen, s.sched, s.producer, s.retainDays)
}
