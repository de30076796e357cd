package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/scc/scc/internal/platform/websocket"
)

var ErrNotFound = errors.New("task not found")

type Service struct {
	repo      Repository
	publisher websocket.EventPublisher
	logger    zerolog.Logger
}

func NewService(repo Repository, publisher websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger.With().Str("component", "tasks").Logger(),
	}
}

func (s *Service) Create(ctx context.Context, t *Task) (*Task, error) {
	if t.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if t.TaskType == "" {
		t.TaskType = TypeGeneral
	}
	if t.Priority == "" {
		t.Priority = PriorityNormal
	}
	t.Status = StatusPending
	if err := validateTaskFields(t.TaskType, t.Status, t.Priority); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info().Str("task_id", t.ID.String()).Str("task_type", t.TaskType).
		Str("priority", t.Priority).Msg("task created")
	s.publishTaskEvent(ctx, t, "created")
	return t, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	t, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *Service) List(ctx context.Context, filter Filter) ([]*Task, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Task{}
	}
	return items, nil
}

func (s *Service) ListByPatient(ctx context.Context, mrn, status string) ([]*Task, error) {
	return s.List(ctx, Filter{PatientMRN: mrn, Status: status, Limit: 200})
}

func (s *Service) ListByProcedure(ctx context.Context, procedureID uuid.UUID, status string) ([]*Task, error) {
	return s.List(ctx, Filter{ProcedureID: &procedureID, Status: status, Limit: 200})
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, u Update) (*Task, error) {
	if u.Empty() {
		return nil, fmt.Errorf("no fields to update")
	}
	taskType, status, priority := "", "", ""
	if u.TaskType != nil {
		taskType = *u.TaskType
	}
	if u.Status != nil {
		status = *u.Status
	}
	if u.Priority != nil {
		priority = *u.Priority
	}
	if err := validateTaskFields(taskType, status, priority); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, id, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publishTaskEvent(ctx, t, "updated")
	return t, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.repo.Delete(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID, completedBy, notes *string) (*Task, error) {
	if err := s.repo.Complete(ctx, id, completedBy, notes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publishTaskEvent(ctx, t, "completed")
	return t, nil
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.repo.Stats(ctx)
}

func validateTaskFields(taskType, status, priority string) error {
	if taskType != "" && !validTypes[taskType] {
		return fmt.Errorf("invalid task_type %q", taskType)
	}
	if status != "" && !validStatuses[status] {
		return fmt.Errorf("invalid status %q", status)
	}
	if priority != "" && !validPriorities[priority] {
		return fmt.Errorf("invalid priority %q", priority)
	}
	return nil
}

func (s *Service) publishTaskEvent(ctx context.Context, t *Task, state string) {
	if s.publisher == nil {
		return
	}
	topic := websocket.CaseTopic(t.ID.String())
	if t.PatientMRN != nil {
		topic = websocket.MRNTopic(*t.PatientMRN)
	}
	ev := websocket.NewEvent(websocket.EventTaskUpdate, topic, "task", t.ID.String(),
		map[string]string{"status": t.Status, "priority": t.Priority, "state": state})
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("task_id", t.ID.String()).Msg("task event publish failed")
	}
}
