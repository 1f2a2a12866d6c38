package campaigns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dialer-platform/internal/queue"
	"dialer-platform/internal/scheduler"

	"github.com/google/uuid"
)

// Submitter is the admission front door; *scheduler.Service satisfies it.
type Submitter interface {
	Submit(ctx context.Context, req scheduler.SubmitRequest) (scheduler.Submission, error)
}

// Service owns the campaign registry and the bulk dialing path. A campaign
// holds no destination list of its own: Activate receives the numbers and
// feeds them through admission one by one, so campaign traffic obeys the
// same capacity rules as direct calls.
type Service struct {
	repo      Repository
	submitter Submitter

	clock func() time.Time
	newID func() string
	log   *slog.Logger
}

func NewService(repo Repository, submitter Submitter, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:      repo,
		submitter: submitter,
		clock:     time.Now,
		newID:     uuid.NewString,
		log:       log,
	}
}

// Create registers a campaign. New campaigns start active.
func (s *Service) Create(ctx context.Context, userID, agentID, name string) (Campaign, error) {
	if userID == "" || agentID == "" || name == "" {
		return Campaign{}, fmt.Errorf("%w: user id, agent id and name required", ErrInvalidArgument)
	}
	now := s.clock().UTC()
	c := Campaign{
		ID:        s.newID(),
		UserID:    userID,
		AgentID:   agentID,
		Name:      name,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		return Campaign{}, fmt.Errorf("insert campaign: %w", err)
	}
	s.log.Info("campaign created", "campaign_id", c.ID, "user_id", userID, "name", name)
	return c, nil
}

// Get returns a campaign the user owns. Foreign campaigns look absent.
func (s *Service) Get(ctx context.Context, userID, campaignID string) (Campaign, error) {
	if userID == "" || campaignID == "" {
		return Campaign{}, fmt.Errorf("%w: user id and campaign id required", ErrInvalidArgument)
	}
	c, err := s.repo.Get(ctx, campaignID)
	if err != nil {
		return Campaign{}, err
	}
	if c.UserID != userID {
		return Campaign{}, ErrNotFound
	}
	return c, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]Campaign, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidArgument)
	}
	return s.repo.ListByUser(ctx, userID)
}

// Activate submits a batch of destinations as campaign jobs.
//
// Each destination goes through the scheduler individually: some may be
// admitted on the spot, the rest queue behind capacity. A malformed number
// is rejected in the report and the batch continues; any other submit
// failure aborts the batch and returns the partial report alongside the
// error. The campaign's status is re-read before every submit, so a pause
// takes effect mid-batch.
func (s *Service) Activate(ctx context.Context, userID, campaignID string, destinations []string) (ActivationReport, error) {
	if userID == "" || campaignID == "" {
		return ActivationReport{}, fmt.Errorf("%w: user id and campaign id required", ErrInvalidArgument)
	}
	if len(destinations) == 0 {
		return ActivationReport{}, fmt.Errorf("%w: at least one destination required", ErrInvalidArgument)
	}

	c, err := s.Get(ctx, userID, campaignID)
	if err != nil {
		return ActivationReport{}, err
	}
	if c.Status == StatusPaused {
		return ActivationReport{}, ErrPaused
	}

	report := ActivationReport{
		CampaignID: campaignID,
		Requested:  len(destinations),
		Outcomes:   make([]DestinationOutcome, 0, len(destinations)),
	}

	for i, dest := range destinations {
		if err := ctx.Err(); err != nil {
			s.skipRemaining(&report, destinations[i:], "activation canceled")
			return report, err
		}
		if i > 0 {
			cur, err := s.repo.Get(ctx, campaignID)
			if err != nil {
				return report, fmt.Errorf("re-read campaign: %w", err)
			}
			if cur.Status == StatusPaused {
				s.skipRemaining(&report, destinations[i:], "campaign paused")
				s.log.Info("activation stopped by pause",
					"campaign_id", campaignID, "submitted", i, "skipped", len(destinations)-i)
				return report, nil
			}
		}

		sub, err := s.submitter.Submit(ctx, scheduler.SubmitRequest{
			UserID:      userID,
			Kind:        queue.KindCampaign,
			AgentID:     c.AgentID,
			Destination: dest,
			CampaignID:  campaignID,
		})
		switch {
		case err == nil:
			report.Outcomes = append(report.Outcomes, DestinationOutcome{
				Destination: dest,
				JobID:       sub.JobID,
				Disposition: string(sub.Disposition),
			})
			if sub.Disposition == scheduler.DispositionAdmitted {
				report.Admitted++
			} else {
				report.Queued++
			}
		case errors.Is(err, scheduler.ErrInvalidJob):
			// One bad number must not sink the batch.
			report.Rejected++
			report.Outcomes = append(report.Outcomes, DestinationOutcome{
				Destination: dest,
				Disposition: dispositionRejected,
				Error:       err.Error(),
			})
		default:
			// Credit or infrastructure failures hit every later destination
			// the same way; stop instead of grinding through them.
			s.skipRemaining(&report, destinations[i+1:], "batch aborted")
			return report, fmt.Errorf("submit %s: %w", dest, err)
		}
	}

	s.log.Info("campaign activated",
		"campaign_id", campaignID, "user_id", userID,
		"requested", report.Requested, "admitted", report.Admitted,
		"queued", report.Queued, "rejected", report.Rejected)
	return report, nil
}

// Pause stops the campaign from producing new jobs. Jobs already queued or
// dialing are untouched; cancel them individually if needed.
func (s *Service) Pause(ctx context.Context, userID, campaignID string) (Campaign, error) {
	return s.setStatus(ctx, userID, campaignID, StatusPaused)
}

// Resume re-enables activation for a paused campaign.
func (s *Service) Resume(ctx context.Context, userID, campaignID string) (Campaign, error) {
	return s.setStatus(ctx, userID, campaignID, StatusActive)
}

func (s *Service) setStatus(ctx context.Context, userID, campaignID string, status Status) (Campaign, error) {
	c, err := s.Get(ctx, userID, campaignID)
	if err != nil {
		return Campaign{}, err
	}
	if c.Status == status {
		return c, nil
	}
	now := s.clock().UTC()
	if err := s.repo.SetStatus(ctx, campaignID, status, now); err != nil {
		return Campaign{}, err
	}
	c.Status = status
	c.UpdatedAt = now
	s.log.Info("campaign status changed", "campaign_id", campaignID, "user_id", userID, "status", status)
	return c, nil
}

func (s *Service) skipRemaining(report *ActivationReport, rest []string, note string) {
	for _, dest := range rest {
		report.Skipped++
		report.Outcomes = append(report.Outcomes, DestinationOutcome{
			Destination: dest,
			Disposition: dispositionSkipped,
			Error:       note,
		})
	}
}
