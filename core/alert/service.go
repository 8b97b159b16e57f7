package alert

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/mawazo/studytrack/core"
	"github.com/mawazo/studytrack/core/roadmap"
	"github.com/mawazo/studytrack/core/study"
	"github.com/mawazo/studytrack/core/user"
)

const (
	defaultQueryLimit = 50
	digestMaxAlerts   = 10
)

var ErrNotFound = errors.New("alert not found")

type (
	Repository interface {
		CreateAlert(ctx context.Context, al ProgressAlert) (ProgressAlert, error)
		GetAlertByID(ctx context.Context, id string) (ProgressAlert, error)
		// QueryAlerts lists a parent's alerts, newest first.
		QueryAlerts(ctx context.Context, parentID string, filter QueryFilter) ([]ProgressAlert, error)
		// HasAlert reports whether an alert matching m exists.
		HasAlert(ctx context.Context, m Match) (bool, error)
		CountUnreadAlerts(ctx context.Context, parentID string) (int, error)
		MarkAlertRead(ctx context.Context, id string, at time.Time) error
		MarkAllAlertsRead(ctx context.Context, parentID string, at time.Time) error
		// QueryUnsentAlerts lists a parent's undispatched alerts, newest first.
		QueryUnsentAlerts(ctx context.Context, parentID string) ([]ProgressAlert, error)
		MarkAlertsSent(ctx context.Context, at time.Time, ids ...string) error
	}

	Service struct {
		conf       *core.Config
		repo       Repository
		userSvc    *user.Service
		studySvc   *study.Service
		roadmapSvc *roadmap.Service
		mailSvc    core.EmailService
		logger     core.Logger
	}
)

func NewService(
	conf *core.Config,
	repo Repository,
	userSvc *user.Service,
	studySvc *study.Service,
	roadmapSvc *roadmap.Service,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		conf:       conf,
		repo:       repo,
		userSvc:    userSvc,
		studySvc:   studySvc,
		roadmapSvc: roadmapSvc,
		mailSvc:    mailSvc,
		logger:     logger,
	}
}

func (svc *Service) Query(ctx context.Context, parentID string, filter QueryFilter) ([]ProgressAlert, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > defaultQueryLimit {
		filter.Limit = defaultQueryLimit
	}
	return svc.repo.QueryAlerts(ctx, parentID, filter)
}

func (svc *Service) Get(ctx context.Context, id string) (ProgressAlert, error) {
	return svc.repo.GetAlertByID(ctx, id)
}

func (svc *Service) UnreadCount(ctx context.Context, parentID string) (int, error) {
	return svc.repo.CountUnreadAlerts(ctx, parentID)
}

func (svc *Service) MarkRead(ctx context.Context, id string) error {
	return svc.repo.MarkAlertRead(ctx, id, time.Now().UTC())
}

func (svc *Service) MarkAllRead(ctx context.Context, parentID string) error {
	return svc.repo.MarkAllAlertsRead(ctx, parentID, time.Now().UTC())
}

// SendEmails dispatches digest emails for every parent with unsent alerts,
// honouring their email and frequency preferences. A failure for one parent
// is logged and does not abort the run. Returns the number of emails sent.
func (svc *Service) SendEmails(ctx context.Context) (int, error) {
	parents, err := svc.parents(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	var sent int
	for _, parent := range parents {
		if !parent.EmailNotifications || parent.Email == "" {
			continue
		}
		if !frequencyDue(parent, now) {
			continue
		}
		n, err := svc.sendDigest(ctx, parent, now)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("alert: sending digest to %s: %v", parent.Email, err), err)
			continue
		}
		sent += n
	}
	return sent, nil
}

func (svc *Service) sendDigest(ctx context.Context, parent user.User, now time.Time) (int, error) {
	alerts, err := svc.repo.QueryUnsentAlerts(ctx, parent.ID)
	if err != nil {
		return 0, err
	}
	if len(alerts) == 0 {
		return 0, nil
	}

	digest := alerts
	if len(digest) > digestMaxAlerts {
		digest = digest[:digestMaxAlerts]
	}

	subject := fmt.Sprintf("Study Progress: %d New Alerts", len(alerts))
	if len(alerts) == 1 {
		subject = "Study Alert: " + alerts[0].Title
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: parent.Name, Address: parent.Email}},
		Subject:      subject,
		TemplateName: "progress-alert",
		TemplateData: map[string]interface{}{
			"Name":   parent.Name,
			"Alerts": digest,
			"Total":  len(alerts),
		},
	}
	if err = msg.Render(svc.conf); err != nil {
		return 0, errors.Wrap(err, "rendering digest")
	}
	svc.mailSvc.SendMessages(msg)

	ids := make([]string, len(alerts))
	for i, al := range alerts {
		ids[i] = al.ID
	}
	if err = svc.repo.MarkAlertsSent(ctx, now, ids...); err != nil {
		return 0, errors.Wrap(err, "marking alerts sent")
	}
	if err = svc.userSvc.SetLastAlertSent(ctx, parent.ID, now); err != nil {
		return 0, errors.Wrap(err, "stamping last alert sent")
	}
	return 1, nil
}

func (svc *Service) parents(ctx context.Context) ([]user.User, error) {
	users, err := svc.userSvc.QueryAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	var parents []user.User
	for _, usr := range users {
		if usr.IsActive && usr.IsParent() {
			parents = append(parents, usr)
		}
	}
	return parents, nil
}

// frequencyDue reports whether a parent's digest is due under their
// frequency preference.
func frequencyDue(parent user.User, now time.Time) bool {
	if parent.LastAlertSentAt.IsZero() {
		return true
	}
	switch parent.AlertPrefs.Frequency {
	case user.FrequencyDaily:
		return now.Sub(parent.LastAlertSentAt) >= 24*time.Hour
	case user.FrequencyWeekly:
		return now.Sub(parent.LastAlertSentAt) >= 7*24*time.Hour
	default: // immediate
		return true
	}
}
