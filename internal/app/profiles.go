package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/apuctl/apuctl/internal/domain"
	"github.com/apuctl/apuctl/internal/session"
)

// ProfileStore persists profiles and the apply history.
// Satisfied by *sqlite.DB.
type ProfileStore interface {
	UpsertProfile(p domain.Profile) error
	GetProfile(name string) (*domain.Profile, error)
	ListProfiles() ([]domain.Profile, error)
	DeleteProfile(name string) error
	InsertApplyRecord(r domain.ApplyRecord) (string, error)
	ApplyHistory(limit int) ([]domain.ApplyRecord, error)
}

// Applier writes a batch of limits. Satisfied by *session.Manager.
type Applier interface {
	ApplyProfile(ctx context.Context, settings map[string]uint32) (session.ApplyReport, error)
}

// ProfileService manages saved profiles and applies them to the device,
// recording every run in the history.
type ProfileService struct {
	store ProfileStore
	dev   Applier
	log   *slog.Logger
}

// NewProfileService creates the service. dev may be nil for commands that
// only manage the store.
func NewProfileService(store ProfileStore, dev Applier, log *slog.Logger) *ProfileService {
	if log == nil {
		log = slog.Default()
	}
	return &ProfileService{store: store, dev: dev, log: log.With("component", "profiles")}
}

// Save validates and stores p, replacing any profile of the same name.
func (s *ProfileService) Save(p domain.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.store.UpsertProfile(p)
}

// Get returns the named profile.
func (s *ProfileService) Get(name string) (domain.Profile, error) {
	p, err := s.store.GetProfile(name)
	if err != nil {
		return domain.Profile{}, err
	}
	return *p, nil
}

// List returns all profiles by name.
func (s *ProfileService) List() ([]domain.Profile, error) {
	return s.store.ListProfiles()
}

// Delete removes the named profile.
func (s *ProfileService) Delete(name string) error {
	return s.store.DeleteProfile(name)
}

// History returns recent apply runs, newest first.
func (s *ProfileService) History(limit int) ([]domain.ApplyRecord, error) {
	return s.store.ApplyHistory(limit)
}

// Import reads a profile file and saves it.
func (s *ProfileService) Import(path string) (domain.Profile, error) {
	p, err := ReadProfileFile(path)
	if err != nil {
		return p, err
	}
	return p, s.Save(p)
}

// Export writes the named profile to path.
func (s *ProfileService) Export(name, path string) error {
	p, err := s.Get(name)
	if err != nil {
		return err
	}
	return WriteProfileFile(path, p)
}

// ApplyNamed applies a stored profile.
func (s *ProfileService) ApplyNamed(ctx context.Context, name string) (domain.ApplyRecord, error) {
	p, err := s.Get(name)
	if err != nil {
		return domain.ApplyRecord{}, err
	}
	return s.Apply(ctx, p)
}

// Apply validates p, writes it to the device and records the outcome.
// A partial failure is recorded with the writes that went through.
func (s *ProfileService) Apply(ctx context.Context, p domain.Profile) (domain.ApplyRecord, error) {
	if s.dev == nil {
		return domain.ApplyRecord{}, &domain.OpError{Op: "apply", Err: domain.ErrSessionClosed}
	}
	if err := p.Validate(); err != nil {
		return domain.ApplyRecord{}, err
	}

	rec := domain.ApplyRecord{Profile: p.Name, AppliedAt: time.Now()}
	report, applyErr := s.dev.ApplyProfile(ctx, p.Settings)
	rec.Applied = report.Applied
	if applyErr != nil {
		rec.Error = applyErr.Error()
		var ae *session.ApplyError
		if errors.As(applyErr, &ae) {
			rec.FailedParam = ae.Param
		}
	}

	id, err := s.store.InsertApplyRecord(rec)
	if err != nil {
		s.log.Error("record apply history", "profile", p.Name, "err", err)
	}
	rec.ID = id

	if applyErr != nil {
		return rec, applyErr
	}
	s.log.Info("profile applied", "profile", p.Name, "writes", len(rec.Applied))
	return rec, nil
}
