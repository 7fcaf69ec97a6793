// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package station

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielhkuo/quickly-tally/models"
	"github.com/danielhkuo/quickly-tally/store"
)

// Register creates a contributor profile for uid.
func (s *Service) Register(ctx context.Context, uid, name, email string) (*models.Profile, error) {
	if uid == "" || name == "" {
		return nil, fmt.Errorf("%w: uid and name are required", ErrInvalid)
	}
	p := models.NewProfile(uid, name, email, s.now().UnixMilli())
	err := s.store.Update(ctx, func(txn store.Txn) error {
		if err := txn.Create(store.ProfileKey(uid), p); err != nil {
			if errors.Is(err, store.ErrExists) {
				return fmt.Errorf("%w: actor %q", ErrDuplicate, uid)
			}
			return err
		}
		return writeActor(txn, p, models.StatsFromProfile(p))
	})
	if err != nil {
		s.metrics.Mutation("register", "rejected")
		return nil, err
	}
	s.metrics.Mutation("register", "ok")
	s.logger.Info("actor registered", "uid", uid)
	return p, nil
}

// Profile returns the stored profile and statistics of uid.
func (s *Service) Profile(ctx context.Context, uid string) (*models.Profile, models.Stats, error) {
	var p *models.Profile
	var st models.Stats
	err := s.store.View(ctx, func(txn store.Txn) error {
		var err error
		p, st, err = readActor(txn, uid, models.RoleBanned)
		return err
	})
	if errors.Is(err, ErrUnauthenticated) {
		return nil, st, fmt.Errorf("%w: actor %q", ErrNotFound, uid)
	}
	return p, st, err
}

// SetRole lets an admin change the role of uid. Nobody may grant a role
// above their own.
func (s *Service) SetRole(ctx context.Context, adminUID, uid string, role models.Role) error {
	err := s.store.Update(ctx, func(txn store.Txn) error {
		admin, _, err := readActor(txn, adminUID, models.RoleAdmin)
		if err != nil {
			return err
		}
		if role > admin.Role {
			return fmt.Errorf("%w: %q may not grant %s", ErrForbidden, adminUID, role)
		}
		return setRole(txn, uid, role)
	})
	s.roleChanged(adminUID, uid, role, err)
	return err
}

// GrantRole changes the role of uid without an acting admin. It backs the
// operator command line.
func (s *Service) GrantRole(ctx context.Context, uid string, role models.Role) error {
	err := s.store.Update(ctx, func(txn store.Txn) error {
		return setRole(txn, uid, role)
	})
	s.roleChanged("", uid, role, err)
	return err
}

func (s *Service) roleChanged(adminUID, uid string, role models.Role, err error) {
	if err != nil {
		s.metrics.Mutation("set_role", "rejected")
		s.logger.Warn("role change refused", "admin", adminUID, "uid", uid, "role", role.String(), "error", err)
		return
	}
	s.metrics.Mutation("set_role", "ok")
	s.logger.Info("role changed", "admin", adminUID, "uid", uid, "role", role.String())
}

func setRole(txn store.Txn, uid string, role models.Role) error {
	if role < models.RoleBanned || role > models.RoleRoot {
		return fmt.Errorf("%w: role %d", ErrInvalid, role)
	}
	p := &models.Profile{}
	found, err := txn.Get(store.ProfileKey(uid), p)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: actor %q", ErrNotFound, uid)
	}
	p.Role = role
	return txn.Put(store.ProfileKey(uid), p)
}

// ResetStats backs the profile of uid up and clears its upload, review and
// dispute history together with the matching rate-limit counters. Guard
// claims are kept.
func (s *Service) ResetStats(ctx context.Context, uid string) (*models.Profile, error) {
	var p *models.Profile
	err := s.store.Update(ctx, func(txn store.Txn) error {
		var st models.Stats
		var err error
		p, st, err = readActor(txn, uid, models.RoleBanned)
		if err != nil {
			return err
		}
		if err := txn.Put(store.Key{Collection: store.Backups, ID: uid}, p); err != nil {
			return err
		}

		p.Uploads = map[string][]string{}
		p.UploadCount = 0
		p.UploadMaxCount = models.DefaultMaxUploads
		p.UploadRemaining = models.DefaultMaxUploads
		p.Reviews = map[string]int{}
		p.ReviewCount = 0
		p.Disputes = map[string]models.DisputeRequest{}
		p.DisputeCount = 0
		p.DisputeMaxCount = models.DefaultMaxDisputes
		p.DisputeRemaining = models.DefaultMaxDisputes

		st.UploadCount, st.ReviewCount, st.DisputeCount = 0, 0, 0
		st.UploadMaxCount = models.DefaultMaxUploads
		st.DisputeMaxCount = models.DefaultMaxDisputes
		return writeActor(txn, p, st)
	})
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			err = fmt.Errorf("%w: actor %q", ErrNotFound, uid)
		}
		return nil, err
	}
	s.metrics.Mutation("reset_stats", "ok")
	s.logger.Info("actor statistics reset", "uid", uid)
	return p, nil
}
