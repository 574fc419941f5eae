// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"codeberg.org/oliverandrich/medivault/internal/models"
	"codeberg.org/oliverandrich/medivault/internal/services/email"
)

// ErrFakeDelivery is returned by FakeMailer when Fail is set.
var ErrFakeDelivery = errors.New("smtp: connection refused")

// SentOTP is a code captured by FakeMailer.
type SentOTP struct {
	To      string
	Code    string
	Purpose models.OTPPurpose
}

// SentInvitation is an invitation captured by FakeMailer.
type SentInvitation struct {
	To         string
	Invitation email.Invitation
}

// FakeMailer records outgoing mail instead of sending it.
type FakeMailer struct {
	mu          sync.Mutex
	Fail        bool
	OTPs        []SentOTP
	Invitations []SentInvitation
}

func (m *FakeMailer) SendOTP(_ context.Context, to, code string, purpose models.OTPPurpose, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return ErrFakeDelivery
	}
	m.OTPs = append(m.OTPs, SentOTP{To: to, Code: code, Purpose: purpose})
	return nil
}

func (m *FakeMailer) SendInvitation(_ context.Context, to string, inv email.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return ErrFakeDelivery
	}
	m.Invitations = append(m.Invitations, SentInvitation{To: to, Invitation: inv})
	return nil
}

// LastCode returns the most recent code sent to the address.
func (m *FakeMailer) LastCode(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.OTPs) - 1; i >= 0; i-- {
		if m.OTPs[i].To == to {
			return m.OTPs[i].Code
		}
	}
	return ""
}

// LastInvitation returns the most recent invitation, if any.
func (m *FakeMailer) LastInvitation() (SentInvitation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Invitations) == 0 {
		return SentInvitation{}, false
	}
	return m.Invitations[len(m.Invitations)-1], true
}

// FakeStore keeps objects in memory.
type FakeStore struct {
	mu      sync.Mutex
	Objects map[string][]byte
	Types   map[string]string
	Fail    error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		Objects: make(map[string][]byte),
		Types:   make(map[string]string),
	}
}

func (s *FakeStore) Put(_ context.Context, key string, body io.Reader, contentType string) error {
	if s.Fail != nil {
		return s.Fail
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Objects[key] = data
	s.Types[key] = contentType
	return nil
}

func (s *FakeStore) PresignGet(_ context.Context, key, _ string, ttl time.Duration) (string, error) {
	if s.Fail != nil {
		return "", s.Fail
	}
	return fmt.Sprintf("https://storage.test/%s?expires=%d", key, int(ttl.Seconds())), nil
}

func (s *FakeStore) Delete(_ context.Context, key string) error {
	if s.Fail != nil {
		return s.Fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Objects, key)
	delete(s.Types, key)
	return nil
}

// Has reports whether an object is stored under key.
func (s *FakeStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.Objects[key]
	return ok
}
