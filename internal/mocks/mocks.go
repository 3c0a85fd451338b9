// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/marketpilot/api/schemas"
)

// -- Inbox Mock --

// MockInbox mocks schemas.Inbox.
type MockInbox struct {
	mock.Mock
}

var _ schemas.Inbox = (*MockInbox)(nil)

func (m *MockInbox) ListConversations(ctx context.Context, mode schemas.ListMode) ([]schemas.Candidate, error) {
	args := m.Called(ctx, mode)
	var out []schemas.Candidate
	if v := args.Get(0); v != nil {
		out = v.([]schemas.Candidate)
	}
	return out, args.Error(1)
}

func (m *MockInbox) OpenConversation(ctx context.Context, candidate schemas.Candidate) error {
	return m.Called(ctx, candidate).Error(0)
}

func (m *MockInbox) ReadLastMessage(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockInbox) ReadThreadMetadata(ctx context.Context) (schemas.ThreadMetadata, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.ThreadMetadata), args.Error(1)
}

func (m *MockInbox) TypeAndSend(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

// -- Form Driver Mock --

// MockFormDriver mocks schemas.FormDriver.
type MockFormDriver struct {
	mock.Mock
}

var _ schemas.FormDriver = (*MockFormDriver)(nil)

func (m *MockFormDriver) OpenCreateForm(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockFormDriver) FillField(ctx context.Context, kind schemas.FieldKind, value string) error {
	return m.Called(ctx, kind, value).Error(0)
}

func (m *MockFormDriver) UploadFiles(ctx context.Context, paths []string) error {
	return m.Called(ctx, paths).Error(0)
}

func (m *MockFormDriver) AdvancePage(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockFormDriver) Publish(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- Authenticator Mock --

// MockAuthenticator mocks schemas.Authenticator.
type MockAuthenticator struct {
	mock.Mock
}

var _ schemas.Authenticator = (*MockAuthenticator)(nil)

func (m *MockAuthenticator) Login(ctx context.Context, email, password string) (bool, error) {
	args := m.Called(ctx, email, password)
	return args.Bool(0), args.Error(1)
}
