package service_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/domain"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetByID(ctx context.Context, id string) (*domain.InvoiceReceived, error) {
	args := m.Called(ctx, id)
	inv, _ := args.Get(0).(*domain.InvoiceReceived)
	return inv, args.Error(1)
}

func (m *mockStore) UpdateApprovalState(ctx context.Context, id string, upd domain.ApprovalUpdate) (*domain.InvoiceReceived, error) {
	args := m.Called(ctx, id, upd)
	inv, _ := args.Get(0).(*domain.InvoiceReceived)
	return inv, args.Error(1)
}

func (m *mockStore) SubmitForApproval(ctx context.Context, id string, upd domain.SubmissionUpdate) (*domain.InvoiceReceived, error) {
	args := m.Called(ctx, id, upd)
	inv, _ := args.Get(0).(*domain.InvoiceReceived)
	return inv, args.Error(1)
}

func (m *mockStore) ApplyExtraction(ctx context.Context, id string, p domain.ExtractionProjection) (*domain.InvoiceReceived, error) {
	args := m.Called(ctx, id, p)
	inv, _ := args.Get(0).(*domain.InvoiceReceived)
	return inv, args.Error(1)
}

func (m *mockStore) GetApprovalHistory(ctx context.Context, invoiceID string) ([]*domain.Approval, error) {
	args := m.Called(ctx, invoiceID)
	h, _ := args.Get(0).([]*domain.Approval)
	return h, args.Error(1)
}

func (m *mockStore) ListPendingApprovals(ctx context.Context, filter domain.PendingFilter) ([]*domain.InvoiceReceived, error) {
	args := m.Called(ctx, filter)
	invs, _ := args.Get(0).([]*domain.InvoiceReceived)
	return invs, args.Error(1)
}

type mockRules struct {
	mock.Mock
}

func (m *mockRules) GetApprovalRules(ctx context.Context, centreCode *string) ([]domain.ApprovalRule, error) {
	args := m.Called(ctx, centreCode)
	rules, _ := args.Get(0).([]domain.ApprovalRule)
	return rules, args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) PublishInvoiceEvent(ctx context.Context, eventType string, invoice *domain.InvoiceReceived, actorID string, payload map[string]interface{}) {
	m.Called(ctx, eventType, invoice, actorID, payload)
}
