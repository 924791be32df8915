// Package client holds the outbound side of the service: the NATS publisher
// for approval notifications, and ApprovalsGRPCClient, the typed caller of
// invoices.v1.ApprovalService kept next to the contract it speaks. The server
// never dials ApprovalsGRPCClient; it exists for callers of the service.
package client

import (
	"context"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/domain"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/invoicesv1"
)

// ApprovalsGRPCClient wraps the invoices.v1 ApprovalService gRPC client.
type ApprovalsGRPCClient struct {
	client invoicesv1.ApprovalServiceClient
	conn   *grpc.ClientConn
}

// NewApprovalsGRPCClient dials the approval service and returns a client.
// Extra dial options are appended after the defaults.
func NewApprovalsGRPCClient(addr string, opts ...grpc.DialOption) (*ApprovalsGRPCClient, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(forwardMetadata),
	}, opts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &ApprovalsGRPCClient{
		client: invoicesv1.NewApprovalServiceClient(conn),
		conn:   conn,
	}, nil
}

// Close releases the underlying gRPC connection.
func (c *ApprovalsGRPCClient) Close() error {
	return c.conn.Close()
}

// ApproveInvoice approves at level. An empty level approves the pending gate.
func (c *ApprovalsGRPCClient) ApproveInvoice(
	ctx context.Context,
	invoiceID string,
	level domain.ApprovalLevel,
	comments string,
) (*invoicesv1.TransitionResponse, error) {
	return c.client.ApproveInvoice(ctx, &invoicesv1.ApproveInvoiceRequest{
		InvoiceID: invoiceID,
		Level:     string(level),
		Comments:  comments,
	})
}

// RejectInvoice rejects the invoice at its pending level.
func (c *ApprovalsGRPCClient) RejectInvoice(
	ctx context.Context,
	invoiceID, reason, comments string,
) (*invoicesv1.TransitionResponse, error) {
	return c.client.RejectInvoice(ctx, &invoicesv1.RejectInvoiceRequest{
		InvoiceID: invoiceID,
		Reason:    reason,
		Comments:  comments,
	})
}

// GetApprovalRequirements returns the approvals an invoice of total would need.
func (c *ApprovalsGRPCClient) GetApprovalRequirements(
	ctx context.Context,
	total decimal.Decimal,
	centreCode string,
) (*invoicesv1.GetApprovalRequirementsResponse, error) {
	return c.client.GetApprovalRequirements(ctx, &invoicesv1.GetApprovalRequirementsRequest{
		Total:      total.String(),
		CentreCode: centreCode,
	})
}

// ValidateInvoice runs remote structural validation.
func (c *ApprovalsGRPCClient) ValidateInvoice(
	ctx context.Context,
	invoice *domain.InvoiceReceived,
) (*invoicesv1.ValidateInvoiceResponse, error) {
	return c.client.ValidateInvoice(ctx, &invoicesv1.ValidateInvoiceRequest{
		Invoice: invoice,
		Lines:   invoice.Lines,
	})
}
