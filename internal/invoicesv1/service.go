package invoicesv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "invoices.v1.ApprovalService"

const (
	ApproveInvoiceMethod          = "/" + ServiceName + "/ApproveInvoice"
	RejectInvoiceMethod           = "/" + ServiceName + "/RejectInvoice"
	GetApprovalRequirementsMethod = "/" + ServiceName + "/GetApprovalRequirements"
	ValidateInvoiceMethod         = "/" + ServiceName + "/ValidateInvoice"
)

// ApprovalServiceServer is the server API for ApprovalService.
type ApprovalServiceServer interface {
	ApproveInvoice(context.Context, *ApproveInvoiceRequest) (*TransitionResponse, error)
	RejectInvoice(context.Context, *RejectInvoiceRequest) (*TransitionResponse, error)
	GetApprovalRequirements(context.Context, *GetApprovalRequirementsRequest) (*GetApprovalRequirementsResponse, error)
	ValidateInvoice(context.Context, *ValidateInvoiceRequest) (*ValidateInvoiceResponse, error)
}

// UnimplementedApprovalServiceServer can be embedded for forward compatibility.
type UnimplementedApprovalServiceServer struct{}

func (UnimplementedApprovalServiceServer) ApproveInvoice(context.Context, *ApproveInvoiceRequest) (*TransitionResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ApproveInvoice not implemented")
}

func (UnimplementedApprovalServiceServer) RejectInvoice(context.Context, *RejectInvoiceRequest) (*TransitionResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RejectInvoice not implemented")
}

func (UnimplementedApprovalServiceServer) GetApprovalRequirements(context.Context, *GetApprovalRequirementsRequest) (*GetApprovalRequirementsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetApprovalRequirements not implemented")
}

func (UnimplementedApprovalServiceServer) ValidateInvoice(context.Context, *ValidateInvoiceRequest) (*ValidateInvoiceResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ValidateInvoice not implemented")
}

// RegisterApprovalServiceServer registers srv on s.
func RegisterApprovalServiceServer(s grpc.ServiceRegistrar, srv ApprovalServiceServer) {
	s.RegisterService(&ApprovalServiceDesc, srv)
}

// ApprovalServiceDesc describes the service for grpc.Server registration.
var ApprovalServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ApprovalServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ApproveInvoice", Handler: approveInvoiceHandler},
		{MethodName: "RejectInvoice", Handler: rejectInvoiceHandler},
		{MethodName: "GetApprovalRequirements", Handler: getApprovalRequirementsHandler},
		{MethodName: "ValidateInvoice", Handler: validateInvoiceHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "invoices/v1/approval_service",
}

func approveInvoiceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ApproveInvoiceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ApprovalServiceServer).ApproveInvoice(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ApproveInvoiceMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ApprovalServiceServer).ApproveInvoice(ctx, req.(*ApproveInvoiceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func rejectInvoiceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RejectInvoiceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ApprovalServiceServer).RejectInvoice(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RejectInvoiceMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ApprovalServiceServer).RejectInvoice(ctx, req.(*RejectInvoiceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getApprovalRequirementsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetApprovalRequirementsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ApprovalServiceServer).GetApprovalRequirements(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetApprovalRequirementsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ApprovalServiceServer).GetApprovalRequirements(ctx, req.(*GetApprovalRequirementsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func validateInvoiceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ValidateInvoiceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ApprovalServiceServer).ValidateInvoice(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ValidateInvoiceMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ApprovalServiceServer).ValidateInvoice(ctx, req.(*ValidateInvoiceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ApprovalServiceClient is the client API for ApprovalService.
type ApprovalServiceClient interface {
	ApproveInvoice(ctx context.Context, in *ApproveInvoiceRequest, opts ...grpc.CallOption) (*TransitionResponse, error)
	RejectInvoice(ctx context.Context, in *RejectInvoiceRequest, opts ...grpc.CallOption) (*TransitionResponse, error)
	GetApprovalRequirements(ctx context.Context, in *GetApprovalRequirementsRequest, opts ...grpc.CallOption) (*GetApprovalRequirementsResponse, error)
	ValidateInvoice(ctx context.Context, in *ValidateInvoiceRequest, opts ...grpc.CallOption) (*ValidateInvoiceResponse, error)
}

type approvalServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewApprovalServiceClient wraps cc. Calls always use the JSON codec.
func NewApprovalServiceClient(cc grpc.ClientConnInterface) ApprovalServiceClient {
	return &approvalServiceClient{cc: cc}
}

func (c *approvalServiceClient) invoke(ctx context.Context, method string, in, out interface{}, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *approvalServiceClient) ApproveInvoice(ctx context.Context, in *ApproveInvoiceRequest, opts ...grpc.CallOption) (*TransitionResponse, error) {
	out := new(TransitionResponse)
	if err := c.invoke(ctx, ApproveInvoiceMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *approvalServiceClient) RejectInvoice(ctx context.Context, in *RejectInvoiceRequest, opts ...grpc.CallOption) (*TransitionResponse, error) {
	out := new(TransitionResponse)
	if err := c.invoke(ctx, RejectInvoiceMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *approvalServiceClient) GetApprovalRequirements(ctx context.Context, in *GetApprovalRequirementsRequest, opts ...grpc.CallOption) (*GetApprovalRequirementsResponse, error) {
	out := new(GetApprovalRequirementsResponse)
	if err := c.invoke(ctx, GetApprovalRequirementsMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *approvalServiceClient) ValidateInvoice(ctx context.Context, in *ValidateInvoiceRequest, opts ...grpc.CallOption) (*ValidateInvoiceResponse, error) {
	out := new(ValidateInvoiceResponse)
	if err := c.invoke(ctx, ValidateInvoiceMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
