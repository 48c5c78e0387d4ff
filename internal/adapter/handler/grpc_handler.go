package handler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/rl1809/parts-ledger/internal/core/domain"
)

const grpcServiceName = "stockledger.v1.InventoryService"

// jsonCodec carries the shared DTOs as gRPC messages. Clients select it with
// grpc.CallContentSubtype(JSONCodecName).
type jsonCodec struct{}

const JSONCodecName = "json"

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type ItemRef struct {
	ItemID string `json:"itemId"`
}

type PartRef struct {
	PartID string `json:"partId"`
}

type ReservationRef struct {
	ServiceOrderItemID string `json:"serviceOrderItemId"`
	PartID             string `json:"partId"`
}

type RecommendationRequest struct {
	VehicleID      string `json:"vehicleId"`
	ServiceOrderID string `json:"serviceOrderId"`
	Limit          int    `json:"limit"`
	PipelineID     string `json:"pipelineId"`
}

type Empty struct{}

// InventoryServer is the gRPC surface of the ledger.
type InventoryServer interface {
	CreateItem(context.Context, *CreateItemRequest) (*ItemResponse, error)
	GetItem(context.Context, *ItemRef) (*ItemResponse, error)
	UpdateItem(context.Context, *UpdateItemRequest) (*ItemResponse, error)
	DeleteItem(context.Context, *ItemRef) (*DeleteItemResponse, error)
	RegisterEntry(context.Context, *EntryRequest) (*MovementResultResponse, error)
	ReserveStock(context.Context, *ReserveRequest) (*MovementResultResponse, error)
	ConsumeStock(context.Context, *ReservationChangeRequest) (*MovementResultResponse, error)
	CancelReservation(context.Context, *ReservationChangeRequest) (*MovementResultResponse, error)
	RegisterReturn(context.Context, *ReservationChangeRequest) (*MovementResultResponse, error)
	GetReservation(context.Context, *ReservationRef) (*ReservationResponse, error)
	GetPartAvailability(context.Context, *PartRef) (*AvailabilityResponse, error)
	GetCriticalPartsReport(context.Context, *Empty) (*CriticalReportResponse, error)
	GetRecommendations(context.Context, *RecommendationRequest) (*RecommendationList, error)
	Reconcile(context.Context, *PartRef) (*ReconciliationResponse, error)
}

type RecommendationList struct {
	Recommendations []RecommendationResponse `json:"recommendations"`
}

var InventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: grpcServiceName,
	HandlerType: (*InventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateItem", InventoryServer.CreateItem),
		unaryMethod("GetItem", InventoryServer.GetItem),
		unaryMethod("UpdateItem", InventoryServer.UpdateItem),
		unaryMethod("DeleteItem", InventoryServer.DeleteItem),
		unaryMethod("RegisterEntry", InventoryServer.RegisterEntry),
		unaryMethod("ReserveStock", InventoryServer.ReserveStock),
		unaryMethod("ConsumeStock", InventoryServer.ConsumeStock),
		unaryMethod("CancelReservation", InventoryServer.CancelReservation),
		unaryMethod("RegisterReturn", InventoryServer.RegisterReturn),
		unaryMethod("GetReservation", InventoryServer.GetReservation),
		unaryMethod("GetPartAvailability", InventoryServer.GetPartAvailability),
		unaryMethod("GetCriticalPartsReport", InventoryServer.GetCriticalPartsReport),
		unaryMethod("GetRecommendations", InventoryServer.GetRecommendations),
		unaryMethod("Reconcile", InventoryServer.Reconcile),
	},
	Streams: []grpc.StreamDesc{},
}

func unaryMethod[Req, Resp any](name string, call func(InventoryServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			s := srv.(InventoryServer)
			if interceptor == nil {
				return call(s, ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + grpcServiceName + "/" + name}
			return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

func RegisterInventoryServer(s grpc.ServiceRegistrar, srv InventoryServer) {
	s.RegisterService(&InventoryServiceDesc, srv)
}

type GRPCHandler struct {
	svc    Services
	logger *zap.Logger
}

func NewGRPCHandler(svc Services, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{svc: svc, logger: logger.Named("grpc")}
}

func (h *GRPCHandler) CreateItem(ctx context.Context, req *CreateItemRequest) (*ItemResponse, error) {
	item, err := h.svc.Items.CreateItem(ctx, req.toService())
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := newItemResponse(*item)
	return &resp, nil
}

func (h *GRPCHandler) GetItem(ctx context.Context, req *ItemRef) (*ItemResponse, error) {
	item, err := h.svc.Items.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := newItemResponse(*item)
	return &resp, nil
}

func (h *GRPCHandler) UpdateItem(ctx context.Context, req *UpdateItemRequest) (*ItemResponse, error) {
	item, err := h.svc.Items.UpdateItem(ctx, req.ItemID, req.toDomain())
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := newItemResponse(*item)
	return &resp, nil
}

func (h *GRPCHandler) DeleteItem(ctx context.Context, req *ItemRef) (*DeleteItemResponse, error) {
	soft, err := h.svc.Items.DeleteItem(ctx, req.ItemID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &DeleteItemResponse{ItemID: req.ItemID, SoftDeleted: soft}, nil
}

func (h *GRPCHandler) RegisterEntry(ctx context.Context, req *EntryRequest) (*MovementResultResponse, error) {
	res, err := h.svc.Ledger.RegisterEntry(ctx, req.toService())
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := newMovementResultResponse(res)
	return &resp, nil
}

func (h *GRPCHandler) ReserveStock(ctx context.Context, req *ReserveRequest) (*MovementResultResponse, error) {
	res, err := h.svc.Ledger.ReserveStock(ctx, req.toService())
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := newMovementResultResponse(res)
	return &resp, nil
}

func (h *GRPCHandler) ConsumeStock(ctx context.Context, req *ReservationChangeRequest) (*MovementResultResponse, error) {
	res, err := h.svc.Ledger.ConsumeStock(ctx, req.toService())
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := newMovementResultResponse(res)
	return &resp, nil
}

func (h *GRPCHandler) CancelReservation(ctx context.Context, req *ReservationChangeRequest) (*MovementResultResponse, error) {
	res, err := h.svc.Ledger.CancelReservation(ctx, req.toService())
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := newMovementResultResponse(res)
	return &resp, nil
}

func (h *GRPCHandler) RegisterReturn(ctx context.Context, req *ReservationChangeRequest) (*MovementResultResponse, error) {
	res, err := h.svc.Ledger.RegisterReturn(ctx, req.toService())
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := newMovementResultResponse(res)
	return &resp, nil
}

func (h *GRPCHandler) GetReservation(ctx context.Context, req *ReservationRef) (*ReservationResponse, error) {
	r, err := h.svc.Ledger.GetReservation(ctx, req.ServiceOrderItemID, req.PartID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := newReservationResponse(*r)
	return &resp, nil
}

func (h *GRPCHandler) GetPartAvailability(ctx context.Context, req *PartRef) (*AvailabilityResponse, error) {
	av, err := h.svc.Availability.GetPartAvailability(ctx, req.PartID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := newAvailabilityResponse(*av)
	return &resp, nil
}

func (h *GRPCHandler) GetCriticalPartsReport(ctx context.Context, _ *Empty) (*CriticalReportResponse, error) {
	report, err := h.svc.Critical.GetCriticalPartsReport(ctx)
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := newCriticalReportResponse(*report)
	return &resp, nil
}

func (h *GRPCHandler) GetRecommendations(ctx context.Context, req *RecommendationRequest) (*RecommendationList, error) {
	recs, err := h.svc.Recommendations.GetRecommendations(ctx, domain.RecommendationQuery{
		VehicleID:      req.VehicleID,
		ServiceOrderID: req.ServiceOrderID,
		Limit:          req.Limit,
		PipelineID:     req.PipelineID,
	})
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &RecommendationList{Recommendations: newRecommendationResponses(recs)}, nil
}

func (h *GRPCHandler) Reconcile(ctx context.Context, req *PartRef) (*ReconciliationResponse, error) {
	report, err := h.svc.Ledger.Reconcile(ctx, req.PartID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	resp := newReconciliationResponse(*report)
	return &resp, nil
}

func (h *GRPCHandler) toStatus(err error) error {
	m := mappingFor(err)
	if m.kind == nil {
		h.logger.Error("rpc failed", zap.Error(err))
		return status.Error(m.code, "internal error")
	}
	return status.Error(m.code, err.Error())
}
