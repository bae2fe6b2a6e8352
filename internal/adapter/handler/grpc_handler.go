package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/warehouse-inventory/internal/core/domain"
	"github.com/rl1809/warehouse-inventory/internal/core/service"
)

const InventoryServiceName = "inventory.v1.InventoryService"

// inventoryServer is the method set the hand-written service descriptor
// dispatches to. Requests and responses are google.protobuf.Struct values
// shaped like the HTTP JSON bodies.
type inventoryServer interface {
	CreateRecord(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRecord(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindRecords(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateQuantity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AdjustQuantity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateLocation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SoftDelete(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var inventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: InventoryServiceName,
	HandlerType: (*inventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateRecord", inventoryServer.CreateRecord),
		unaryMethod("GetRecord", inventoryServer.GetRecord),
		unaryMethod("FindRecords", inventoryServer.FindRecords),
		unaryMethod("History", inventoryServer.History),
		unaryMethod("UpdateQuantity", inventoryServer.UpdateQuantity),
		unaryMethod("AdjustQuantity", inventoryServer.AdjustQuantity),
		unaryMethod("UpdateLocation", inventoryServer.UpdateLocation),
		unaryMethod("SoftDelete", inventoryServer.SoftDelete),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "inventory/v1/inventory.proto",
}

type unaryCall func(inventoryServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(inventoryServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + InventoryServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(inventoryServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

type GRPCHandler struct {
	inventory *service.InventoryService
}

func NewGRPCHandler(inventory *service.InventoryService) *GRPCHandler {
	return &GRPCHandler{inventory: inventory}
}

// Register attaches the inventory service to s.
func (h *GRPCHandler) Register(s *grpc.Server) {
	s.RegisterService(&inventoryServiceDesc, h)
}

func (h *GRPCHandler) CreateRecord(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	quantity, err := optionalInt(req, "quantity_on_pallet")
	if err != nil {
		return nil, grpcError(err)
	}
	create := service.CreateRequest{
		LabelID:            stringField(req, "label_id"),
		ProductDescription: stringField(req, "product_description"),
		QuantityOnPallet:   quantity,
	}
	if _, ok := req.GetFields()["storage_location"]; ok {
		location := stringField(req, "storage_location")
		create.StorageLocation = &location
	}

	record, err := h.inventory.CreateOnce(ctx, stringField(req, "request_id"), create, principalFrom(ctx))
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(record)
}

func (h *GRPCHandler) GetRecord(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requiredID(req)
	if err != nil {
		return nil, grpcError(err)
	}
	record, err := h.inventory.Get(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(record)
}

func (h *GRPCHandler) FindRecords(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	criteria, err := criteriaFromStruct(req)
	if err != nil {
		return nil, grpcError(err)
	}
	records, err := h.inventory.Find(ctx, criteria)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"records": records})
}

func (h *GRPCHandler) History(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requiredID(req)
	if err != nil {
		return nil, grpcError(err)
	}
	entries, err := h.inventory.History(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"entries": entries})
}

func (h *GRPCHandler) UpdateQuantity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.withQuantity(ctx, req, "new_quantity", h.inventory.UpdateQuantity)
}

func (h *GRPCHandler) AdjustQuantity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.withQuantity(ctx, req, "increase_quantity", h.inventory.AdjustQuantity)
}

type quantityCall func(context.Context, int64, int, *domain.Principal) (*domain.InventoryRecord, error)

func (h *GRPCHandler) withQuantity(ctx context.Context, req *structpb.Struct, field string, call quantityCall) (*structpb.Struct, error) {
	id, err := requiredID(req)
	if err != nil {
		return nil, grpcError(err)
	}
	quantity, err := optionalInt(req, field)
	if err != nil {
		return nil, grpcError(err)
	}
	if quantity == nil {
		return nil, grpcError(&domain.ValidationError{Field: field, Reason: "is required"})
	}
	record, err := call(ctx, id, *quantity, principalFrom(ctx))
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(record)
}

func (h *GRPCHandler) UpdateLocation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requiredID(req)
	if err != nil {
		return nil, grpcError(err)
	}
	record, err := h.inventory.UpdateLocation(ctx, id, stringField(req, "new_location"), principalFrom(ctx))
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(record)
}

func (h *GRPCHandler) SoftDelete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requiredID(req)
	if err != nil {
		return nil, grpcError(err)
	}
	if !req.GetFields()["confirmation"].GetBoolValue() {
		return nil, grpcError(&domain.ValidationError{Field: "confirmation", Reason: "must be true"})
	}
	record, err := h.inventory.SoftDelete(ctx, id, principalFrom(ctx))
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(record)
}

// AuthInterceptor resolves the bearer token in the authorization metadata for
// every inventory method. Other services, such as health, pass through.
func AuthInterceptor(auth *service.AuthService) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+InventoryServiceName+"/") {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		var header string
		if values := md.Get("authorization"); len(values) > 0 {
			header = values[0]
		}
		token, ok := bearerToken(header)
		if !ok {
			return nil, grpcError(service.ErrInvalidToken)
		}
		principal, err := auth.Resolve(ctx, token)
		if err != nil {
			return nil, grpcError(err)
		}
		return handler(withPrincipal(ctx, principal), req)
	}
}

func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Stringer("code", code),
			zap.Duration("elapsed", time.Since(start)),
		}
		if code == codes.Internal || code == codes.Unknown {
			logger.Error("grpc request failed", append(fields, zap.Error(err))...)
		} else {
			logger.Info("grpc request", fields...)
		}
		return resp, err
	}
}

func grpcError(err error) error {
	if _, ok := status.FromError(err); ok && err != nil {
		return err
	}
	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrValidation):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrUnauthorized):
		code = codes.PermissionDenied
	case errors.Is(err, service.ErrDuplicateRequest):
		code = codes.AlreadyExists
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidToken):
		code = codes.Unauthenticated
	default:
		return status.Error(codes.Internal, err.Error())
	}
	return status.Error(code, err.Error())
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func stringField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

// optionalInt reads a 32-bit whole number sent either as a number or a string.
func optionalInt(req *structpb.Struct, key string) (*int, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return nil, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
			return nil, &domain.ValidationError{Field: key, Reason: "must be an integer"}
		}
		i := int(n)
		return &i, nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(kind.StringValue, 10, 32)
		if err != nil {
			return nil, &domain.ValidationError{Field: key, Reason: "must be an integer"}
		}
		i := int(n)
		return &i, nil
	case *structpb.Value_NullValue:
		return nil, nil
	default:
		return nil, &domain.ValidationError{Field: key, Reason: "must be an integer"}
	}
}

// requiredID reads record_id. Ids are sent as strings since they exceed the
// precision of a protobuf number.
func requiredID(req *structpb.Struct) (int64, error) {
	v, ok := req.GetFields()["record_id"]
	if !ok {
		return 0, &domain.ValidationError{Field: "record_id", Reason: "is required"}
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return parseRecordID(kind.StringValue)
	case *structpb.Value_NumberValue:
		return parseRecordID(fmt.Sprintf("%.0f", kind.NumberValue))
	default:
		return 0, &domain.ValidationError{Field: "record_id", Reason: "must be a positive integer"}
	}
}

func criteriaFromStruct(req *structpb.Struct) (domain.Criteria, error) {
	var c domain.Criteria
	fields := req.GetFields()

	if _, ok := fields["record_id"]; ok {
		id, err := requiredID(req)
		if err != nil {
			return c, err
		}
		c.RecordID = &id
	}
	quantity, err := optionalInt(req, "quantity_on_pallet")
	if err != nil {
		return c, err
	}
	c.QuantityOnPallet = quantity

	for key, dst := range map[string]**string{
		"label_id":            &c.LabelID,
		"storage_location":    &c.StorageLocation,
		"product_description": &c.ProductDescription,
	} {
		if _, ok := fields[key]; ok {
			v := stringField(req, key)
			*dst = &v
		}
	}
	c.OnlyScheduledForDeletion = fields["scheduled_for_deletion"].GetBoolValue()
	return c, nil
}
