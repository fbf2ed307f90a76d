package handler

import (
	"context"
	"math"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/cart-store/internal/core/domain"
	"github.com/rl1809/cart-store/internal/core/service"
	"github.com/rl1809/cart-store/internal/port"
)

// CartServiceName is the fully qualified gRPC service name.
const CartServiceName = "cart.v1.CartService"

// IdentityMetadataKey carries the caller's identity on incoming gRPC calls.
var IdentityMetadataKey = strings.ToLower(IdentityHeader)

// CartServiceServer is the server API for cart.v1.CartService. Requests and
// responses are google.protobuf.Struct documents shaped like the HTTP API.
type CartServiceServer interface {
	GetCart(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateQuantity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ClearCart(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Checkout(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterCartServiceServer(s grpc.ServiceRegistrar, srv CartServiceServer) {
	s.RegisterService(&CartServiceDesc, srv)
}

func unaryHandler(method string, call func(CartServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + CartServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CartServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(CartServiceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var CartServiceDesc = grpc.ServiceDesc{
	ServiceName: CartServiceName,
	HandlerType: (*CartServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("GetCart", CartServiceServer.GetCart),
		unaryHandler("AddItem", CartServiceServer.AddItem),
		unaryHandler("UpdateQuantity", CartServiceServer.UpdateQuantity),
		unaryHandler("RemoveItem", CartServiceServer.RemoveItem),
		unaryHandler("ClearCart", CartServiceServer.ClearCart),
		unaryHandler("Checkout", CartServiceServer.Checkout),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cart/v1/cart.proto",
}

type GRPCHandler struct {
	catalog   *service.CatalogView
	checkout  *service.CheckoutService
	slots     port.SlotRepository
	storeOpts []service.CartOption
	logger    *zap.Logger
}

func NewGRPCHandler(catalog *service.CatalogView, checkout *service.CheckoutService, slots port.SlotRepository, logger *zap.Logger, storeOpts ...service.CartOption) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{
		catalog:   catalog,
		checkout:  checkout,
		slots:     slots,
		storeOpts: append(slices.Clip(storeOpts), service.WithLogger(logger)),
		logger:    logger,
	}
}

func (h *GRPCHandler) GetCart(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return cartStruct(h.openStore(ctx))
}

func (h *GRPCHandler) AddItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := intField(req, "product_id")
	if err != nil {
		return nil, err
	}

	store := h.openStore(ctx)
	p, err := h.catalog.AddToCart(ctx, store, id)
	switch {
	case errors.Is(err, service.ErrLoginRequired):
		return nil, status.Error(codes.Unauthenticated, "please login to add items to your cart")
	case errors.Is(err, service.ErrProductNotFound):
		return nil, status.Errorf(codes.NotFound, "product %d not found", id)
	case err != nil:
		h.logger.Error("add to cart failed", zap.Error(err))
		return nil, status.Error(codes.Unavailable, "catalog unavailable")
	}

	h.logger.Info("item added to cart", zap.String("identity", store.Identity()), zap.Int64("product_id", p.ID))
	return respondStruct(store)
}

func (h *GRPCHandler) UpdateQuantity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := intField(req, "product_id")
	if err != nil {
		return nil, err
	}
	quantity, err := intField(req, "quantity")
	if err != nil {
		return nil, err
	}
	if quantity < 0 || quantity > math.MaxInt32 {
		return nil, status.Error(codes.InvalidArgument, "quantity must be a non-negative integer")
	}

	store := h.openStore(ctx)
	store.UpdateQuantity(ctx, id, int(quantity))
	return respondStruct(store)
}

func (h *GRPCHandler) RemoveItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := intField(req, "product_id")
	if err != nil {
		return nil, err
	}

	store := h.openStore(ctx)
	store.RemoveItem(ctx, id)
	return respondStruct(store)
}

func (h *GRPCHandler) ClearCart(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	store := h.openStore(ctx)
	store.ClearCart(ctx)
	return respondStruct(store)
}

// Checkout takes an optional "request_id"; a fresh one is generated when it
// is absent.
func (h *GRPCHandler) Checkout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	requestID := req.GetFields()["request_id"].GetStringValue()
	if requestID == "" {
		requestID = uuid.NewString()
	}

	store := h.openStore(ctx)
	receipt, err := h.checkout.Checkout(ctx, requestID, store)
	switch {
	case errors.Is(err, service.ErrLoginRequired):
		return nil, status.Error(codes.Unauthenticated, "please login to checkout")
	case errors.Is(err, service.ErrEmptyCart):
		return nil, status.Error(codes.FailedPrecondition, "your cart is empty")
	case errors.Is(err, service.ErrDuplicateRequest):
		return nil, status.Error(codes.AlreadyExists, "duplicate request")
	case errors.Is(err, service.ErrCartNotCleared):
		h.logger.Error("checkout aborted", zap.String("identity", store.Identity()), zap.Error(err))
		return nil, status.Error(codes.Unavailable, "cart could not be saved, retry with a new request id")
	case err != nil:
		h.logger.Error("checkout failed", zap.String("identity", store.Identity()), zap.Error(err))
		return nil, status.Error(codes.Internal, "internal error")
	}

	h.logger.Info("checkout accepted",
		zap.String("identity", receipt.Identity),
		zap.String("receipt_id", receipt.ID),
		zap.String("total", domain.FormatCurrency(receipt.Total)),
	)
	return receiptStruct(receipt)
}

func (h *GRPCHandler) openStore(ctx context.Context) *service.CartStore {
	return service.NewCartStore(ctx, h.slots, identityFromContext(ctx), h.storeOpts...)
}

func identityFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(IdentityMetadataKey); len(values) > 0 {
		return values[0]
	}
	return ""
}

func intField(req *structpb.Struct, name string) (int64, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > 1<<53 {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
	}
	return int64(n.NumberValue), nil
}

func respondStruct(store *service.CartStore) (*structpb.Struct, error) {
	if err := store.Err(); err != nil {
		return nil, status.Error(codes.Unavailable, "cart could not be saved")
	}
	return cartStruct(store)
}

func cartStruct(store *service.CartStore) (*structpb.Struct, error) {
	items := make([]interface{}, 0, store.Len())
	for _, item := range store.Items() {
		items = append(items, lineItemMap(item))
	}

	out, err := structpb.NewStruct(map[string]interface{}{
		"identity":   store.Identity(),
		"items":      items,
		"item_count": store.TotalItemCount(),
		"subtotal":   domain.FormatCurrency(store.Subtotal()),
		"tax":        domain.FormatCurrency(store.Tax()),
		"total":      domain.FormatCurrency(store.Total()),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode cart: %v", err)
	}
	return out, nil
}

func receiptStruct(r domain.Receipt) (*structpb.Struct, error) {
	items := make([]interface{}, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, lineItemMap(item))
	}

	out, err := structpb.NewStruct(map[string]interface{}{
		"id":         r.ID,
		"items":      items,
		"item_count": r.ItemCount(),
		"subtotal":   domain.FormatCurrency(r.Subtotal),
		"tax":        domain.FormatCurrency(r.Tax),
		"total":      domain.FormatCurrency(r.Total),
		"status":     string(r.Status),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode receipt: %v", err)
	}
	return out, nil
}

func lineItemMap(item domain.LineItem) map[string]interface{} {
	return map[string]interface{}{
		"id":          item.ID,
		"name":        item.Name,
		"price":       domain.FormatCurrency(item.Price),
		"category":    item.Category,
		"image":       item.Image,
		"description": item.Description,
		"quantity":    item.Quantity,
		"line_total":  domain.FormatCurrency(item.LineTotal()),
	}
}
