// Package grpcserver exposes availability queries over gRPC for in-cluster
// callers. Messages travel as google.protobuf.Struct so no generated stubs
// are needed; field names match the JSON API.
package grpcserver

import (
	"context"
	"errors"
	"math"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "clinicsched.availability.v1.AvailabilityService"

	MethodResolveAvailability  = "/" + ServiceName + "/ResolveAvailability"
	MethodCheckBookingConflict = "/" + ServiceName + "/CheckBookingConflict"
)

// Availability is the slice of booking.Service the server needs.
type Availability interface {
	ResolveAvailability(ctx context.Context, professionalID string, from, to civil.Date) ([]model.ResolvedSlot, error)
	CheckBookingConflict(ctx context.Context, p availability.Proposal) error
}

type AvailabilityServer interface {
	ResolveAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CheckBookingConflict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type server struct {
	svc Availability
}

func Register(s *grpc.Server, svc Availability) {
	s.RegisterService(&serviceDesc, &server{svc: svc})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ResolveAvailability", Handler: unaryHandler(MethodResolveAvailability, AvailabilityServer.ResolveAvailability)},
		{MethodName: "CheckBookingConflict", Handler: unaryHandler(MethodCheckBookingConflict, AvailabilityServer.CheckBookingConflict)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "clinicsched/availability/v1/availability.proto",
}

func unaryHandler(fullMethod string, call func(AvailabilityServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AvailabilityServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AvailabilityServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func (s *server) ResolveAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	prof := stringField(f, "professional_id")
	if prof == "" {
		return nil, toStatus(model.Invalid("professional_id", "is required"))
	}
	from, to, err := dateRange(f)
	if err != nil {
		return nil, toStatus(err)
	}
	slots, err := s.svc.ResolveAvailability(ctx, prof, from, to)
	if err != nil {
		return nil, toStatus(err)
	}
	items := make([]any, 0, len(slots))
	for _, sl := range slots {
		item := map[string]any{
			"date":             sl.Date.String(),
			"time":             sl.Time.String(),
			"duration_minutes": sl.DurationMinutes,
			"status":           string(sl.Status),
			"template_id":      sl.TemplateID,
		}
		if sl.OccupantRef != "" {
			item["occupant_ref"] = sl.OccupantRef
		}
		items = append(items, item)
	}
	out, err := structpb.NewStruct(map[string]any{
		"professional_id": prof,
		"from":            from.String(),
		"to":              to.String(),
		"slots":           items,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func (s *server) CheckBookingConflict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	duration, err := intField(f, "duration_minutes")
	if err != nil {
		return nil, toStatus(err)
	}
	p := availability.Proposal{
		ProfessionalID:  stringField(f, "professional_id"),
		DurationMinutes: duration,
		ExcludeID:       stringField(f, "exclude_appointment_id"),
	}
	if p.ProfessionalID == "" {
		return nil, toStatus(model.Invalid("professional_id", "is required"))
	}
	date, err := clock.ParseDate(stringField(f, "date"))
	if err != nil {
		return nil, toStatus(model.Invalid("date", "must be a valid YYYY-MM-DD date"))
	}
	start, err := clock.Parse(stringField(f, "start_time"))
	if err != nil {
		return nil, toStatus(model.Invalid("start_time", "must be HH:mm between 00:00 and 23:59"))
	}
	p.Date, p.StartTime = date, start
	if err := s.svc.CheckBookingConflict(ctx, p); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"available": structpb.NewBoolValue(true),
	}}, nil
}

func stringField(f map[string]*structpb.Value, key string) string {
	return f[key].GetStringValue()
}

// intField reads a whole number; struct numbers are float64 on the wire.
func intField(f map[string]*structpb.Value, key string) (int, error) {
	v := f[key].GetNumberValue()
	if v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
		return 0, model.Invalid(key, "must be a whole number of minutes")
	}
	return int(v), nil
}

func dateRange(f map[string]*structpb.Value) (civil.Date, civil.Date, error) {
	if raw := stringField(f, "date"); raw != "" {
		d, err := clock.ParseDate(raw)
		if err != nil {
			return civil.Date{}, civil.Date{}, model.Invalid("date", "must be a valid YYYY-MM-DD date")
		}
		return d, d, nil
	}
	from, err := clock.ParseDate(stringField(f, "from"))
	if err != nil {
		return civil.Date{}, civil.Date{}, model.Invalid("from", "must be a valid YYYY-MM-DD date")
	}
	to := from
	if raw := stringField(f, "to"); raw != "" {
		if to, err = clock.ParseDate(raw); err != nil {
			return civil.Date{}, civil.Date{}, model.Invalid("to", "must be a valid YYYY-MM-DD date")
		}
	}
	return from, to, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, model.ErrConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, model.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, model.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
