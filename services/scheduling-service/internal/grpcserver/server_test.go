package grpcserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/clinicsched/libs/grpcx"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func setup(t *testing.T) *grpc.ClientConn {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := booking.NewService(storage.NewMemory(), nil, logger, nil, booking.Config{
		Now: func() time.Time { return time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC) },
	})
	ctx := context.Background()
	if _, err := svc.CreateTemplate(ctx, model.Template{
		ProfessionalID: "prof-1",
		DayOfWeek:      time.Monday,
		StartTime:      clock.MustParse("09:00"),
		EndTime:        clock.MustParse("10:00"),
		SlotDuration:   20,
		IsActive:       true,
	}); err != nil {
		t.Fatalf("template: %v", err)
	}
	if _, err := svc.Book(ctx, booking.BookRequest{
		ProfessionalID:  "prof-1",
		PatientID:       "patient-1",
		Date:            civil.Date{Year: 2024, Month: 1, Day: 8},
		StartTime:       clock.MustParse("09:20"),
		DurationMinutes: 20,
	}); err != nil {
		t.Fatalf("book: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpcx.ServerOptions()...)
	Register(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpcx.Dial("passthrough:///bufnet", grpcx.DialOptions{},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("struct: %v", err)
	}
	return s
}

func TestResolveAvailability(t *testing.T) {
	conn := setup(t)
	out := new(structpb.Struct)
	err := conn.Invoke(context.Background(), MethodResolveAvailability, mustStruct(t, map[string]any{
		"professional_id": "prof-1",
		"date":            "2024-01-08",
	}), out)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	slots := out.GetFields()["slots"].GetListValue().GetValues()
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	want := []string{"available", "busy", "available"}
	for i, v := range slots {
		got := v.GetStructValue().GetFields()["status"].GetStringValue()
		if got != want[i] {
			t.Fatalf("slot %d: expected %s, got %s", i, want[i], got)
		}
	}
}

func TestCheckBookingConflictCodes(t *testing.T) {
	conn := setup(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		start string
		code  codes.Code
	}{
		{"free", "09:40", codes.OK},
		{"busy", "09:20", codes.Aborted},
		{"outside hours", "11:00", codes.InvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := new(structpb.Struct)
			err := conn.Invoke(ctx, MethodCheckBookingConflict, mustStruct(t, map[string]any{
				"professional_id":  "prof-1",
				"date":             "2024-01-08",
				"start_time":       tc.start,
				"duration_minutes": 20,
			}), out)
			if got := status.Code(err); got != tc.code {
				t.Fatalf("expected %s, got %s (%v)", tc.code, got, err)
			}
			if tc.code == codes.OK && !out.GetFields()["available"].GetBoolValue() {
				t.Fatalf("expected available=true, got %v", out)
			}
		})
	}

	err := conn.Invoke(ctx, MethodResolveAvailability, mustStruct(t, map[string]any{"date": "2024-01-08"}), new(structpb.Struct))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument without professional, got %v", err)
	}
}

func TestCheckBookingConflictRejectsFractionalDuration(t *testing.T) {
	conn := setup(t)
	for _, dur := range []float64{20.5, 1e12, -1e12} {
		err := conn.Invoke(context.Background(), MethodCheckBookingConflict, mustStruct(t, map[string]any{
			"professional_id":  "prof-1",
			"date":             "2024-01-08",
			"start_time":       "09:40",
			"duration_minutes": dur,
		}), new(structpb.Struct))
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("duration %v: expected InvalidArgument, got %v", dur, err)
		}
	}
}
