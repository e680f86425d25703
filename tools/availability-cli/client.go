package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicsched/libs/grpcx"
	"github.com/md-rashed-zaman/clinicsched/libs/httpx"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	grpcService       = "clinicsched.availability.v1.AvailabilityService"
	grpcResolveMethod = "/" + grpcService + "/ResolveAvailability"
	grpcCheckMethod   = "/" + grpcService + "/CheckBookingConflict"
)

type slot struct {
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	OccupantRef     string `json:"occupant_ref,omitempty"`
}

type proposal struct {
	ProfessionalID       string `json:"professional_id"`
	Date                 string `json:"date"`
	StartTime            string `json:"start_time"`
	DurationMinutes      int    `json:"duration_minutes"`
	ExcludeAppointmentID string `json:"exclude_appointment_id,omitempty"`
}

type checkResult struct {
	Available bool
	Reason    string
}

type client interface {
	Slots(ctx context.Context, professionalID, from, to string) ([]slot, error)
	Check(ctx context.Context, p proposal) (checkResult, error)
	Close() error
}

func withTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, d)
}

type httpClient struct {
	base  string
	token string
	http  *http.Client
}

func newHTTPClient(base, token string, timeout time.Duration) *httpClient {
	return &httpClient{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) Close() error { return nil }

func (c *httpClient) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	return resp.StatusCode, raw, err
}

func apiError(code int, raw []byte) error {
	var body httpx.ErrorBody
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return fmt.Errorf("%s (%d): %s", body.Code, code, body.Error)
	}
	return fmt.Errorf("unexpected status %d: %s", code, strings.TrimSpace(string(raw)))
}

func (c *httpClient) Slots(ctx context.Context, professionalID, from, to string) ([]slot, error) {
	q := url.Values{}
	q.Set("professional_id", professionalID)
	q.Set("from", from)
	q.Set("to", to)
	code, raw, err := c.do(ctx, http.MethodGet, "/api/v1/availability?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, apiError(code, raw)
	}
	var out struct {
		Slots []slot `json:"slots"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode availability: %w", err)
	}
	return out.Slots, nil
}

func (c *httpClient) Check(ctx context.Context, p proposal) (checkResult, error) {
	code, raw, err := c.do(ctx, http.MethodPost, "/api/v1/availability/check", p)
	if err != nil {
		return checkResult{}, err
	}
	switch code {
	case http.StatusOK:
		return checkResult{Available: true}, nil
	case http.StatusConflict, http.StatusBadRequest:
		var body httpx.ErrorBody
		_ = json.Unmarshal(raw, &body)
		return checkResult{Reason: body.Error}, nil
	default:
		return checkResult{}, apiError(code, raw)
	}
}

type grpcClient struct {
	conn *grpc.ClientConn
}

func newGRPCClient(addr string) (*grpcClient, error) {
	conn, err := grpcx.Dial(addr, grpcx.DialOptions{})
	if err != nil {
		return nil, err
	}
	return &grpcClient{conn: conn}, nil
}

func (c *grpcClient) Close() error { return c.conn.Close() }

func (c *grpcClient) Slots(ctx context.Context, professionalID, from, to string) ([]slot, error) {
	in, err := structpb.NewStruct(map[string]any{"professional_id": professionalID, "from": from, "to": to})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, grpcResolveMethod, in, out); err != nil {
		return nil, err
	}
	var slots []slot
	for _, v := range out.GetFields()["slots"].GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		slots = append(slots, slot{
			Date:            f["date"].GetStringValue(),
			Time:            f["time"].GetStringValue(),
			DurationMinutes: int(f["duration_minutes"].GetNumberValue()),
			Status:          f["status"].GetStringValue(),
			OccupantRef:     f["occupant_ref"].GetStringValue(),
		})
	}
	return slots, nil
}

func (c *grpcClient) Check(ctx context.Context, p proposal) (checkResult, error) {
	in, err := structpb.NewStruct(map[string]any{
		"professional_id":        p.ProfessionalID,
		"date":                   p.Date,
		"start_time":             p.StartTime,
		"duration_minutes":       p.DurationMinutes,
		"exclude_appointment_id": p.ExcludeAppointmentID,
	})
	if err != nil {
		return checkResult{}, err
	}
	err = c.conn.Invoke(ctx, grpcCheckMethod, in, new(structpb.Struct))
	switch status.Code(err) {
	case codes.OK:
		return checkResult{Available: true}, nil
	case codes.Aborted, codes.InvalidArgument:
		return checkResult{Reason: status.Convert(err).Message()}, nil
	default:
		return checkResult{}, err
	}
}
