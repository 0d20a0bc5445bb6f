//go:build protogen

package directory

import (
	"context"
	"time"

	directoryv1 "github.com/vetdesk/vetdesk/protos/gen/directory/v1"
	"github.com/vetdesk/vetdesk/libs/grpcx"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/schedule"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// grpcDirectory talks to the directory service directly instead of the local
// replica. Used when the deployment runs without the Kafka-fed cache.
type grpcDirectory struct {
	client directoryv1.DirectoryServiceClient
}

func NewGRPC(addr string) (Directory, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcDirectory{client: directoryv1.NewDirectoryServiceClient(conn)}, nil
}

func (d *grpcDirectory) GetProvider(ctx context.Context, id string) (Provider, error) {
	resp, err := d.client.GetProvider(ctx, &directoryv1.ProviderRequest{
		ProviderId: id,
		AsOf:       timestamppb.New(time.Now().UTC()),
	})
	if err != nil {
		return Provider{}, err
	}
	if !resp.GetFound() {
		return Provider{}, ErrNotFound
	}
	return Provider{
		ID:              resp.GetProviderId(),
		Active:          resp.GetActive(),
		Verified:        resp.GetVerified(),
		ConsultationFee: resp.GetConsultationFee(),
	}, nil
}

func (d *grpcDirectory) GetPatient(ctx context.Context, id string) (Patient, error) {
	resp, err := d.client.GetPatient(ctx, &directoryv1.PatientRequest{PatientId: id})
	if err != nil {
		return Patient{}, err
	}
	if !resp.GetFound() {
		return Patient{}, ErrNotFound
	}
	return Patient{
		ID:      resp.GetPatientId(),
		OwnerID: resp.GetOwnerId(),
		Name:    resp.GetName(),
	}, nil
}

func (d *grpcDirectory) GetWindow(ctx context.Context, providerID string, weekday time.Weekday) (schedule.Window, bool, error) {
	resp, err := d.client.GetAvailabilityWindow(ctx, &directoryv1.AvailabilityWindowRequest{
		ProviderId: providerID,
		Weekday:    int32(weekday),
	})
	if err != nil {
		return schedule.Window{}, false, err
	}
	if !resp.GetConfigured() {
		return schedule.Window{}, false, nil
	}
	return schedule.Window{
		Weekday:     weekday,
		Enabled:     resp.GetEnabled(),
		StartMinute: int(resp.GetStartMinute()),
		EndMinute:   int(resp.GetEndMinute()),
	}, true, nil
}
