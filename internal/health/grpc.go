package health

import (
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for the roster
// pipeline. The empty name reports the process as a whole.
const ServiceName = "refectory.Roster"

// GRPCBridge mirrors a Monitor onto the standard grpc.health.v1 service.
type GRPCBridge struct {
	srv *grpchealth.Server
}

func NewGRPCBridge(m *Monitor) *GRPCBridge {
	b := &GRPCBridge{srv: grpchealth.NewServer()}
	b.srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	b.set(m.Status())
	m.OnChange(b.set)
	return b
}

func (b *GRPCBridge) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, b.srv)
}

// Shutdown flips every service to NOT_SERVING so watchers drain first.
func (b *GRPCBridge) Shutdown() {
	b.srv.Shutdown()
}

func (b *GRPCBridge) set(s Status) {
	st := healthpb.HealthCheckResponse_SERVING
	if !s.Serving() {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	b.srv.SetServingStatus(ServiceName, st)
}
