package httpapi

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/BrandonDHaskell/refectory/internal/health"
	"github.com/BrandonDHaskell/refectory/internal/refectory/store"
)

// ── Health ───────────────────────────────────────────────────────────────────

// healthToProto encodes a snapshot as a google.protobuf.Struct. Timestamps
// are {seconds, nanos} objects, the shape of google.protobuf.Timestamp.
func healthToProto(s health.Snapshot) (*structpb.Struct, error) {
	errs := make([]any, 0, len(s.RecentErrors))
	for _, e := range s.RecentErrors {
		errs = append(errs, map[string]any{
			"time":    timestampFields(e.Time),
			"type":    e.Type,
			"message": e.Message,
		})
	}

	fields := map[string]any{
		"status":          string(s.Status),
		"latest_document": s.LastDocument,
		"errors":          errs,
	}
	if s.LastUpdate != nil {
		fields["last_update"] = timestampFields(*s.LastUpdate)
	} else {
		fields["last_update"] = nil
	}
	return structpb.NewStruct(fields)
}

func timestampFields(t time.Time) map[string]any {
	ts := timestamppb.New(t)
	return map[string]any{
		"seconds": float64(ts.GetSeconds()),
		"nanos":   float64(ts.GetNanos()),
	}
}

// ── Failures ─────────────────────────────────────────────────────────────────

type failureView struct {
	Identity   string    `json:"identity,omitempty"`
	Unit       string    `json:"unit,omitempty"`
	CardID     string    `json:"card_id"`
	DeviceSN   string    `json:"dn"`
	Kind       string    `json:"kind"`
	KindCode   int       `json:"kind_code"`
	OccurredAt time.Time `json:"occurred_at"`
}

func failuresToView(recs []store.FailureRecord) []failureView {
	out := make([]failureView, 0, len(recs))
	for _, r := range recs {
		out = append(out, failureView{
			Identity:   r.Identity,
			Unit:       r.Unit,
			CardID:     r.CardID,
			DeviceSN:   r.DeviceSN,
			Kind:       r.Kind.String(),
			KindCode:   int(r.Kind),
			OccurredAt: r.OccurredAt,
		})
	}
	return out
}
