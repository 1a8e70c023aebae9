// Package worker rebuilds settlements in the background so the status store
// stays reconciled with the ledger even when nobody has the settlement
// screen open.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"tripsplit/internal/amqp"
	"tripsplit/internal/settlement"
)

// RecomputeWorker consumes recompute messages and periodically sweeps every
// room as a safety net for messages lost during broker outages.
type RecomputeWorker struct {
	rooms      settlement.RoomStore
	settlement *settlement.Service
}

func NewRecomputeWorker(rooms settlement.RoomStore, svc *settlement.Service) *RecomputeWorker {
	return &RecomputeWorker{
		rooms:      rooms,
		settlement: svc,
	}
}

// HandleRecomputeMessage rebuilds one room's settlement. Returning an error
// requeues the message.
func (w *RecomputeWorker) HandleRecomputeMessage(msg *amqp.RecomputeMessage) error {
	ctx := context.Background()

	slog.InfoContext(ctx, "Processing recompute message",
		"room_id", msg.RoomID,
		"reason", msg.Reason)

	return w.recomputeRoom(ctx, msg.RoomID)
}

// SweepAll recomputes every known room. Rooms that fail are logged and
// skipped so one bad ledger cannot stall the sweep.
func (w *RecomputeWorker) SweepAll(ctx context.Context) error {
	roomIDs, err := w.rooms.ListRoomIDs(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}

	var failed int
	for _, roomID := range roomIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.recomputeRoom(ctx, roomID); err != nil {
			failed++
			slog.ErrorContext(ctx, "Sweep recompute failed",
				"room_id", roomID, "error", err)
		}
	}

	slog.InfoContext(ctx, "Settlement sweep complete",
		"rooms", len(roomIDs), "failed", failed)
	return nil
}

func (w *RecomputeWorker) recomputeRoom(ctx context.Context, roomID string) error {
	w.settlement.InvalidateRoom(roomID)
	if _, err := w.settlement.ComputeTransfers(ctx, roomID, w.settlement.DefaultMode()); err != nil {
		return fmt.Errorf("recompute room %s: %w", roomID, err)
	}
	return nil
}
