package conversation

import (
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/chatroute/internal/infra/eventbus"
)

// LogActivity subscribes to both turn topics and logs every event until the
// bus is closed. It returns once the subscriptions are registered; the
// returned channel is closed when logging stops.
func LogActivity(bus eventbus.EventBus, logger *zap.Logger) <-chan struct{} {
	created := bus.Subscribe(TopicTurnCreated)
	completed := bus.Subscribe(TopicTurnCompleted)
	log := logger.Named("activity")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for created != nil || completed != nil {
			select {
			case evt, ok := <-created:
				if !ok {
					created = nil
					continue
				}
				logTurn(log, evt)
			case evt, ok := <-completed:
				if !ok {
					completed = nil
					continue
				}
				logTurn(log, evt)
			}
		}
	}()
	return done
}

func logTurn(log *zap.Logger, evt eventbus.Event) {
	te, ok := evt.Payload.(TurnEvent)
	if !ok {
		log.Warn("unexpected event payload", zap.String("topic", evt.Topic))
		return
	}
	fields := []zap.Field{
		zap.Int64("turn_id", te.TurnID),
		zap.String("room_id", te.RoomID),
		zap.String("sender", te.Sender),
		zap.Int("length", te.Length),
	}
	if evt.Topic == TopicTurnCompleted {
		fields = append(fields, zap.Duration("elapsed", te.Elapsed))
	}
	log.Info(evt.Topic, fields...)
}
