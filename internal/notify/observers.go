package notify

import (
	"github.com/lewisedginton/npc_registry/pkg/logger"
	"github.com/lewisedginton/npc_registry/pkg/metrics"
)

// LogObserver writes entity events at debug level and store events at info.
func LogObserver(log logger.Logger) Observer {
	return ObserverFunc(func(e Event) {
		fields := []logger.LogField{
			logger.StringField("event", string(e.Type)),
			logger.StringField("scope", e.Scope),
		}
		switch e.Type {
		case NPCCreated, NPCUpdated, NPCDeleted:
			fields = append(fields, logger.EntityIDField(e.EntityID), logger.StringField("name", e.Name))
			if e.Type == NPCUpdated {
				fields = append(fields, logger.IntField("changed_fields", e.Count))
			}
			log.Debug("NPC event", fields...)
		case StoreSaveError:
			log.Error("Store event", append(fields, logger.ErrorField(e.Err))...)
		default:
			log.Info("Store event", append(fields, logger.IntField("count", e.Count))...)
		}
	})
}

// MetricsObserver counts every event and records persist outcomes.
func MetricsObserver(m *metrics.Metrics) Observer {
	return ObserverFunc(func(e Event) {
		m.RecordEntityEvent(string(e.Type))
		switch e.Type {
		case StoreSaved:
			m.RecordPersist(nil)
		case StoreSaveError:
			m.RecordPersist(e.Err)
		}
	})
}
