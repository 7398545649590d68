package bus

import (
	"fmt"
	"strings"

	"github.com/ricesearch/search-relevance/internal/config"
	"github.com/ricesearch/search-relevance/internal/pkg/errors"
	"github.com/ricesearch/search-relevance/internal/pkg/logger"
)

// NewBus creates the configured bus, wrapped in a LoggedBus when the event
// log is enabled.
func NewBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	if log == nil {
		log = logger.Default()
	}

	var inner Bus
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		inner = NewMemoryBus(log)

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}
		group := cfg.KafkaGroup
		if group == "" {
			group = "search-relevance"
		}
		kb, err := NewKafkaBus(KafkaConfig{Brokers: brokers, ConsumerGroup: group}, log)
		if err != nil {
			return nil, err
		}
		inner = kb

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}

	if !cfg.EventLogEnabled {
		return inner, nil
	}

	el, err := NewEventLogger(cfg.EventLogPath, true)
	if err != nil {
		inner.Close()
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	log.Info("Event log enabled", "path", cfg.EventLogPath)
	return NewLoggedBus(inner, el, log), nil
}
