package engine

import (
	"fmt"
	"time"

	"github.com/quantfeed/avwap/internal/config"
	"github.com/quantfeed/avwap/internal/session"
	"github.com/quantfeed/avwap/pkg/indicator"
)

// Preset names for the rolling anchors
const (
	PresetSession = "avwap_session"
	PresetDay     = "avwap_day"
	PresetWeek    = "avwap_week"
)

// RegisterConfiguredAnchors registers one anchored VWAP preset per configured
// anchor. Rolling presets re-resolve their anchor as bars cross session or
// calendar boundaries; fixed anchors never move.
func RegisterConfiguredAnchors(registry *Registry, cfg config.EngineConfig) error {
	price := indicator.SelectorByName(cfg.PriceSource)

	for _, preset := range cfg.AnchorPresets {
		switch session.AnchorKind(preset) {
		case session.AnchorSessionOpen:
			if err := registry.Register(PresetSession,
				session.SessionOpenAnchor,
				price,
				Metadata{
					Name:        PresetSession,
					AnchorKind:  session.AnchorSessionOpen,
					PriceSource: cfg.PriceSource,
					Description: "VWAP anchored to the regular session open (9:30 ET)",
				},
			); err != nil {
				return err
			}

		case session.AnchorDayOpen:
			if err := registry.Register(PresetDay,
				session.DayOpenAnchor,
				price,
				Metadata{
					Name:        PresetDay,
					AnchorKind:  session.AnchorDayOpen,
					PriceSource: cfg.PriceSource,
					Description: "VWAP anchored to UTC midnight of the current day",
				},
			); err != nil {
				return err
			}

		case session.AnchorWeekOpen:
			if err := registry.Register(PresetWeek,
				session.WeekOpenAnchor,
				price,
				Metadata{
					Name:        PresetWeek,
					AnchorKind:  session.AnchorWeekOpen,
					PriceSource: cfg.PriceSource,
					Description: "VWAP anchored to UTC midnight of the current week's Monday",
				},
			); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unknown anchor preset %q", preset)
		}
	}

	for _, at := range cfg.FixedAnchors {
		name := fmt.Sprintf("avwap_fixed_%s", at.UTC().Format("20060102T150405Z"))
		if err := registry.Register(name,
			session.FixedAnchor(at),
			price,
			Metadata{
				Name:        name,
				AnchorKind:  session.AnchorFixed,
				PriceSource: cfg.PriceSource,
				Description: fmt.Sprintf("VWAP anchored at %s", at.UTC().Format(time.RFC3339)),
			},
		); err != nil {
			return err
		}
	}

	return nil
}
