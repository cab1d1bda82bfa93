package pipeline

import (
	"time"

	"tickpulse/internal/config"
	"tickpulse/internal/errors"
	"tickpulse/internal/microstructure"
)

// Options parameterize the analyzers of a run
type Options struct {
	Freq      time.Duration
	Window    int
	Z         float64
	Calendar  microstructure.TradingCalendar
	FillEmpty bool
}

// DefaultOptions mirror the configuration defaults
func DefaultOptions() Options {
	return Options{
		Freq:     time.Minute,
		Window:   microstructure.DefaultWindow,
		Z:        microstructure.DefaultZ,
		Calendar: microstructure.DefaultCalendar,
	}
}

// OptionsFromConfig maps the pipeline section of the configuration
func OptionsFromConfig(cfg config.PipelineConfig) Options {
	return Options{
		Freq:      cfg.Freq,
		Window:    cfg.Window,
		Z:         cfg.Z,
		Calendar:  microstructure.TradingCalendar{HoursPerDay: cfg.HoursPerDay},
		FillEmpty: cfg.FillEmptyBuckets,
	}
}

// Validate rejects options no analyzer can run with
func (o Options) Validate() error {
	switch {
	case o.Freq <= 0:
		return errors.NewAppValidationError("freq must be positive").WithContext("freq", o.Freq.String())
	case o.Window < 1:
		return errors.NewAppValidationError("window must be at least 1").WithContext("window", o.Window)
	case !(o.Z > 0):
		return errors.NewAppValidationError("z must be positive").WithContext("z", o.Z)
	case !(o.Calendar.HoursPerDay > 0) || o.Calendar.HoursPerDay > 24:
		return errors.NewAppValidationError("hours_per_day must be in (0, 24]").
			WithContext("hours_per_day", o.Calendar.HoursPerDay)
	}
	return nil
}

func (o Options) resample() microstructure.ResampleOptions {
	return microstructure.ResampleOptions{
		Freq:      o.Freq,
		VolScale:  microstructure.AnnualizationScale(o.Freq, o.Calendar),
		FillEmpty: o.FillEmpty,
	}
}
