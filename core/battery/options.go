package battery

import "github.com/kilianp07/batsim/core/logger"

type options struct {
	rec DiagnosticRecorder
	log logger.Logger
}

// Option customises a battery component.
type Option func(*options)

// WithDiagnostics routes diagnostics to rec.
func WithDiagnostics(rec DiagnosticRecorder) Option {
	return func(o *options) {
		if rec != nil {
			o.rec = rec
		}
	}
}

// WithLogger sets the component logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{rec: nopRecorder{}, log: logger.NopLogger{}}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
