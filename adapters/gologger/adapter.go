package gologger

import (
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// Component resolves the logger for one paykit component. Loggers that accept
// fields are tagged with the component and payment provider names.
func Component(component string, paymentProvider string, provider glog.LoggerProvider, logger glog.Logger) glog.Logger {
	component = strings.TrimSpace(component)
	_, resolved := Resolve(component, provider, logger)
	fieldsLogger, ok := resolved.(glog.FieldsLogger)
	if !ok {
		return resolved
	}
	fields := map[string]any{"component": component}
	if paymentProvider = strings.TrimSpace(paymentProvider); paymentProvider != "" {
		fields["provider"] = paymentProvider
	}
	return fieldsLogger.WithFields(fields)
}
