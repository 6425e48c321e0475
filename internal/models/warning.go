package models

// WarningKind classifies a non-fatal condition attached to an analysis.
type WarningKind string

const (
	WarningProviderUnavailable WarningKind = "provider_unavailable"
	WarningFXFallback          WarningKind = "fx_fallback"
	WarningPlaceholderPrice    WarningKind = "placeholder_price"
	WarningCacheUnavailable    WarningKind = "cache_unavailable"
)

// Warning marks part of a result as approximate or incomplete.
type Warning struct {
	Stage   string      `json:"stage"`
	Kind    WarningKind `json:"kind"`
	Symbol  string      `json:"symbol,omitempty"`
	Message string      `json:"message"`
}

// Warnings accumulates annotations from a pipeline stage.
type Warnings []Warning

// Add appends a warning.
func (w *Warnings) Add(stage string, kind WarningKind, symbol, message string) {
	*w = append(*w, Warning{Stage: stage, Kind: kind, Symbol: symbol, Message: message})
}
