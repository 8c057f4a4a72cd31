package queue

// Keys holds the resolved queue key names for one deployment. Every key
// follows the {namespace}:{stage} scheme but each can be overridden
// individually in configuration.
type Keys struct {
	Raw       string
	RawDLQ    string
	Normalize string
	Score     string
	ScoreDLQ  string
	Fuse      string
	FuseDLQ   string
	Export    string
	ExportDLQ string
}

// DefaultKeys derives the standard key set from a namespace.
func DefaultKeys(namespace string) Keys {
	return Keys{
		Raw:       namespace + ":raw",
		RawDLQ:    namespace + ":raw:dlq",
		Normalize: namespace + ":normalize",
		Score:     namespace + ":score",
		ScoreDLQ:  namespace + ":score:dlq",
		Fuse:      namespace + ":fuse",
		FuseDLQ:   namespace + ":fuse:dlq",
		Export:    namespace + ":export",
		ExportDLQ: namespace + ":export:dlq",
	}
}

// DLQs lists every dead-letter queue keyed by the stage that feeds it.
func (k Keys) DLQs() map[string]string {
	return map[string]string{
		"ingest": k.RawDLQ,
		"score":  k.ScoreDLQ,
		"fuse":   k.FuseDLQ,
		"export": k.ExportDLQ,
	}
}
