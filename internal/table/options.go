package table

// EscapedLineBreak is the two-escape sequence (backslash-r backslash-n) used to
// join rows. Encoded fragments end up inside a JSON string payload, so the
// escape rather than a real line break is written.
const EscapedLineBreak = `\r\n`

// CodecOptions controls how fragments are written. It is a plain value passed
// at call time; there is no package-level serializer state.
type CodecOptions struct {
	// LineBreak joins table rows and document lines.
	LineBreak string
	// FenceLanguage is the language tag on the opening fence, e.g. "json".
	// Empty writes a bare {code} fence.
	FenceLanguage string
}

// DefaultCodecOptions returns the options used when none are configured.
func DefaultCodecOptions() CodecOptions {
	return CodecOptions{
		LineBreak:     EscapedLineBreak,
		FenceLanguage: "json",
	}
}

// withDefaults fills zero fields so a zero CodecOptions behaves like the default.
func (o CodecOptions) withDefaults() CodecOptions {
	if o.LineBreak == "" {
		o.LineBreak = EscapedLineBreak
	}
	return o
}

// OpenFence returns the opening fence marker, e.g. "{code:json}".
func (o CodecOptions) OpenFence() string {
	if o.FenceLanguage == "" {
		return "{code}"
	}
	return "{code:" + o.FenceLanguage + "}"
}

// CloseFence is the closing fence marker.
const CloseFence = "{code}"
