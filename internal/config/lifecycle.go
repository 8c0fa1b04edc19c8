package config

import (
	"github.com/steveyegge/defects/internal/lifecycle"
	"github.com/steveyegge/defects/internal/table"
)

// Lifecycle resolves the lifecycle manager options from the loaded settings.
// Unset or empty values keep lifecycle.DefaultOptions.
func Lifecycle() lifecycle.Options {
	opts := lifecycle.DefaultOptions()

	setString(&opts.Project, KeyProject)
	if opts.Project == "" {
		setString(&opts.Project, "jira.project")
	}
	setString(&opts.IssueType, KeyIssueType)
	setString(&opts.LinkType, KeyLinkType)
	setString(&opts.ClosedStatus, KeyClosedStatus)
	setString(&opts.FixedResolution, KeyFixedResolution)
	setString(&opts.DuplicateResolution, KeyDuplicateResolution)
	setString(&opts.DuplicateLabel, KeyDuplicateLabel)
	opts.Labels = GetStringSlice(KeyLabels)

	if closed := GetStringSlice(KeyClosedStatuses); len(closed) > 0 {
		opts.Statuses.Closed = closed
	}
	if stale := GetStringSlice(KeyStaleStatuses); len(stale) > 0 {
		opts.Statuses.Stale = stale
	}
	if n := GetInt(KeyBucketSize); n > 0 {
		opts.BucketSize = n
	}
	opts.IncludeDataSource = GetBool(KeyIncludeDataSource)
	opts.Codec = Codec()
	return opts
}

// Codec resolves the fragment writer options.
func Codec() table.CodecOptions {
	opts := table.DefaultCodecOptions()
	setString(&opts.LineBreak, KeyLineBreak)
	if v != nil && v.IsSet(KeyFenceLanguage) {
		opts.FenceLanguage = GetString(KeyFenceLanguage)
	}
	return opts
}

func setString(dst *string, key string) {
	if s := GetString(key); s != "" {
		*dst = s
	}
}
