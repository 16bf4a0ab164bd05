package tagparser

type Source string

const (
	SourceParsed   Source = "parsed"
	SourceCSVMatch Source = "csv_match"
	SourceManual   Source = "manual"
	SourceUntagged Source = "untagged"
)

func (s Source) Valid() bool {
	switch s {
	case SourceParsed, SourceCSVMatch, SourceManual, SourceUntagged:
		return true
	}
	return false
}

// Trigger names what is asking for a tag_source change.
type Trigger int

const (
	TriggerAuto Trigger = iota
	TriggerUserEdit
	TriggerReset
)

// CanTransition encodes the tag_source state machine:
//
//	untagged/parsed/csv_match -> parsed/csv_match/untagged  (auto-tag pass)
//	any                       -> manual                     (user edit)
//	any                       -> untagged                   (explicit reset)
//
// manual is terminal for the auto-tag pass. Unknown sources never move.
func CanTransition(from, to Source, trigger Trigger) bool {
	if from == "" {
		from = SourceUntagged
	}
	if !from.Valid() || !to.Valid() {
		return false
	}

	switch trigger {
	case TriggerUserEdit:
		return to == SourceManual
	case TriggerReset:
		return to == SourceUntagged
	case TriggerAuto:
		if from == SourceManual {
			return false
		}
		return to != SourceManual
	}
	return false
}

// Current is the persisted tagging state of a creative.
type Current struct {
	Tags   Tags
	Source Source
}

// Decision is the outcome of an auto-tag pass for one creative.
type Decision struct {
	Tags    Tags
	Source  Source
	Changed bool
	// Skipped is set when the creative is manually tagged or its source
	// cannot move.
	Skipped bool
}

// Resolve applies the auto-tag precedence: manual is never touched, then the
// name is parsed, then the CSV mapping is consulted by explicit or extracted
// code, and finally the creative is marked untagged. Changed is false when the
// result equals the current state so callers can skip the write. A creative
// whose source cannot move is left as it is.
func Resolve(cur Current, adName, explicitCode string, table MappingTable) Decision {
	if cur.Source == "" {
		cur.Source = SourceUntagged
	}

	if cur.Source == SourceManual {
		return Decision{Tags: cur.Tags, Source: SourceManual, Skipped: true}
	}

	next, source := resolveTags(adName, explicitCode, table)
	if !CanTransition(cur.Source, source, TriggerAuto) {
		return Decision{Tags: cur.Tags, Source: cur.Source, Skipped: true}
	}

	changed := cur.Source != source || !cur.Tags.SameFields(next) || cur.Tags.UniqueCode != next.UniqueCode
	return Decision{Tags: next, Source: source, Changed: changed}
}

func resolveTags(adName, explicitCode string, table MappingTable) (Tags, Source) {
	if tags, ok := Parse(adName); ok {
		return tags, SourceParsed
	}

	code := explicitCode
	if code == "" {
		code = ExtractCode(adName)
	}
	if tags, ok := ApplyMapping(code, table); ok {
		return tags, SourceCSVMatch
	}

	// Keep the extracted code so a later mapping upload can match it.
	return Tags{UniqueCode: code}, SourceUntagged
}
