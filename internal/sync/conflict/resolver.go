// Package conflict provides conflict detection and resolution policy for
// sync operations. Pure decision logic: no I/O, no side effects.
package conflict

import (
	"github.com/eventra/mobilesync/internal/logging"
	"github.com/eventra/mobilesync/internal/models"
)

// Strategy defines how a detected conflict is resolved.
type Strategy string

const (
	StrategyLocalWins     Strategy = "local_wins"
	StrategyServerWins    Strategy = "server_wins"
	StrategyLastWriteWins Strategy = "last_write_wins"
	StrategyMerge         Strategy = "merge"
	StrategyUserChooses   Strategy = "user_chooses"
)

// Record is one side of a logical record, as named fields.
type Record map[string]interface{}

// Timestamps carries the modification times relevant to a decision, as
// unix seconds. LastSynced is zero when the record was never synced.
type Timestamps struct {
	Local      int64
	Server     int64
	LastSynced int64
}

// Decision is the outcome of resolving a conflict. Resolved is the record
// to apply when the strategy auto-resolves; nil for StrategyUserChooses.
type Decision struct {
	Strategy Strategy
	Resolved Record
}

// bookkeeping columns excluded from content comparison
var ignoredFields = map[string]bool{
	"synced_at":  true,
	"updated_at": true,
	"created_at": true,
	"data_type":  true,
}

// Resolver decides whether and how divergent copies of a record are
// reconciled, by data type.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// HasConflict reports whether local and server copies of the same logical
// record are in conflict: both sides changed since the last sync point
// and the changes disagree. Append-only and natural-key-upsert types
// never conflict; the upsert absorbs the divergence.
func (r *Resolver) HasConflict(local, server Record, dataType models.DataType, ts Timestamps) bool {
	if local == nil || server == nil {
		return false
	}

	switch dataType {
	case models.DataTypeSurveyResponse, models.DataTypeImageUpload:
		// Idempotent upsert by natural key; structurally conflict-free.
		return false
	}

	if len(changedFields(local, server)) == 0 {
		return false
	}

	// A conflict needs divergence on both sides since the last sync
	// point. If only one side moved, the other simply applies it.
	localChanged := ts.Local > ts.LastSynced
	serverChanged := ts.Server > ts.LastSynced
	if !localChanged || !serverChanged {
		return false
	}

	logging.Warn("Divergent writes detected", map[string]interface{}{
		"data_type":        dataType,
		"local_timestamp":  ts.Local,
		"server_timestamp": ts.Server,
		"last_synced":      ts.LastSynced,
		"fields":           changedFields(local, server),
	})
	return true
}

// Resolve returns the decision for a detected conflict.
//
// Policy by data type:
//   - event metadata, certificates: the server is authoritative for
//     organizer-controlled data
//   - attendance: a validated QR check-in is a physical fact the server
//     cannot better-know, so local wins; otherwise last write wins
//   - registrations: last write wins on timestamps
//   - user-authored free text (chat edits): defer to the user, never guess
func (r *Resolver) Resolve(local, server Record, dataType models.DataType, ts Timestamps) Decision {
	switch dataType {
	case models.DataTypeEventMetadata, models.DataTypeCertificate:
		return Decision{Strategy: StrategyServerWins, Resolved: server}

	case models.DataTypeAttendanceRecord:
		if truthy(local["qr_validated"]) {
			return Decision{Strategy: StrategyLocalWins, Resolved: local}
		}
		return r.lastWriteWins(local, server, ts)

	case models.DataTypeEventRegistration:
		return r.lastWriteWins(local, server, ts)

	case models.DataTypeSurveyResponse, models.DataTypeImageUpload:
		// Natural-key upsert; the last local write simply overwrites.
		return Decision{Strategy: StrategyLocalWins, Resolved: local}

	case models.DataTypeEventMessage:
		return Decision{Strategy: StrategyUserChooses}
	}

	// Unknown types are never auto-resolved.
	return Decision{Strategy: StrategyUserChooses}
}

// lastWriteWins picks the side with the newer timestamp; ties keep local.
func (r *Resolver) lastWriteWins(local, server Record, ts Timestamps) Decision {
	if ts.Local >= ts.Server {
		return Decision{Strategy: StrategyLastWriteWins, Resolved: local}
	}
	return Decision{Strategy: StrategyLastWriteWins, Resolved: server}
}

// changedFields lists domain fields whose values differ between the two
// sides. Bookkeeping columns are ignored.
func changedFields(local, server Record) []string {
	var fields []string
	for key, lv := range local {
		if ignoredFields[key] {
			continue
		}
		sv, ok := server[key]
		if !ok {
			continue
		}
		if !equalValue(lv, sv) {
			fields = append(fields, key)
		}
	}
	return fields
}

// equalValue compares two field values, normalizing the numeric types
// that JSON decoding and SQLite scanning produce.
func equalValue(a, b interface{}) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	if ab, aok := asBool(a); aok {
		if bb, bok := asBool(b); bok {
			return ab == bb
		}
	}
	return a == b
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func asBool(v interface{}) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case int:
		return b != 0, true
	case int64:
		return b != 0, true
	case float64:
		return b != 0, true
	}
	return false, false
}

// truthy interprets a scanned or decoded value as a boolean flag.
func truthy(v interface{}) bool {
	b, ok := asBool(v)
	return ok && b
}
