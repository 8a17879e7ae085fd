package errhandler

import "github.com/jathurchan/bgerr/types"

// Classify maps a failure to the severity the engine must react with.
// It is a pure function of its arguments and is safe to call without the
// host mutex.
//
// The policy, in order:
//   - corruption is unrecoverable for any origin;
//   - running out of space is soft, unless the data was not yet durable
//     (memtable or WAL writes), which makes it hard;
//   - lost permission or lost ownership (fencing) is fatal;
//   - any other I/O failure, or any failure at all, halts mutation (hard).
//
// isIO marks outcomes produced by the I/O layer under a non-I/O code.
func Classify(reason types.Reason, code types.Code, sub types.SubCode, isIO bool) types.Severity {
	if code == types.CodeOK {
		return types.SeverityNone
	}
	if code == types.CodeCorruption {
		return types.SeverityUnrecoverable
	}

	if code == types.CodeIOError || isIO {
		switch sub {
		case types.SubCodeNoSpace, types.SubCodeSpaceLimit:
			if reason == types.ReasonMemTable || reason == types.ReasonWALWrite {
				return types.SeverityHard
			}
			return types.SeveritySoft
		case types.SubCodePermissionDenied, types.SubCodeIOFenced:
			return types.SeverityFatal
		}
	}

	// Manifest and WAL failures put metadata or durability at risk; unknown
	// failures are treated the same way.
	return types.SeverityHard
}

// ClassifyOutcome is Classify applied to an Outcome's fields.
func ClassifyOutcome(reason types.Reason, o types.Outcome) types.Severity {
	return Classify(reason, o.Code, o.SubCode, o.IsIO)
}

// IsRetryableIOError reports whether a classified outcome qualifies for the
// retryable I/O recovery path: a generic or timed-out I/O failure from flush
// or compaction, or a manifest write the I/O layer flagged as transient.
func IsRetryableIOError(reason types.Reason, o types.Outcome) bool {
	if !o.IsIOCategory() || o.Code == types.CodeCorruption {
		return false
	}
	if o.Severity >= types.SeverityFatal {
		return false
	}
	if o.SubCode != types.SubCodeNone && o.SubCode != types.SubCodeTimeout {
		return false
	}
	switch reason {
	case types.ReasonFlush, types.ReasonFlushNoWAL, types.ReasonCompaction:
		return true
	case types.ReasonManifestWrite:
		return o.Retryable
	default:
		return false
	}
}
