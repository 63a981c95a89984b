package kvstore

import "errors"

// ErrInterrupted reports cooperative cancellation at a suspension point:
// admission wait, superblock acquisition, or an engine call that observed
// ctx.Done(). Every scoped resource (transaction, ticket) has already been
// released by the time this reaches the caller.
var ErrInterrupted = errors.New("kvstore: interrupted")

// ErrIo reports a serializer/page I/O failure. The transaction that produced
// it has been aborted; the caller should surface this to the cluster layer,
// which may quarantine the store.
var ErrIo = errors.New("kvstore: io error")

// ErrCorruption reports a decode failure of metainfo or a backfill wire
// frame.
var ErrCorruption = errors.New("kvstore: corruption")

// ErrEngineConflict is not normally returned as an error: CAS/policy
// rejections travel inside WriteResponse.Conflict. It exists so internal
// engine code has a sentinel to wrap when a conflict is detected somewhere
// that cannot return a WriteResponse directly (e.g. inside backfill replay).
var ErrEngineConflict = errors.New("kvstore: engine conflict")
