package workflow

import "time"

// WasmBlob is a content-addressed WASM module stored by the blob store.
// Hash uniquely identifies Bytes (sha256(Bytes) == Hash);
// writes are idempotent.
type WasmBlob struct {
	Hash     string    `json:"hash"`
	Bytes    []byte    `json:"bytes"`
	Size     int64     `json:"size"`
	StoredAt time.Time `json:"stored_at"`
}
