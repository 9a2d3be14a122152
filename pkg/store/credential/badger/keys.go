package badger

// Key Namespace
// =============
//
// Data Type     Prefix   Key Format        Value Type
// ===================================================
// Users         "u:"     u:<name>          User (JSON)
// Schema        "cfg:"   cfg:schema        version (bytes)
//
// Users are keyed by login name so lookups are a single point read. The
// random user ID lives in the value.

const (
	prefixUser    = "u:"
	keySchema     = "cfg:schema"
	schemaVersion = "1"
)

func keyUser(name string) []byte {
	return []byte(prefixUser + name)
}
